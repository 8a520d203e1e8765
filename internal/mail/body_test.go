package mail

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainMessage = "From: editor@journal.org\r\n" +
	"To: author@example.edu\r\n" +
	"Subject: Decision on your manuscript\r\n" +
	"Date: Mon, 06 Jan 2025 10:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Dear author,\r\n" +
	"\r\n" +
	"Your manuscript TGRS-2024-1234 requires major revision.\r\n"

const multipartMessage = "From: editor@journal.org\r\n" +
	"Subject: Decision\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=BOUNDARY\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"plain text wins\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><p>html body</p></body></html>\r\n" +
	"--BOUNDARY--\r\n"

const htmlOnlyMessage = "From: noreply@bank.com\r\n" +
	"Subject: Your statement\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><head><style>p { color: red }</style></head>" +
	"<body><p>Amount due: &yen;128.00</p><script>track()</script>" +
	"<p>Due&nbsp;date: 2025-02-01</p></body></html>\r\n"

func TestExtractBody_Plain(t *testing.T) {
	got, err := extractBody(strings.NewReader(plainMessage), 8192)
	require.NoError(t, err)
	assert.Contains(t, got, "TGRS-2024-1234")
	assert.NotContains(t, got, "\r")
}

func TestExtractBody_PrefersPlainOverHTML(t *testing.T) {
	got, err := extractBody(strings.NewReader(multipartMessage), 8192)
	require.NoError(t, err)
	assert.Contains(t, got, "plain text wins")
	assert.NotContains(t, got, "html body")
}

func TestExtractBody_HTMLFallback(t *testing.T) {
	got, err := extractBody(strings.NewReader(htmlOnlyMessage), 8192)
	require.NoError(t, err)
	assert.Contains(t, got, "Amount due: ¥128.00")
	assert.Contains(t, got, "Due date: 2025-02-01")
	assert.NotContains(t, got, "<p>")
	assert.NotContains(t, got, "color: red")
	assert.NotContains(t, got, "track()")
}

func TestExtractBody_CapsLength(t *testing.T) {
	long := "From: a@b.c\r\nSubject: s\r\nContent-Type: text/plain\r\n\r\n" +
		strings.Repeat("word ", 10_000)
	got, err := extractBody(strings.NewReader(long), 500)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), 500)
}

func TestStripHTML(t *testing.T) {
	got := stripHTML(`<div>line one<br>line two</div><style>x{}</style>`)
	assert.Contains(t, got, "line one")
	assert.Contains(t, got, "line two")
	assert.NotContains(t, got, "<")
}

func TestNormalizeWhitespace(t *testing.T) {
	got := normalizeWhitespace("  a\tb  \r\n\r\n\r\n\r\nc  ")
	assert.Equal(t, "a b\n\nc", got)
}

func TestFallbackMessageID(t *testing.T) {
	d := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	id1 := FallbackMessageID("work", "Subject", "a@b.c", d)
	id2 := FallbackMessageID("work", "Subject", "a@b.c", d)
	assert.Equal(t, id1, id2, "same inputs must synthesize the same id")

	id3 := FallbackMessageID("work", "Other subject", "a@b.c", d)
	assert.NotEqual(t, id1, id3)

	id4 := FallbackMessageID("personal", "Subject", "a@b.c", d)
	assert.NotEqual(t, id1, id4, "identity is scoped to the account")
	assert.Contains(t, id1, "@work")
}
