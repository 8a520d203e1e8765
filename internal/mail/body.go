package mail

import (
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
)

func init() {
	// Academic mail arrives in GB2312, ISO-2022-JP and friends; without this
	// go-message rejects anything non-UTF8.
	message.CharsetReader = charset.Reader
}

// extractBody pulls readable text out of a raw RFC 822 message. text/plain
// parts win; text/html is stripped to text as a fallback. The result is
// whitespace-normalized and capped at max bytes.
func extractBody(r io.Reader, max int) (string, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("parse message: %w", err)
	}

	var plain, htmlBody strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return "", fmt.Errorf("read part: %w", err)
		}

		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue // attachments carry no triage signal
		}
		ct, _, err := h.ContentType()
		if err != nil {
			continue
		}
		switch ct {
		case "text/plain":
			if plain.Len() < max {
				_, _ = io.Copy(&plain, io.LimitReader(p.Body, int64(max)))
			}
		case "text/html":
			if htmlBody.Len() < max*4 {
				_, _ = io.Copy(&htmlBody, io.LimitReader(p.Body, int64(max*4)))
			}
		}
	}

	text := plain.String()
	if strings.TrimSpace(text) == "" {
		text = stripHTML(htmlBody.String())
	}
	text = normalizeWhitespace(text)
	if len(text) > max {
		text = truncateUTF8(text, max)
	}
	return text, nil
}

var (
	styleScriptRe = regexp.MustCompile(`(?is)<(style|script)\b.*?</(style|script)>`)
	lineBreakRe   = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6])>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	spaceRunRe    = regexp.MustCompile(`[ \t]+`)
)

// stripHTML reduces an HTML body to readable text. It is deliberately crude:
// the output only feeds a language model, not a renderer.
func stripHTML(s string) string {
	s = styleScriptRe.ReplaceAllString(s, " ")
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.ReplaceAll(s, "\u00a0", " ")
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
