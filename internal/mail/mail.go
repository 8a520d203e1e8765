// Package mail provides the message model and the IMAP source the pipeline
// reads from.
package mail

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

// Message is one fetched mail, already flattened to the fields the pipeline
// needs.
type Message struct {
	// Account is the configured account name the message came from.
	Account string
	// UID is the IMAP UID within the account's inbox, used for mark-read.
	UID uint32
	// MessageID is the RFC 5322 Message-Id, the dedup identity together with
	// Account. Synthesized when the header is missing.
	MessageID string
	Subject   string
	Sender    string
	Date      time.Time
	// Body is plain text, HTML-stripped and capped at the configured size.
	Body string
}

// Source is the mailbox boundary. Returned order is fetch order, not a
// correctness guarantee.
type Source interface {
	// ListUnread returns unread messages for the account, up to the source's
	// fetch limit.
	ListUnread(ctx context.Context, account string) ([]Message, error)
	// MarkRead flags one message seen. Best-effort from the pipeline's view.
	MarkRead(ctx context.Context, account string, uid uint32) error
}

// FallbackMessageID synthesizes a stable identity for messages without a
// Message-Id header, from the fields least likely to change on refetch.
func FallbackMessageID(account, subject, sender string, date time.Time) string {
	h := fnv.New64a()
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(date.UTC().Format(time.RFC3339)))
	return fmt.Sprintf("<synthetic-%016x@%s>", h.Sum64(), account)
}
