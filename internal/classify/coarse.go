package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Header is the cheap view of a message the coarse filter sees: no body.
type Header struct {
	Subject string
	Sender  string
}

// coarseSystemPrompt asks for exactly one label per numbered item, as a bare
// JSON array, in input order.
const coarseSystemPrompt = `You are an email triage assistant for an academic researcher.

You will receive a numbered list of emails, one per line, each with a subject and a sender address. Assign every email exactly one category:

- TRASH: advertising, promotions, mass marketing, phishing, automated newsletters with no personal relevance
- PAPER: journal or conference correspondence about the recipient's own manuscript (submission received, status update, revision decision, acceptance, rejection, proofs)
- REVIEW: peer-review requests and reviewer correspondence (invitations, reminders, confirmations, thank-you notes)
- BILLING: bills, invoices, payment receipts, subscription charges, payment failures
- NOTICE: institutional or service announcements that may matter (account notices, policy updates, system maintenance)
- EXAM: examinations, certifications, registration and test results
- PERSONAL: individually written mail from a real person
- UNKNOWN: cannot be determined from subject and sender alone

Respond with ONLY a JSON array of category strings, one per input line, in the same order. Example: ["TRASH","PAPER","UNKNOWN"]
The array length MUST equal the number of input lines. No explanation, no markdown.`

// BatchStats counts the model requests behind one Classify call.
type BatchStats struct {
	// Batches is the number of chat requests issued.
	Batches int
	// Failed is the number of those whose response was unusable and degraded
	// to CategoryUnknown.
	Failed int
}

// CoarseFilter batches (subject, sender) pairs into single model calls and
// maps the answers onto the closed category set.
type CoarseFilter struct {
	client    ChatClient
	batchSize int
	logger    *zap.Logger
}

// NewCoarseFilter creates a filter that classifies headers in batches of
// batchSize per request.
func NewCoarseFilter(client ChatClient, batchSize int, logger *zap.Logger) *CoarseFilter {
	if batchSize < 1 {
		batchSize = 1
	}
	return &CoarseFilter{client: client, batchSize: batchSize, logger: logger}
}

// Classify labels every header. It never fails: a batch whose response is
// unusable degrades to CategoryUnknown for each of its members, so one bad
// model answer cannot poison the rest of the tick. The result always has
// len(headers) elements, position-aligned with the input; the stats report
// how many batches were sent and how many of those degraded.
func (f *CoarseFilter) Classify(ctx context.Context, headers []Header) ([]Category, BatchStats) {
	out := make([]Category, 0, len(headers))
	var stats BatchStats
	for start := 0; start < len(headers); start += f.batchSize {
		end := start + f.batchSize
		if end > len(headers) {
			end = len(headers)
		}
		batch := headers[start:end]
		stats.Batches++

		labels, err := f.classifyBatch(ctx, batch)
		if err != nil {
			f.logger.Warn("coarse batch failed, falling back to UNKNOWN",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			stats.Failed++
			labels = make([]Category, len(batch))
			for i := range labels {
				labels[i] = CategoryUnknown
			}
		}
		out = append(out, labels...)
	}
	return out, stats
}

// classifyBatch sends one batch and enforces the response contract: a JSON
// array of strings whose length equals the batch length. Any violation fails
// the whole batch.
func (f *CoarseFilter) classifyBatch(ctx context.Context, batch []Header) ([]Category, error) {
	var sb strings.Builder
	for i, h := range batch {
		subject := h.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		fmt.Fprintf(&sb, "%d. subject: %s | from: %s\n", i+1, sanitizeLine(subject), sanitizeLine(h.Sender))
	}

	content, err := f.client.Complete(ctx, coarseSystemPrompt, sb.String())
	if err != nil {
		return nil, fmt.Errorf("coarse request: %w", err)
	}

	raw := extractJSON(stripFences(content), '[', ']')
	if raw == "" {
		return nil, &MalformedResponseError{Stage: "coarse", Reason: "no JSON array in response"}
	}

	var labels []string
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, &MalformedResponseError{Stage: "coarse", Reason: fmt.Sprintf("not a string array: %v", err)}
	}
	if len(labels) != len(batch) {
		return nil, &MalformedResponseError{
			Stage:  "coarse",
			Reason: fmt.Sprintf("got %d labels for %d items", len(labels), len(batch)),
		}
	}

	out := make([]Category, len(labels))
	for i, l := range labels {
		out[i] = ParseCategory(l)
	}
	return out, nil
}

// sanitizeLine keeps the numbered-list prompt one item per line.
func sanitizeLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}
