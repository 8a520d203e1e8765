package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ItemType distinguishes the two academic entity kinds a deep record can
// carry.
type ItemType string

const (
	ItemPaper  ItemType = "paper"
	ItemReview ItemType = "review"
)

// Item is the structured academic entity extracted from a message, present
// only when the deep category is paper or review.
type Item struct {
	Type         ItemType
	VenueType    string // "journal" or "conference"
	Category     string // free-text sub-category, e.g. "Paper/MajorRevision"
	ManuscriptID string
	Title        string
	Venue        string
	Status       string
	// Deadline is nil when the model produced nothing date-shaped.
	Deadline *time.Time
	// PublishedSpam marks solicitations dressed up as academic mail
	// (reprint orders, pay-to-publish invitations).
	PublishedSpam bool
}

// DeepRecord is the validated result of deep analysis for one message.
type DeepRecord struct {
	Category    Category
	Importance  int // always in [1,5] after validation
	NeedsAction bool
	Summary     string
	// SummaryTruncated marks a summary cut at the configured bound.
	SummaryTruncated bool
	Venue            string
	Spam             bool
	// Item is non-nil only when Category is paper or review.
	Item *Item
}

// Wire shapes. Field names are part of the prompt contract below; change
// them together.
type deepWireItem struct {
	Type            string `json:"type"`
	VenueType       string `json:"venue_type"`
	Category        string `json:"category"`
	ManuscriptID    string `json:"manuscript_id"`
	Title           string `json:"title"`
	Venue           string `json:"venue"`
	Status          string `json:"status"`
	Deadline        string `json:"deadline"`
	IsPublishedSpam bool   `json:"is_published_spam"`
}

type deepWireClassification struct {
	Category    string      `json:"category"`
	Importance  json.Number `json:"importance"`
	NeedsAction bool        `json:"needs_action"`
	Summary     string      `json:"summary"`
	Venue       string      `json:"venue"`
}

type deepWire struct {
	Item           *deepWireItem          `json:"item"`
	Classification deepWireClassification `json:"classification"`
}

const deepSystemPrompt = `You are an email analyst for an academic researcher. You receive one complete email (subject, sender, body) plus a coarse category hint.

Extract a structured record. Respond with ONLY a JSON object of this exact shape:

{
  "item": {
    "type": "paper" or "review",
    "venue_type": "journal" or "conference",
    "category": "short sub-category, e.g. Paper/MajorRevision or Review/Invited",
    "manuscript_id": "venue-assigned manuscript identifier, empty if absent",
    "title": "manuscript title, empty if absent",
    "venue": "journal or conference name",
    "status": "status phrase as stated, e.g. major revision, under review, accepted",
    "deadline": "YYYY-MM-DD or null",
    "is_published_spam": false
  },
  "classification": {
    "category": "one of TRASH, PAPER, REVIEW, BILLING, NOTICE, EXAM, PERSONAL, UNKNOWN",
    "importance": 1-5,
    "needs_action": true or false,
    "summary": "one or two sentences, in the email's language",
    "venue": "journal/conference/organization name if any"
  }
}

"item" MUST be null unless the email is about a specific manuscript or review assignment (category PAPER or REVIEW).
Set "is_published_spam" to true for reprint orders, pay-to-publish offers, fake-conference invitations and similar solicitations that merely look academic.
importance: 5 = urgent action required, 4 = important, 3 = normal, 2 = minor, 1 = ignorable.
No markdown, no explanation.`

// DeepAnalyzer runs the per-message extraction stage and enforces the record
// invariants before anything downstream sees the result.
type DeepAnalyzer struct {
	client       ChatClient
	summaryLimit int
	maxBodyBytes int
	logger       *zap.Logger
}

// NewDeepAnalyzer creates an analyzer. summaryLimit bounds the summary in
// runes; maxBodyBytes caps how much body text is sent to the model.
func NewDeepAnalyzer(client ChatClient, summaryLimit, maxBodyBytes int, logger *zap.Logger) *DeepAnalyzer {
	if summaryLimit < 1 {
		summaryLimit = 200
	}
	if maxBodyBytes < 1 {
		maxBodyBytes = 8 * 1024
	}
	return &DeepAnalyzer{
		client:       client,
		summaryLimit: summaryLimit,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Analyze extracts a validated DeepRecord from one message. Errors are
// either transient (IsRetryable), *MalformedResponseError, or
// *ValidationError; the caller decides retry policy from that distinction.
func (a *DeepAnalyzer) Analyze(ctx context.Context, subject, sender, body string, hint Category) (*DeepRecord, error) {
	if len(body) > a.maxBodyBytes {
		body = truncateUTF8(body, a.maxBodyBytes)
	}

	user := fmt.Sprintf("Coarse category hint: %s\nSubject: %s\nFrom: %s\n\nBody:\n%s",
		hint, sanitizeLine(subject), sanitizeLine(sender), body)

	content, err := a.client.Complete(ctx, deepSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("deep request: %w", err)
	}

	raw := extractJSON(stripFences(content), '{', '}')
	if raw == "" {
		return nil, &MalformedResponseError{Stage: "deep", Reason: "no JSON object in response"}
	}

	var wire deepWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, &MalformedResponseError{Stage: "deep", Reason: fmt.Sprintf("bad JSON: %v", err)}
	}

	return a.validate(&wire, subject)
}

// validate turns the wire shape into a DeepRecord, enforcing invariants in a
// fixed order: category, importance, summary bound, deadline, item presence,
// and the spam override last.
func (a *DeepAnalyzer) validate(wire *deepWire, subject string) (*DeepRecord, error) {
	rec := &DeepRecord{
		Category:    ParseCategory(wire.Classification.Category),
		NeedsAction: wire.Classification.NeedsAction,
		Venue:       strings.TrimSpace(wire.Classification.Venue),
	}

	// Importance is rejected when out of domain, not clamped: a model that
	// produces 0 or 4.5 has misread the email, and clamping would hide that.
	importance, err := wire.Classification.Importance.Int64()
	if err != nil {
		return nil, &ValidationError{Field: "importance", Reason: fmt.Sprintf("not an integer: %q", wire.Classification.Importance)}
	}
	if importance < 1 || importance > 5 {
		return nil, &ValidationError{Field: "importance", Reason: fmt.Sprintf("%d outside [1,5]", importance)}
	}
	rec.Importance = int(importance)

	rec.Summary = strings.TrimSpace(wire.Classification.Summary)
	if runes := []rune(rec.Summary); len(runes) > a.summaryLimit {
		rec.Summary = string(runes[:a.summaryLimit])
		rec.SummaryTruncated = true
	}

	if wire.Item != nil {
		item, err := a.validateItem(wire.Item, subject)
		if err != nil {
			return nil, err
		}
		rec.Item = item
		rec.Spam = item.PublishedSpam
	}

	// Item presence invariant: only paper and review records carry one.
	if rec.Item != nil && rec.Category != CategoryPaper && rec.Category != CategoryReview {
		a.logger.Debug("dropping item on non-academic record",
			zap.String("category", string(rec.Category)),
			zap.String("subject", subject))
		rec.Item = nil
	}

	ApplySpamOverride(rec)
	return rec, nil
}

func (a *DeepAnalyzer) validateItem(wire *deepWireItem, subject string) (*Item, error) {
	itemType := ItemType(strings.ToLower(strings.TrimSpace(wire.Type)))
	if itemType != ItemPaper && itemType != ItemReview {
		return nil, &ValidationError{Field: "item.type", Reason: fmt.Sprintf("unknown type %q", wire.Type)}
	}

	item := &Item{
		Type:          itemType,
		VenueType:     strings.ToLower(strings.TrimSpace(wire.VenueType)),
		Category:      strings.TrimSpace(wire.Category),
		ManuscriptID:  strings.TrimSpace(wire.ManuscriptID),
		Title:         strings.TrimSpace(wire.Title),
		Venue:         strings.TrimSpace(wire.Venue),
		Status:        strings.TrimSpace(wire.Status),
		PublishedSpam: wire.IsPublishedSpam,
	}

	// Deadline must be an exact date. Anything else is nulled, not guessed:
	// a wrong deadline is worse than no deadline.
	if d := strings.TrimSpace(wire.Deadline); d != "" && !strings.EqualFold(d, "null") {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			a.logger.Warn("unparsable deadline dropped",
				zap.String("deadline", d),
				zap.String("subject", subject))
		} else {
			item.Deadline = &parsed
		}
	}

	return item, nil
}

// ApplySpamOverride forces spam records harmless: importance 1, noise
// category, no action flag. Applied once, after all other validation, so no
// later step can undo it.
func ApplySpamOverride(rec *DeepRecord) {
	if !rec.Spam {
		return
	}
	rec.Importance = 1
	rec.Category = CategoryNoise
	rec.NeedsAction = false
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
