// Package destination is the outbound sync boundary: routed records are
// upserted into per-kind destinations (Notion databases in production),
// keyed so that reprocessing and follow-up mail update one entity instead of
// creating duplicates.
package destination

import (
	"context"

	"go.uber.org/zap"
)

// Kind selects the target database for a record.
type Kind string

const (
	KindPaper   Kind = "paper"
	KindReview  Kind = "review"
	KindMailLog Kind = "mail_log"
	KindBilling Kind = "billing"
)

// Field names understood by destinations. Values are plain Go types; each
// destination maps them onto its own schema (see notion.go).
const (
	FieldStatus       = "Status"       // string, select
	FieldVenue        = "Venue"        // string
	FieldVenueType    = "Venue Type"   // string, select
	FieldManuscriptID = "Manuscript"   // string
	FieldDeadline     = "Deadline"     // time.Time, date
	FieldImportance   = "Importance"   // int, number
	FieldNeedsAction  = "Needs Action" // bool, checkbox
	FieldSummary      = "Summary"      // string
	FieldCategory     = "Category"     // string, select
	FieldSender       = "Sender"       // string
	FieldAccount      = "Account"      // string, select
	FieldDate         = "Date"         // time.Time, date
	FieldAmount       = "Amount"       // float64, number
	FieldCurrency     = "Currency"     // string, select
	FieldPeriod       = "Period"       // string
	FieldDueDate      = "Due Date"     // time.Time, date
)

// Record is one upsert request.
type Record struct {
	Kind Kind
	// Key is the dedup identity within the kind: (venue, manuscript id) for
	// academic records, (account, subject-hash) otherwise, (item, period)
	// for billing. Two records with the same key update one entity.
	Key string
	// Title is the human-facing name of the entity.
	Title string
	// Fields carries the typed payload, keyed by the Field* constants.
	Fields map[string]any
}

// Destination is implemented by every sync target.
type Destination interface {
	// Upsert creates the entity for (Kind, Key) or updates it in place.
	Upsert(ctx context.Context, rec Record) error
}

// NoOp discards every record. Used when no destination is configured, so
// the pipeline still classifies, ledgers and notifies.
type NoOp struct {
	Logger *zap.Logger
}

func (n *NoOp) Upsert(_ context.Context, rec Record) error {
	if n.Logger != nil {
		n.Logger.Debug("destination disabled, dropping record",
			zap.String("kind", string(rec.Kind)),
			zap.String("key", rec.Key))
	}
	return nil
}

var _ Destination = (*NoOp)(nil)
