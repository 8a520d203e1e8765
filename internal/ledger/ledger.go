// Package ledger records which message identities have completed processing.
// The ledger is append-only: entries are committed exactly once and never
// mutated, which is what makes reprocessing a mailbox safe.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate is returned by Commit when an entry for the same
// (account, message id) already exists.
var ErrDuplicate = errors.New("ledger: entry already committed")

// Disposition distinguishes why an identity is in the ledger.
type Disposition string

const (
	// DispositionProcessed marks a message that went through the full
	// pipeline.
	DispositionProcessed Disposition = "processed"
	// DispositionSkipped marks a message abandoned after repeated failures.
	// It is never retried again.
	DispositionSkipped Disposition = "skipped"
)

// Entry is one committed ledger row.
type Entry struct {
	Account     string
	MessageID   string
	Subject     string
	ProcessedAt time.Time
	// CoarseLabel is the stage-1 label; Category is the final category after
	// deep analysis and routing (equal to CoarseLabel when no deep pass ran).
	CoarseLabel string
	Category    string
	Synced      bool
	Disposition Disposition
}

// Stats aggregates ledger contents over a time window.
type Stats struct {
	Total      int64
	Skipped    int64
	Synced     int64
	ByLabel    map[string]int64
	ByCategory map[string]int64
}

// Store is the ledger contract. Implementations must be safe for concurrent
// use; the pipeline reads and writes from multiple goroutines.
type Store interface {
	// HasProcessed reports whether the identity already has an entry of any
	// disposition.
	HasProcessed(ctx context.Context, account, messageID string) (bool, error)

	// Commit appends an entry. Returns ErrDuplicate when the identity is
	// already present; the existing entry is never overwritten.
	Commit(ctx context.Context, e Entry) error

	// Stats aggregates entries whose ProcessedAt falls inside the window
	// ending now. window <= 0 means all time.
	Stats(ctx context.Context, window time.Duration) (Stats, error)

	// Purge deletes entries older than the given age and returns how many
	// were removed.
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)

	// RecordFailure increments and returns the consecutive-failure count for
	// an identity that errored before commit.
	RecordFailure(ctx context.Context, account, messageID string) (int, error)

	// ClearFailures forgets failure bookkeeping for an identity, called after
	// a successful commit.
	ClearFailures(ctx context.Context, account, messageID string) error

	Close() error
}
