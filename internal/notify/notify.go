// Package notify delivers best-effort end-of-tick notifications. Delivery
// failures are logged and swallowed; they never affect pipeline outcomes.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Sink sends a single notification.
type Sink interface {
	Send(ctx context.Context, title, body string) error
}

// Level selects how much of a tick gets reported.
type Level string

const (
	// LevelAll sends a per-message digest of everything non-trash.
	LevelAll Level = "all"
	// LevelImportant only reports messages with importance >= 4 or a
	// pending action.
	LevelImportant Level = "important"
	// LevelSummary sends category counts only.
	LevelSummary Level = "summary"
)

// ParseLevel validates a configured level string.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelAll:
		return LevelAll, nil
	case LevelImportant:
		return LevelImportant, nil
	case LevelSummary:
		return LevelSummary, nil
	}
	return "", fmt.Errorf("invalid notify level %q", s)
}

// DesktopSink delivers via the platform notification daemon.
type DesktopSink struct{}

var _ Sink = (*DesktopSink)(nil)

func (DesktopSink) Send(_ context.Context, title, body string) error {
	return beeep.Notify(title, body, "")
}

// NoOpSink discards everything. Used when notifications are disabled.
type NoOpSink struct{}

var _ Sink = (*NoOpSink)(nil)

func (NoOpSink) Send(context.Context, string, string) error { return nil }

// QuietHours is a daily window during which nothing is sent. The window may
// wrap midnight ("22:00-07:00"). The zero value never suppresses.
type QuietHours struct {
	start, end int // minutes since midnight
	set        bool
}

// ParseQuietHours parses a "HH:MM-HH:MM" window. Empty input disables quiet
// hours.
func ParseQuietHours(s string) (QuietHours, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return QuietHours{}, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return QuietHours{}, fmt.Errorf("invalid quiet hours %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return QuietHours{}, fmt.Errorf("invalid quiet hours %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return QuietHours{}, fmt.Errorf("invalid quiet hours %q: %w", s, err)
	}
	return QuietHours{start: start, end: end, set: true}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t falls inside the window. Start is inclusive,
// end exclusive.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.set {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if q.start <= q.end {
		return m >= q.start && m < q.end
	}
	// Wraps midnight.
	return m >= q.start || m < q.end
}

// Notifier formats and sends the end-of-tick digest. All failures are
// logged, never returned.
type Notifier struct {
	sink   Sink
	level  Level
	quiet  QuietHours
	logger *zap.Logger
	now    func() time.Time
}

// NewNotifier creates a notifier. A nil sink disables delivery.
func NewNotifier(sink Sink, level Level, quiet QuietHours, logger *zap.Logger) *Notifier {
	if sink == nil {
		sink = NoOpSink{}
	}
	return &Notifier{sink: sink, level: level, quiet: quiet, logger: logger, now: time.Now}
}

// TickDigest reports a tick's newly processed messages. Nothing is sent for
// an empty tick, during quiet hours, or when the level filters everything
// out.
func (n *Notifier) TickDigest(ctx context.Context, items []Item) {
	now := n.now()
	if n.quiet.Contains(now) {
		n.logger.Debug("suppressing notification during quiet hours")
		return
	}

	var body string
	switch n.level {
	case LevelImportant:
		body = formatImportant(onlyImportant(items))
	case LevelSummary:
		body = formatSummary(items, now)
	default:
		body = formatDigest(items, now)
	}
	if body == "" {
		return
	}

	if err := n.sink.Send(ctx, "mailtriage", body); err != nil {
		n.logger.Warn("notification delivery failed", zap.Error(err))
	}
}
