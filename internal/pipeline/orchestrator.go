// Package pipeline drives one triage tick end to end: fetch, dedup, two
// classification stages, routing, destination sync and ledger commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yuqing-ac/mailtriage/internal/classify"
	"github.com/yuqing-ac/mailtriage/internal/config"
	"github.com/yuqing-ac/mailtriage/internal/ledger"
	"github.com/yuqing-ac/mailtriage/internal/mail"
	"github.com/yuqing-ac/mailtriage/internal/metrics"
	"github.com/yuqing-ac/mailtriage/internal/notify"
	"github.com/yuqing-ac/mailtriage/internal/route"
)

// ledgerSubjectLimit bounds the subject snapshot stored per entry.
const ledgerSubjectLimit = 200

// CoarseClassifier is the stage-1 boundary.
type CoarseClassifier interface {
	Classify(ctx context.Context, headers []classify.Header) ([]classify.Category, classify.BatchStats)
}

// DeepClassifier is the stage-2 boundary.
type DeepClassifier interface {
	Analyze(ctx context.Context, subject, sender, body string, hint classify.Category) (*classify.DeepRecord, error)
}

var (
	_ CoarseClassifier = (*classify.CoarseFilter)(nil)
	_ DeepClassifier   = (*classify.DeepAnalyzer)(nil)
)

// TickStats summarizes one tick.
type TickStats struct {
	// Fetched counts unread messages returned by the source.
	Fetched int
	// New counts messages that were not already in the ledger.
	New int
	// Committed counts messages that reached a processed ledger entry.
	Committed int
	// Deduped counts messages skipped because their identity was already
	// committed.
	Deduped int
	// Abandoned counts messages committed as permanently skipped after
	// reaching the retry cap.
	Abandoned int
	// Errored counts messages that failed this tick and stay unread for the
	// next one.
	Errored int
	// ByCategory counts committed messages by final category.
	ByCategory map[classify.Category]int
}

// Deps wires an Orchestrator.
type Deps struct {
	Source   mail.Source
	Accounts []string
	Coarse   CoarseClassifier
	Deep     DeepClassifier
	Router   *route.Router
	Ledger   ledger.Store
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
	Config   config.PipelineConfig
	Logger   *zap.Logger
}

// Orchestrator runs the pipeline over all configured accounts. Messages are
// isolated from each other: one failure never aborts the tick, the failing
// message simply stays unread and is retried next tick until the retry cap.
type Orchestrator struct {
	source   mail.Source
	accounts []string
	coarse   CoarseClassifier
	deep     DeepClassifier
	router   *route.Router
	ledger   ledger.Store
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	cfg      config.PipelineConfig
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator from its dependencies.
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		source:   d.Source,
		accounts: d.Accounts,
		coarse:   d.Coarse,
		deep:     d.Deep,
		router:   d.Router,
		ledger:   d.Ledger,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		cfg:      d.Config,
		logger:   d.Logger,
	}
}

// RunTick processes every account once and returns the tick's stats. The
// returned error is non-nil only when the context was canceled; per-message
// and per-account failures are absorbed into the stats.
func (o *Orchestrator) RunTick(ctx context.Context) (TickStats, error) {
	start := time.Now()
	stats := TickStats{ByCategory: map[classify.Category]int{}}
	logger := o.logger.With(zap.String("tick_id", uuid.NewString()))

	var items []notify.Item
	for _, account := range o.accounts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		accItems, err := o.runAccount(ctx, account, logger, &stats)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			logger.Error("account tick failed", zap.String("account", account), zap.Error(err))
			continue
		}
		items = append(items, accItems...)
	}

	if o.notifier != nil && len(items) > 0 {
		o.notifier.TickDigest(ctx, items)
		o.metrics.RecordNotification("ok")
	}

	elapsed := time.Since(start)
	o.metrics.RecordTick("ok", elapsed.Seconds())
	logger.Info("tick complete",
		zap.Int("fetched", stats.Fetched),
		zap.Int("new", stats.New),
		zap.Int("committed", stats.Committed),
		zap.Int("deduped", stats.Deduped),
		zap.Int("errored", stats.Errored),
		zap.Int("abandoned", stats.Abandoned),
		zap.Duration("elapsed", elapsed))
	return stats, nil
}

func (o *Orchestrator) runAccount(ctx context.Context, account string, logger *zap.Logger, stats *TickStats) ([]notify.Item, error) {
	msgs, err := o.source.ListUnread(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}
	stats.Fetched += len(msgs)

	fresh, err := o.dedup(ctx, account, msgs, logger, stats)
	if err != nil {
		return nil, err
	}
	stats.New += len(fresh)
	if len(fresh) == 0 {
		return nil, nil
	}

	headers := make([]classify.Header, len(fresh))
	for i, m := range fresh {
		headers[i] = classify.Header{Subject: m.Subject, Sender: m.Sender}
	}
	coarseStart := time.Now()
	labels, batches := o.coarse.Classify(ctx, headers)
	o.metrics.RecordLLMBatch("coarse", batches.Batches-batches.Failed, batches.Failed, time.Since(coarseStart).Seconds())

	var items []notify.Item
	for i, msg := range fresh {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item, ok := o.processMessage(ctx, msg, labels[i], logger, stats)
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// dedup filters out messages whose identity already has a ledger entry.
// A ledger read failure leaves the message unprocessed this tick; it stays
// unread and comes back next time.
func (o *Orchestrator) dedup(ctx context.Context, account string, msgs []mail.Message, logger *zap.Logger, stats *TickStats) ([]mail.Message, error) {
	fresh := msgs[:0:0]
	for _, m := range msgs {
		seen, err := o.ledger.HasProcessed(ctx, account, m.MessageID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			logger.Warn("ledger lookup failed, deferring message",
				zap.String("account", account),
				zap.String("message_id", m.MessageID),
				zap.Error(err))
			stats.Errored++
			continue
		}
		if seen {
			stats.Deduped++
			continue
		}
		fresh = append(fresh, m)
	}
	return fresh, nil
}

// processMessage takes one message to a terminal state. The returned item is
// valid only when ok is true (the message was committed).
func (o *Orchestrator) processMessage(ctx context.Context, msg mail.Message, coarseLabel classify.Category, logger *zap.Logger, stats *TickStats) (notify.Item, bool) {
	mlog := logger.With(
		zap.String("account", msg.Account),
		zap.String("message_id", msg.MessageID),
		zap.String("coarse", string(coarseLabel)))

	var rec *classify.DeepRecord
	if coarseLabel.NeedsDeepAnalysis() {
		deepStart := time.Now()
		var err error
		rec, err = o.deep.Analyze(ctx, msg.Subject, msg.Sender, msg.Body, coarseLabel)
		if err != nil {
			o.metrics.RecordLLMCall("deep", "error", time.Since(deepStart).Seconds())
			o.handleFailure(ctx, msg, coarseLabel, err, mlog, stats)
			return notify.Item{}, false
		}
		o.metrics.RecordLLMCall("deep", "ok", time.Since(deepStart).Seconds())
	}

	category := coarseLabel
	if rec != nil {
		category = rec.Category
	}

	synced := false
	if handler := o.router.Route(coarseLabel, rec); handler != nil {
		var err error
		synced, err = handler.Handle(ctx, msg, coarseLabel, rec)
		if err != nil {
			o.metrics.RecordSync("error")
			o.handleFailure(ctx, msg, coarseLabel, err, mlog, stats)
			return notify.Item{}, false
		}
		if synced {
			o.metrics.RecordSync("ok")
		}
	}

	if err := o.commit(ctx, msg, coarseLabel, category, synced, ledger.DispositionProcessed); err != nil {
		o.handleFailure(ctx, msg, coarseLabel, err, mlog, stats)
		return notify.Item{}, false
	}
	if err := o.ledger.ClearFailures(ctx, msg.Account, msg.MessageID); err != nil {
		mlog.Warn("failure bookkeeping cleanup failed", zap.Error(err))
	}
	o.markRead(ctx, msg, mlog)

	stats.Committed++
	stats.ByCategory[category]++
	o.metrics.RecordMessage(string(category), "committed")
	mlog.Debug("message committed",
		zap.String("category", string(category)),
		zap.Bool("synced", synced))

	item := notify.Item{Category: category, Subject: msg.Subject}
	if rec != nil {
		item.Summary = rec.Summary
		item.Importance = rec.Importance
		item.NeedsAction = rec.NeedsAction
	}
	return item, true
}

// handleFailure records a pre-commit failure. Below the retry cap the
// message is left unread and comes back next tick; at the cap it is
// committed as permanently skipped so it never cycles again.
func (o *Orchestrator) handleFailure(ctx context.Context, msg mail.Message, coarseLabel classify.Category, cause error, mlog *zap.Logger, stats *TickStats) {
	state := "errored_permanent"
	if classify.IsRetryable(cause) {
		state = "errored_retryable"
	}
	o.metrics.RecordMessage(string(coarseLabel), state)

	count, err := o.ledger.RecordFailure(ctx, msg.Account, msg.MessageID)
	if err != nil {
		mlog.Error("failure bookkeeping failed", zap.Error(err), zap.NamedError("cause", cause))
		stats.Errored++
		return
	}

	if o.cfg.RetryCap > 0 && count >= o.cfg.RetryCap {
		mlog.Warn("retry cap reached, abandoning message",
			zap.Int("failures", count),
			zap.NamedError("cause", cause))
		if err := o.commit(ctx, msg, coarseLabel, coarseLabel, false, ledger.DispositionSkipped); err != nil {
			mlog.Error("skip commit failed", zap.Error(err))
			stats.Errored++
			return
		}
		o.markRead(ctx, msg, mlog)
		stats.Abandoned++
		o.metrics.RecordMessage(string(coarseLabel), "abandoned")
		return
	}

	mlog.Warn("message failed, will retry next tick",
		zap.Int("failures", count),
		zap.Error(cause))
	stats.Errored++
}

func (o *Orchestrator) commit(ctx context.Context, msg mail.Message, coarseLabel, category classify.Category, synced bool, disp ledger.Disposition) error {
	err := o.ledger.Commit(ctx, ledger.Entry{
		Account:     msg.Account,
		MessageID:   msg.MessageID,
		Subject:     truncate(msg.Subject, ledgerSubjectLimit),
		ProcessedAt: time.Now(),
		CoarseLabel: string(coarseLabel),
		Category:    string(category),
		Synced:      synced,
		Disposition: disp,
	})
	if errors.Is(err, ledger.ErrDuplicate) {
		// Lost a race with a concurrent commit for the same identity; the
		// existing entry wins.
		return nil
	}
	return err
}

// markRead flags the message seen after its ledger commit. Best-effort: a
// failure here means one redundant fetch next tick, which dedup absorbs.
func (o *Orchestrator) markRead(ctx context.Context, msg mail.Message, mlog *zap.Logger) {
	if !o.cfg.MarkRead {
		return
	}
	if err := o.source.MarkRead(ctx, msg.Account, msg.UID); err != nil {
		mlog.Warn("mark read failed", zap.Uint32("uid", msg.UID), zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
