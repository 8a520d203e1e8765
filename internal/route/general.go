package route

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yuqing-ac/mailtriage/internal/classify"
	"github.com/yuqing-ac/mailtriage/internal/destination"
	"github.com/yuqing-ac/mailtriage/internal/mail"
)

// GeneralHandler records everything that is neither academic nor billing as
// a low-priority mail-log entry. Noise records (spam override) are dropped
// entirely when configured to.
type GeneralHandler struct {
	dest     destination.Destination
	dropSpam bool
	logger   *zap.Logger
}

// NewGeneralHandler creates the handler. dropSpam discards noise records
// instead of logging them.
func NewGeneralHandler(dest destination.Destination, dropSpam bool, logger *zap.Logger) *GeneralHandler {
	return &GeneralHandler{dest: dest, dropSpam: dropSpam, logger: logger}
}

func (h *GeneralHandler) Name() string { return "general" }

func (h *GeneralHandler) Handle(ctx context.Context, msg mail.Message, coarse classify.Category, rec *classify.DeepRecord) (bool, error) {
	if rec != nil && rec.Spam && h.dropSpam {
		h.logger.Debug("dropping noise record",
			zap.String("account", msg.Account),
			zap.String("subject", msg.Subject))
		return false, nil
	}

	if err := h.dest.Upsert(ctx, mailLogRecord(msg, coarse, rec)); err != nil {
		return false, fmt.Errorf("general upsert: %w", err)
	}
	return true, nil
}

// mailLogRecord is the shared mail-log shape: one entry per message, keyed
// by (account, subject-hash) so refetched duplicates merge.
func mailLogRecord(msg mail.Message, coarse classify.Category, rec *classify.DeepRecord) destination.Record {
	category := coarse
	importance := 2
	summary := ""
	needsAction := false
	if rec != nil {
		category = rec.Category
		importance = rec.Importance
		summary = rec.Summary
		needsAction = rec.NeedsAction
	}

	fields := map[string]any{
		destination.FieldCategory:    string(category),
		destination.FieldImportance:  importance,
		destination.FieldNeedsAction: needsAction,
		destination.FieldSummary:     summary,
		destination.FieldSender:      msg.Sender,
		destination.FieldAccount:     msg.Account,
	}
	if !msg.Date.IsZero() {
		fields[destination.FieldDate] = msg.Date
	}

	title := msg.Subject
	if title == "" {
		title = "(no subject)"
	}

	return destination.Record{
		Kind:   destination.KindMailLog,
		Key:    SubjectKey(msg.Account, msg.Subject),
		Title:  title,
		Fields: fields,
	}
}
