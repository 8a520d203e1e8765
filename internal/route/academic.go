package route

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yuqing-ac/mailtriage/internal/classify"
	"github.com/yuqing-ac/mailtriage/internal/destination"
	"github.com/yuqing-ac/mailtriage/internal/mail"
)

// AcademicHandler maintains the tracked paper/review entities and logs the
// message itself to the mail-log destination.
type AcademicHandler struct {
	dest   destination.Destination
	logger *zap.Logger
}

// NewAcademicHandler creates the handler.
func NewAcademicHandler(dest destination.Destination, logger *zap.Logger) *AcademicHandler {
	return &AcademicHandler{dest: dest, logger: logger}
}

func (h *AcademicHandler) Name() string { return "academic" }

func (h *AcademicHandler) Handle(ctx context.Context, msg mail.Message, coarse classify.Category, rec *classify.DeepRecord) (bool, error) {
	if rec == nil || rec.Item == nil {
		// Deep analysis produced no structured entity; keep at least the
		// mail-log trail.
		h.logger.Warn("academic message without item, logging only",
			zap.String("account", msg.Account),
			zap.String("subject", msg.Subject))
		if err := h.upsertMailLog(ctx, msg, coarse, rec); err != nil {
			return false, err
		}
		return true, nil
	}

	item := rec.Item
	entity := destination.Record{
		Key:    h.entityKey(msg, item),
		Title:  item.Title,
		Fields: map[string]any{},
	}
	if entity.Title == "" {
		entity.Title = msg.Subject
	}

	switch item.Type {
	case classify.ItemReview:
		entity.Kind = destination.KindReview
		if status, ok := NormalizeReviewStatus(item.Status); ok {
			entity.Fields[destination.FieldStatus] = string(status)
		} else if item.Status != "" {
			h.logger.Warn("unknown review status, leaving entity state unchanged",
				zap.String("status", item.Status),
				zap.String("key", entity.Key))
		}
	default:
		entity.Kind = destination.KindPaper
		if status, ok := NormalizePaperStatus(item.Status); ok {
			entity.Fields[destination.FieldStatus] = string(status)
		} else if item.Status != "" {
			h.logger.Warn("unknown paper status, leaving entity state unchanged",
				zap.String("status", item.Status),
				zap.String("key", entity.Key))
		}
	}

	entity.Fields[destination.FieldVenue] = item.Venue
	entity.Fields[destination.FieldVenueType] = item.VenueType
	entity.Fields[destination.FieldManuscriptID] = item.ManuscriptID
	entity.Fields[destination.FieldImportance] = rec.Importance
	entity.Fields[destination.FieldNeedsAction] = rec.NeedsAction
	entity.Fields[destination.FieldSummary] = rec.Summary
	entity.Fields[destination.FieldAccount] = msg.Account
	if item.Deadline != nil {
		entity.Fields[destination.FieldDeadline] = *item.Deadline
	}

	if err := h.dest.Upsert(ctx, entity); err != nil {
		return false, fmt.Errorf("academic upsert: %w", err)
	}
	if err := h.upsertMailLog(ctx, msg, coarse, rec); err != nil {
		return false, err
	}
	return true, nil
}

// entityKey prefers (venue, manuscript id); a message with neither falls
// back to the (account, subject-hash) key.
func (h *AcademicHandler) entityKey(msg mail.Message, item *classify.Item) string {
	if item.Venue != "" && item.ManuscriptID != "" {
		return AcademicKey(item.Venue, item.ManuscriptID)
	}
	return SubjectKey(msg.Account, msg.Subject)
}

func (h *AcademicHandler) upsertMailLog(ctx context.Context, msg mail.Message, coarse classify.Category, rec *classify.DeepRecord) error {
	if err := h.dest.Upsert(ctx, mailLogRecord(msg, coarse, rec)); err != nil {
		return fmt.Errorf("academic mail log: %w", err)
	}
	return nil
}
