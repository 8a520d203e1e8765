package route

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yuqing-ac/mailtriage/internal/billing"
	"github.com/yuqing-ac/mailtriage/internal/classify"
	"github.com/yuqing-ac/mailtriage/internal/destination"
	"github.com/yuqing-ac/mailtriage/internal/mail"
)

// BillingHandler parses statements out of billing mail, persists item/period
// records locally and mirrors them to the billing destination. needsAction
// on a billing record is driven solely by payment-failure language, not by
// the model's flag.
type BillingHandler struct {
	store  *billing.Store // nil disables local persistence
	dest   destination.Destination
	logger *zap.Logger
}

// NewBillingHandler creates the handler.
func NewBillingHandler(store *billing.Store, dest destination.Destination, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{store: store, dest: dest, logger: logger}
}

func (h *BillingHandler) Name() string { return "billing" }

func (h *BillingHandler) Handle(ctx context.Context, msg mail.Message, coarse classify.Category, rec *classify.DeepRecord) (bool, error) {
	st := billing.ParseStatement(msg.Subject, msg.Body, msg.Date)
	name := h.itemName(msg, rec)

	amount := 0.0
	if st.Amount != nil {
		amount = *st.Amount
	}

	if h.store != nil {
		item, err := h.store.GetOrCreateItem(ctx, name, st.Currency)
		if err != nil {
			return false, fmt.Errorf("billing handler: %w", err)
		}
		if _, err := h.store.UpsertRecord(ctx, item.ID, st.Period, amount, st.DueDate, st.Failed); err != nil {
			return false, fmt.Errorf("billing handler: %w", err)
		}
	}

	fields := map[string]any{
		destination.FieldPeriod:      st.Period,
		destination.FieldCurrency:    st.Currency,
		destination.FieldNeedsAction: st.Failed,
		destination.FieldAccount:     msg.Account,
		destination.FieldSender:      msg.Sender,
	}
	if st.Amount != nil {
		fields[destination.FieldAmount] = *st.Amount
	}
	if st.DueDate != nil {
		fields[destination.FieldDueDate] = *st.DueDate
	}
	if rec != nil {
		fields[destination.FieldSummary] = rec.Summary
		fields[destination.FieldImportance] = rec.Importance
	}

	err := h.dest.Upsert(ctx, destination.Record{
		Kind:   destination.KindBilling,
		Key:    name + "/" + st.Period,
		Title:  name + " " + st.Period,
		Fields: fields,
	})
	if err != nil {
		return false, fmt.Errorf("billing upsert: %w", err)
	}

	if st.Failed {
		h.logger.Info("payment failure detected",
			zap.String("item", name),
			zap.String("period", st.Period),
			zap.String("account", msg.Account))
	}
	return true, nil
}

// itemName picks the billable item's identity: the extracted venue/org name
// when deep analysis saw one, else the sender's domain.
func (h *BillingHandler) itemName(msg mail.Message, rec *classify.DeepRecord) string {
	if rec != nil && rec.Venue != "" {
		return rec.Venue
	}
	if at := strings.LastIndexByte(msg.Sender, '@'); at >= 0 && at+1 < len(msg.Sender) {
		return msg.Sender[at+1:]
	}
	if msg.Sender != "" {
		return msg.Sender
	}
	return "unknown"
}
