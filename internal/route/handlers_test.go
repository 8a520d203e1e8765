package route

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yuqing-ac/mailtriage/internal/billing"
	"github.com/yuqing-ac/mailtriage/internal/classify"
	"github.com/yuqing-ac/mailtriage/internal/destination"
	"github.com/yuqing-ac/mailtriage/internal/mail"
)

func paperRecord(status string, deadline *time.Time) *classify.DeepRecord {
	return &classify.DeepRecord{
		Category:    classify.CategoryPaper,
		Importance:  4,
		NeedsAction: true,
		Summary:     "Major revision requested.",
		Item: &classify.Item{
			Type:         classify.ItemPaper,
			VenueType:    "journal",
			ManuscriptID: "TGRS-2024-1234",
			Title:        "Deep Learning for SAR",
			Venue:        "IEEE TGRS",
			Status:       status,
			Deadline:     deadline,
		},
	}
}

func tgrsMessage() mail.Message {
	return mail.Message{
		Account:   "work",
		UID:       7,
		MessageID: "<decision@tgrs>",
		Subject:   "TGRS Decision: Major Revision Required",
		Sender:    "tgrs@ieee.org",
		Date:      time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
	}
}

func TestAcademicHandler_MajorRevisionUpsert(t *testing.T) {
	dest := destination.NewMemory()
	h := NewAcademicHandler(dest, zaptest.NewLogger(t))

	deadline := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	synced, err := h.Handle(context.Background(), tgrsMessage(), classify.CategoryPaper, paperRecord("major revision", &deadline))
	require.NoError(t, err)
	assert.True(t, synced)

	entity, ok := dest.Get(destination.KindPaper, "IEEE TGRS/TGRS-2024-1234")
	require.True(t, ok, "entity keyed by (venue, manuscript id)")
	assert.Equal(t, "Deep Learning for SAR", entity.Title)
	assert.Equal(t, string(PaperMajorRevision), entity.Fields[destination.FieldStatus])
	assert.Equal(t, deadline, entity.Fields[destination.FieldDeadline])
	assert.Equal(t, 4, entity.Fields[destination.FieldImportance])
	assert.Equal(t, true, entity.Fields[destination.FieldNeedsAction])

	// The message itself lands in the mail log too.
	assert.Equal(t, 1, dest.Count(destination.KindMailLog))
}

func TestAcademicHandler_DedupOnManuscriptKey(t *testing.T) {
	dest := destination.NewMemory()
	h := NewAcademicHandler(dest, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := h.Handle(ctx, tgrsMessage(), classify.CategoryPaper, paperRecord("submitted", nil))
	require.NoError(t, err)

	later := tgrsMessage()
	later.MessageID = "<decision2@tgrs>"
	later.Subject = "TGRS-2024-1234: decision available"
	_, err = h.Handle(ctx, later, classify.CategoryPaper, paperRecord("accepted", nil))
	require.NoError(t, err)

	assert.Equal(t, 1, dest.Count(destination.KindPaper), "same (venue, manuscript id) updates one entity")
	entity, _ := dest.Get(destination.KindPaper, "IEEE TGRS/TGRS-2024-1234")
	assert.Equal(t, string(PaperAccepted), entity.Fields[destination.FieldStatus])
}

func TestAcademicHandler_UnknownStatusOmitted(t *testing.T) {
	dest := destination.NewMemory()
	h := NewAcademicHandler(dest, zaptest.NewLogger(t))

	_, err := h.Handle(context.Background(), tgrsMessage(), classify.CategoryPaper, paperRecord("awaiting proofs from typesetter", nil))
	require.NoError(t, err)

	entity, ok := dest.Get(destination.KindPaper, "IEEE TGRS/TGRS-2024-1234")
	require.True(t, ok)
	_, hasStatus := entity.Fields[destination.FieldStatus]
	assert.False(t, hasStatus, "unknown status must not overwrite entity state")
}

func TestAcademicHandler_FallbackKeyWithoutManuscriptID(t *testing.T) {
	dest := destination.NewMemory()
	h := NewAcademicHandler(dest, zaptest.NewLogger(t))

	rec := paperRecord("under review", nil)
	rec.Item.ManuscriptID = ""
	msg := tgrsMessage()

	_, err := h.Handle(context.Background(), msg, classify.CategoryPaper, rec)
	require.NoError(t, err)

	_, ok := dest.Get(destination.KindPaper, SubjectKey("work", msg.Subject))
	assert.True(t, ok, "entity falls back to the (account, subject-hash) key")
}

func TestAcademicHandler_ReviewLifecycle(t *testing.T) {
	dest := destination.NewMemory()
	h := NewAcademicHandler(dest, zaptest.NewLogger(t))
	ctx := context.Background()

	rec := &classify.DeepRecord{
		Category:   classify.CategoryReview,
		Importance: 3,
		Item: &classify.Item{
			Type:         classify.ItemReview,
			ManuscriptID: "JSTARS-2025-0042",
			Venue:        "IEEE JSTARS",
			Title:        "Review assignment JSTARS-2025-0042",
			Status:       "invitation to review",
		},
	}
	msg := tgrsMessage()
	msg.Subject = "Invitation to review JSTARS-2025-0042"

	_, err := h.Handle(ctx, msg, classify.CategoryReview, rec)
	require.NoError(t, err)

	entity, ok := dest.Get(destination.KindReview, "IEEE JSTARS/JSTARS-2025-0042")
	require.True(t, ok)
	assert.Equal(t, string(ReviewInvited), entity.Fields[destination.FieldStatus])

	rec.Item.Status = "review completed"
	_, err = h.Handle(ctx, msg, classify.CategoryReview, rec)
	require.NoError(t, err)

	entity, _ = dest.Get(destination.KindReview, "IEEE JSTARS/JSTARS-2025-0042")
	assert.Equal(t, string(ReviewCompleted), entity.Fields[destination.FieldStatus])
	assert.Equal(t, 1, dest.Count(destination.KindReview))
}

func TestAcademicHandler_NoItemLogsMailOnly(t *testing.T) {
	dest := destination.NewMemory()
	h := NewAcademicHandler(dest, zaptest.NewLogger(t))

	rec := &classify.DeepRecord{Category: classify.CategoryPaper, Importance: 3}
	synced, err := h.Handle(context.Background(), tgrsMessage(), classify.CategoryPaper, rec)
	require.NoError(t, err)
	assert.True(t, synced)
	assert.Equal(t, 0, dest.Count(destination.KindPaper))
	assert.Equal(t, 1, dest.Count(destination.KindMailLog))
}

func TestGeneralHandler_MailLog(t *testing.T) {
	dest := destination.NewMemory()
	h := NewGeneralHandler(dest, false, zaptest.NewLogger(t))

	msg := mail.Message{Account: "work", Subject: "Library closure notice", Sender: "lib@uni.edu"}
	synced, err := h.Handle(context.Background(), msg, classify.CategoryNotice, nil)
	require.NoError(t, err)
	assert.True(t, synced)

	entity, ok := dest.Get(destination.KindMailLog, SubjectKey("work", msg.Subject))
	require.True(t, ok)
	assert.Equal(t, "NOTICE", entity.Fields[destination.FieldCategory])
	assert.Equal(t, 2, entity.Fields[destination.FieldImportance], "no deep record means default low importance")
}

func TestGeneralHandler_SpamDrop(t *testing.T) {
	msg := mail.Message{Account: "work", Subject: "Order reprints of your article", Sender: "sales@x.com"}
	rec := &classify.DeepRecord{Category: classify.CategoryNoise, Importance: 1, Spam: true}

	// dropSpam on: record discarded, not synced, no error.
	dest := destination.NewMemory()
	h := NewGeneralHandler(dest, true, zaptest.NewLogger(t))
	synced, err := h.Handle(context.Background(), msg, classify.CategoryPaper, rec)
	require.NoError(t, err)
	assert.False(t, synced)
	assert.Equal(t, 0, dest.Upserts())

	// dropSpam off: logged as a low-priority noise record.
	dest = destination.NewMemory()
	h = NewGeneralHandler(dest, false, zaptest.NewLogger(t))
	synced, err = h.Handle(context.Background(), msg, classify.CategoryPaper, rec)
	require.NoError(t, err)
	assert.True(t, synced)
	entity, ok := dest.Get(destination.KindMailLog, SubjectKey("work", msg.Subject))
	require.True(t, ok)
	assert.Equal(t, "NOISE", entity.Fields[destination.FieldCategory])
	assert.Equal(t, 1, entity.Fields[destination.FieldImportance])
}

func TestBillingHandler_ParsesAndPersists(t *testing.T) {
	dest := destination.NewMemory()
	store, err := billing.Open(t.TempDir() + "/billing.db")
	require.NoError(t, err)
	defer store.Close()
	h := NewBillingHandler(store, dest, zaptest.NewLogger(t))

	msg := mail.Message{
		Account: "personal",
		Subject: "Your AWS bill for 2025-01",
		Sender:  "billing@aws.amazon.com",
		Date:    time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		Body:    "Amount due: USD 42.50. Payment due by 2025-02-01.",
	}
	synced, err := h.Handle(context.Background(), msg, classify.CategoryBilling, nil)
	require.NoError(t, err)
	assert.True(t, synced)

	entity, ok := dest.Get(destination.KindBilling, "aws.amazon.com/2025-01")
	require.True(t, ok)
	assert.InDelta(t, 42.50, entity.Fields[destination.FieldAmount].(float64), 0.001)
	assert.Equal(t, "USD", entity.Fields[destination.FieldCurrency])
	assert.Equal(t, false, entity.Fields[destination.FieldNeedsAction])

	item, err := store.GetOrCreateItem(context.Background(), "aws.amazon.com", "USD")
	require.NoError(t, err)
	recs, err := store.RecordsForItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2025-01", recs[0].Period)
	require.NotNil(t, recs[0].DueDate)
}

func TestBillingHandler_FailureLanguageSetsNeedsAction(t *testing.T) {
	dest := destination.NewMemory()
	h := NewBillingHandler(nil, dest, zaptest.NewLogger(t))

	msg := mail.Message{
		Account: "personal",
		Subject: "Action required: payment failed",
		Sender:  "billing@cloud.example",
		Date:    time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		Body:    "We were unable to process your payment of $9.99.",
	}
	// Even if the model saw no urgency, failure language drives needsAction.
	rec := &classify.DeepRecord{Category: classify.CategoryBilling, Importance: 2, NeedsAction: false}
	synced, err := h.Handle(context.Background(), msg, classify.CategoryBilling, rec)
	require.NoError(t, err)
	assert.True(t, synced)

	entity, ok := dest.Get(destination.KindBilling, "cloud.example/2025-01")
	require.True(t, ok)
	assert.Equal(t, true, entity.Fields[destination.FieldNeedsAction])
}

func TestBillingHandler_ItemNamePrefersVenue(t *testing.T) {
	h := NewBillingHandler(nil, destination.NewMemory(), zaptest.NewLogger(t))

	msg := mail.Message{Sender: "noreply@stripe.com"}
	assert.Equal(t, "Acme SaaS", h.itemName(msg, &classify.DeepRecord{Venue: "Acme SaaS"}))
	assert.Equal(t, "stripe.com", h.itemName(msg, nil))
	assert.Equal(t, "unknown", h.itemName(mail.Message{}, nil))
}
