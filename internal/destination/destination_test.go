package destination

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertMergesOnKey(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, Record{
		Kind:   KindPaper,
		Key:    "IEEE TGRS/TGRS-2024-1234",
		Title:  "Deep Learning for SAR",
		Fields: map[string]any{FieldStatus: "Submitted"},
	}))
	require.NoError(t, m.Upsert(ctx, Record{
		Kind:   KindPaper,
		Key:    "IEEE TGRS/TGRS-2024-1234",
		Fields: map[string]any{FieldStatus: "Major Revision", FieldDeadline: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)},
	}))

	assert.Equal(t, 1, m.Count(KindPaper), "same key must update one entity")
	assert.Equal(t, 2, m.Upserts())

	rec, ok := m.Get(KindPaper, "IEEE TGRS/TGRS-2024-1234")
	require.True(t, ok)
	assert.Equal(t, "Deep Learning for SAR", rec.Title, "title survives field-only update")
	assert.Equal(t, "Major Revision", rec.Fields[FieldStatus])
}

func TestMemory_DistinctKeysDistinctEntities(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, Record{Kind: KindPaper, Key: "a"}))
	require.NoError(t, m.Upsert(ctx, Record{Kind: KindPaper, Key: "b"}))
	require.NoError(t, m.Upsert(ctx, Record{Kind: KindReview, Key: "a"}))

	assert.Equal(t, 2, m.Count(KindPaper))
	assert.Equal(t, 1, m.Count(KindReview), "keys are scoped per kind")
}

func TestNoOp_Discards(t *testing.T) {
	var n NoOp
	assert.NoError(t, n.Upsert(context.Background(), Record{Kind: KindMailLog, Key: "x"}))
}

func TestBuildProperties(t *testing.T) {
	deadline := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	props := buildProperties(Record{
		Kind:  KindPaper,
		Key:   "IEEE TGRS/TGRS-2024-1234",
		Title: "Deep Learning for SAR",
		Fields: map[string]any{
			FieldStatus:      "Major Revision",
			FieldImportance:  4,
			FieldNeedsAction: true,
			FieldDeadline:    deadline,
			FieldSummary:     "Revise by mid February.",
			FieldVenue:       "IEEE TGRS",
			FieldSender:      "", // empty strings are dropped
		},
	})

	title, ok := props[titleProperty].(notionapi.TitleProperty)
	require.True(t, ok)
	require.Len(t, title.Title, 1)
	assert.Equal(t, "Deep Learning for SAR", title.Title[0].Text.Content)

	key, ok := props[keyProperty].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "IEEE TGRS/TGRS-2024-1234", key.RichText[0].Text.Content)

	status, ok := props[FieldStatus].(notionapi.SelectProperty)
	require.True(t, ok)
	assert.Equal(t, "Major Revision", status.Select.Name)

	imp, ok := props[FieldImportance].(notionapi.NumberProperty)
	require.True(t, ok)
	assert.Equal(t, float64(4), imp.Number)

	na, ok := props[FieldNeedsAction].(notionapi.CheckboxProperty)
	require.True(t, ok)
	assert.True(t, na.Checkbox)

	date, ok := props[FieldDeadline].(notionapi.DateProperty)
	require.True(t, ok)
	require.NotNil(t, date.Date.Start)

	_, ok = props[FieldSender]
	assert.False(t, ok, "empty string fields are omitted")

	summary, ok := props[FieldSummary].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "Revise by mid February.", summary.RichText[0].Text.Content)
}

func TestBuildProperties_TruncatesLongText(t *testing.T) {
	props := buildProperties(Record{
		Kind:   KindMailLog,
		Key:    "k",
		Title:  strings.Repeat("t", 5000),
		Fields: map[string]any{FieldSummary: strings.Repeat("s", 5000)},
	})

	title := props[titleProperty].(notionapi.TitleProperty)
	assert.Len(t, title.Title[0].Text.Content, notionTextLimit)
	summary := props[FieldSummary].(notionapi.RichTextProperty)
	assert.Len(t, summary.RichText[0].Text.Content, notionTextLimit)
}
