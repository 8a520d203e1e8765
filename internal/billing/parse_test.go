package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mailDate = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func TestParseStatement_Amount(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		amount   float64
		currency string
	}{
		{name: "dollar sign", text: "Your payment of $12.34 is due", amount: 12.34, currency: "USD"},
		{name: "code before", text: "Total: USD 1,234.56", amount: 1234.56, currency: "USD"},
		{name: "yen sign", text: "本月账单 ¥128.00", amount: 128, currency: "CNY"},
		{name: "amount then yuan", text: "应付金额 99.50 元", amount: 99.5, currency: "CNY"},
		{name: "euro", text: "Invoice total €45", amount: 45, currency: "EUR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := ParseStatement("subject", tt.text, mailDate)
			require.NotNil(t, st.Amount)
			assert.InDelta(t, tt.amount, *st.Amount, 0.001)
			assert.Equal(t, tt.currency, st.Currency)
		})
	}
}

func TestParseStatement_NoAmount(t *testing.T) {
	st := ParseStatement("Your statement is ready", "View your statement online.", mailDate)
	assert.Nil(t, st.Amount, "no figure means no amount, never a guess")
	assert.Empty(t, st.Currency)
}

func TestParseStatement_DueDate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{name: "iso", text: "Payment due by 2025-02-01", want: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{name: "cjk", text: "请在 2025年2月1日 前完成支付，到期 2025年2月1日", want: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{name: "long form", text: "Due date: February 1, 2025", want: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := ParseStatement("s", tt.text, mailDate)
			require.NotNil(t, st.DueDate)
			assert.Equal(t, tt.want, *st.DueDate)
		})
	}
}

func TestParseStatement_Period(t *testing.T) {
	st := ParseStatement("2025年1月账单", "", mailDate)
	assert.Equal(t, "2025-01", st.Period)

	st = ParseStatement("Your 2024-12 statement", "", mailDate)
	assert.Equal(t, "2024-12", st.Period)

	// No explicit period: fall back to the mail's month.
	st = ParseStatement("Your bill is ready", "", mailDate)
	assert.Equal(t, "2025-01", st.Period)

	// A due date is not a billing period.
	st = ParseStatement("Bill", "Payment due by 2025-03-15", mailDate)
	assert.Equal(t, "2025-01", st.Period)
}

func TestParseStatement_Failure(t *testing.T) {
	failed := []string{
		"Your payment failed. Please update your card.",
		"We were unable to process your payment.",
		"您的订阅扣款失败，请检查余额",
	}
	for _, text := range failed {
		st := ParseStatement("s", text, mailDate)
		assert.True(t, st.Failed, text)
	}

	st := ParseStatement("Receipt", "Payment of $10 received. Thank you!", mailDate)
	assert.False(t, st.Failed)
}

func TestStore_GetOrCreateItem(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.GetOrCreateItem(ctx, "AWS", "USD")
	require.NoError(t, err)

	b, err := s.GetOrCreateItem(ctx, "AWS", "USD")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID, "same name resolves to one item")

	c, err := s.GetOrCreateItem(ctx, "Cloud Disk", "CNY")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestStore_UpsertRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := s.GetOrCreateItem(ctx, "AWS", "USD")
	require.NoError(t, err)

	due := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.UpsertRecord(ctx, item.ID, "2025-01", 12.34, &due, false)
	require.NoError(t, err)

	// A follow-up mail for the same period overwrites, not duplicates.
	rec, err := s.UpsertRecord(ctx, item.ID, "2025-01", 15.00, nil, true)
	require.NoError(t, err)
	assert.True(t, rec.Failed)
	assert.InDelta(t, 15.00, rec.Amount, 0.001)
	require.NotNil(t, rec.DueDate, "nil due date keeps the previous value")

	recs, err := s.RecordsForItem(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	_, err = s.UpsertRecord(ctx, item.ID, "2025-02", 12.34, nil, false)
	require.NoError(t, err)
	recs, err = s.RecordsForItem(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2025-02", recs[0].Period, "newest period first")
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/billing.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
