package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewIsSingleton(t *testing.T) {
	assert.Same(t, New(), New())
}

func TestRecordHelpers(t *testing.T) {
	m := New()

	m.RecordMessage("PAPER", "committed")
	m.RecordMessage("PAPER", "committed")
	m.RecordLLMCall("coarse", "ok", 0.3)
	m.RecordSync("ok")
	m.RecordNotification("ok")
	m.RecordTick("ok", 1.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("PAPER", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCallsTotal.WithLabelValues("coarse", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("ok")))
}

func TestRecordLLMBatch(t *testing.T) {
	m := New()

	okBefore := testutil.ToFloat64(m.LLMCallsTotal.WithLabelValues("coarse", "ok"))
	errBefore := testutil.ToFloat64(m.LLMCallsTotal.WithLabelValues("coarse", "error"))

	m.RecordLLMBatch("coarse", 2, 1, 0.8)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(m.LLMCallsTotal.WithLabelValues("coarse", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(m.LLMCallsTotal.WithLabelValues("coarse", "error")))
}
