package observability

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", 200, time.Millisecond)
	m.APIInflightInc()
	m.APIInflightDec()
	m.ObserveLLMRequest("m", "responses", "200", time.Second, 1, 2)
	m.JobFinished("course_outline", "succeeded", time.Second)
	m.CreditsConsumed("quiz_generation", 5)
	m.CreditsDenied("quiz_generation")
	m.StreamFinished("end")
	m.Dispatched("quiz_generation", "accepted")
	m.StartJobQueueCollector(context.Background(), nil, nil, time.Second)
	assert.Nil(t, m.Registry())
}

func TestMetricsCountersAndExposition(t *testing.T) {
	m := NewMetrics()
	m.CreditsConsumed("course_outline", 10)
	m.CreditsConsumed("course_outline", 10)
	m.CreditsConsumed("chat_stream", 0)
	m.CreditsDenied("lesson_stream")
	m.JobFinished("quiz_generation", "retrying", 2*time.Second)
	m.ObserveAPI("POST", "/api/generate/:kind", 202, 10*time.Millisecond)

	assert.Equal(t, 20.0, testutil.ToFloat64(m.creditsConsumed.WithLabelValues("course_outline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.creditsDenied.WithLabelValues("lesson_stream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("quiz_generation", "retrying")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "coursebuilder_credits_consumed_total"))
	assert.True(t, strings.Contains(body, `coursebuilder_api_requests_total{method="POST",route="/api/generate/:kind",status="202"} 1`))
}

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, parseHeaders(""))
	assert.Nil(t, parseHeaders("novalue, =x"))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, parseHeaders(" a=1 ,b=2,c"))
}

func TestInitOTelDisabledReturnsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), nil, OtelConfig{})
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
