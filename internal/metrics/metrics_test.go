package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsCounter(t *testing.T) {
	m := New("")

	m.ObserveUpdate(OutcomeSucceeded, 10*time.Millisecond)
	m.ObserveUpdate(OutcomeSucceeded, 20*time.Millisecond)
	m.ObserveUpdate(OutcomeFailed, 5*time.Millisecond)
	m.AddRecords(OutcomeDropped, 3)
	m.AddRecords(OutcomeDropped, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Records.WithLabelValues(OutcomeSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Records.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Records.WithLabelValues(OutcomeDropped)))
}

func TestFinishRun(t *testing.T) {
	m := New("test")

	m.FinishRun(2*time.Second, false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunDuration))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastSuccess))

	m.FinishRun(time.Second, true)
	assert.Greater(t, testutil.ToFloat64(m.LastSuccess), 0.0)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUpdate(OutcomeSucceeded, time.Second)
	m.ObserveFetch(time.Second)
	m.AddRecords(OutcomeDropped, 1)
	m.IncRunFatal("fetch")
	m.FinishRun(time.Second, true)
	assert.NoError(t, m.Push(context.Background(), Config{PushgatewayURL: "http://unused"}))
}

func TestPush(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		body = string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New("")
	m.ObserveUpdate(OutcomeSucceeded, time.Millisecond)

	err := m.Push(context.Background(), Config{PushgatewayURL: srv.URL, Job: "email_rename", Mode: "token"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/metrics/job/email_rename/mode/token", path)
	assert.NotEmpty(t, body)
}

func TestPush_NoURL(t *testing.T) {
	m := New("")
	assert.NoError(t, m.Push(context.Background(), Config{}))
}

func TestPush_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New("").Push(context.Background(), Config{PushgatewayURL: srv.URL, Job: "j"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), srv.URL))
}
