package scheduler_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/firasghr/GoChallengeEngine/config"
	"github.com/firasghr/GoChallengeEngine/metrics"
	"github.com/firasghr/GoChallengeEngine/scheduler"
	"github.com/firasghr/GoChallengeEngine/session"
)

func newManager(t *testing.T, sessions int, m *metrics.Metrics) *session.SessionManager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DoubleDown = false
	var opts session.Options
	if m != nil {
		opts.Observer = m
	}
	sm := session.NewSessionManager(cfg, opts)
	require.NoError(t, sm.CreateSessions(context.Background(), sessions, nil))
	t.Cleanup(sm.StopAll)
	return sm
}

func TestDispatch_ResultsInOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "page "+strings.TrimPrefix(r.URL.Path, "/"))
	}))
	defer ts.Close()

	m := metrics.NewMetrics()
	sc := scheduler.NewScheduler(newManager(t, 3, m), 4, m, zaptest.NewLogger(t))

	var urls []string
	for i := 0; i < 20; i++ {
		urls = append(urls, fmt.Sprintf("%s/%d", ts.URL, i))
	}
	urls = append(urls, ts.URL+"/missing")

	results, err := sc.Dispatch(context.Background(), http.MethodGet, urls)
	require.NoError(t, err)
	require.Len(t, results, len(urls))

	for i := 0; i < 20; i++ {
		r := results[i]
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Job.Index)
		assert.Equal(t, http.StatusOK, r.Status)
		assert.Equal(t, fmt.Sprintf("page %d", i), string(r.Body))
		assert.GreaterOrEqual(t, r.SessionID, 0)
		assert.Less(t, r.SessionID, 3)
	}
	assert.Equal(t, http.StatusNotFound, results[20].Status)

	total, success, failed := m.Snapshot()
	assert.Equal(t, uint64(21), total)
	assert.Equal(t, uint64(20), success)
	assert.Equal(t, uint64(1), failed)
}

func TestDispatch_MaxBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer ts.Close()

	sc := scheduler.NewScheduler(newManager(t, 1, nil), 1, nil, nil)
	sc.MaxBody = 10
	results, err := sc.Dispatch(context.Background(), http.MethodGet, []string{ts.URL})
	require.NoError(t, err)
	assert.Len(t, results[0].Body, 10)
}

func TestDispatch_TransportErrors(t *testing.T) {
	m := metrics.NewMetrics()
	sc := scheduler.NewScheduler(newManager(t, 2, m), 2, m, nil)

	results, err := sc.Dispatch(context.Background(), http.MethodGet, []string{"http://127.0.0.1:1/", "://bad"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
	_, _, failed := m.Snapshot()
	assert.Equal(t, uint64(2), failed)
}

func TestDispatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := scheduler.NewScheduler(newManager(t, 1, nil), 1, nil, nil)
	results, err := sc.Dispatch(ctx, http.MethodGet, []string{"http://127.0.0.1:1/a", "http://127.0.0.1:1/b"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled, "result %d", i)
		assert.Equal(t, i, r.Job.Index)
	}
}

func TestDispatch_NoSessions(t *testing.T) {
	sm := session.NewSessionManager(config.DefaultConfig(), session.Options{})
	sc := scheduler.NewScheduler(sm, 1, nil, nil)
	_, err := sc.Dispatch(context.Background(), http.MethodGet, []string{"http://127.0.0.1:1/"})
	assert.Error(t, err)
}
