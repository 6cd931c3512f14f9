package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("finalize", "200"))
	ObserveRequest("finalize", 200, 30*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("finalize", "200")))

	before = testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("finalize", "error"))
	ObserveRequest("finalize", 0, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("finalize", "error")))
}

func TestFrameAndTurnCounters(t *testing.T) {
	sent := testutil.ToFloat64(StreamFramesTotal.WithLabelValues("sent"))
	dropped := testutil.ToFloat64(StreamFramesTotal.WithLabelValues("dropped"))
	Frame(true)
	Frame(false)
	Frame(false)
	assert.Equal(t, sent+1, testutil.ToFloat64(StreamFramesTotal.WithLabelValues("sent")))
	assert.Equal(t, dropped+2, testutil.ToFloat64(StreamFramesTotal.WithLabelValues("dropped")))

	final := testutil.ToFloat64(StreamTurnsTotal.WithLabelValues("final"))
	Turn(true)
	assert.Equal(t, final+1, testutil.ToFloat64(StreamTurnsTotal.WithLabelValues("final")))
}

func TestListenServesMetrics(t *testing.T) {
	srv, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close(context.Background())

	WatchdogLimitTotal.Inc()
	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "monologue_watchdog_limit_total"))
}
