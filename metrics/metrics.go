package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"monologue/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "monologue"

// Backend calls (recorded by the API client).
var (
	BackendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Backend API requests by operation and status code.",
	}, []string{"op", "status_code"})

	BackendRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Backend API request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)

// Streaming pipeline.
var (
	StreamFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_frames_total",
		Help:      "PCM frames handed to the transcription socket, by result.",
	}, []string{"result"})

	StreamTurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_turns_total",
		Help:      "Transcript turns received, by kind.",
	}, []string{"kind"})

	StreamErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_errors_total",
		Help:      "Streaming connection failures.",
	})
)

// Session lifecycle.
var (
	SessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Recording sessions by outcome.",
	}, []string{"outcome"})

	SuggestionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "suggestions_total",
		Help:      "Topic suggestion requests by source and result.",
	}, []string{"source", "result"})

	WatchdogLimitTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watchdog_limit_total",
		Help:      "Sessions auto-stopped at the maximum duration.",
	})
)

func init() {
	prometheus.MustRegister(
		BackendRequestsTotal,
		BackendRequestDuration,
		StreamFramesTotal,
		StreamTurnsTotal,
		StreamErrorsTotal,
		SessionsTotal,
		SuggestionsTotal,
		WatchdogLimitTotal,
	)
}

// ObserveRequest records one backend call. status 0 means a transport error.
func ObserveRequest(op string, status int, d time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	BackendRequestsTotal.WithLabelValues(op, code).Inc()
	BackendRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

func Frame(sent bool) {
	if sent {
		StreamFramesTotal.WithLabelValues("sent").Inc()
	} else {
		StreamFramesTotal.WithLabelValues("dropped").Inc()
	}
}

func Turn(final bool) {
	if final {
		StreamTurnsTotal.WithLabelValues("final").Inc()
	} else {
		StreamTurnsTotal.WithLabelValues("partial").Inc()
	}
}

// Server exposes /metrics on a local listener.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("metrics server: %v", err)
		}
	}()
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
