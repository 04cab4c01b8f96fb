// Package dashboard serves live engine metrics over HTTP.
//
// It exposes:
//   - GET /api/metrics         current snapshot (JSON)
//   - GET /api/metrics/stream  SSE stream of snapshots
//
// CORS is open so a browser page on another origin can use EventSource.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/metrics"
)

// DefaultTick is the interval between streamed snapshots.
const DefaultTick = 500 * time.Millisecond

// ─── Data Types ───────────────────────────────────────────────────────────────

// ChallengeStats are the counters of one challenge kind.
type ChallengeStats struct {
	Detected uint64 `json:"detected"`
	Solved   uint64 `json:"solved"`
	Failed   uint64 `json:"failed"`
}

// MetricsSnapshot is the JSON payload served to dashboard clients.
type MetricsSnapshot struct {
	Timestamp       int64                     `json:"timestamp"`
	Total           uint64                    `json:"total"`
	Success         uint64                    `json:"success"`
	Failed          uint64                    `json:"failed"`
	RPS             float64                   `json:"rps"`
	Sessions        int                       `json:"sessions"`
	Challenges      map[string]ChallengeStats `json:"challenges"`
	LoopProtections uint64                    `json:"loop_protections"`
	AvgSolveMillis  int64                     `json:"avg_solve_ms"`
}

// ─── Server ───────────────────────────────────────────────────────────────────

// Server serves snapshots of a Metrics.
type Server struct {
	metrics  *metrics.Metrics
	sessions func() int
	log      *zap.Logger

	// Tick is the stream interval.  Zero means DefaultTick.
	Tick time.Duration

	subs   map[chan MetricsSnapshot]struct{}
	subsMu sync.Mutex

	mux *http.ServeMux
}

// New creates a Server for m.  sessions reports the live session count and
// may be nil.
func New(m *metrics.Metrics, sessions func() int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		metrics:  m,
		sessions: sessions,
		log:      log,
		subs:     make(map[chan MetricsSnapshot]struct{}),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/metrics", s.withCORS(s.handleMetrics))
	s.mux.HandleFunc("/api/metrics/stream", s.withCORS(s.handleMetricsStream))
	return s
}

// Handler returns the routes of s.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr (e.g. ":8080") until ctx ends, then shuts
// down within five seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go s.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("dashboard listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("dashboard: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// Run pushes a snapshot to every stream subscriber each Tick until ctx ends.
func (s *Server) Run(ctx context.Context) {
	tick := s.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		snap := s.Snapshot()
		s.subsMu.Lock()
		for ch := range s.subs {
			select {
			case ch <- snap:
			default:
			}
		}
		s.subsMu.Unlock()
	}
}

// Snapshot reads the current counters.
func (s *Server) Snapshot() MetricsSnapshot {
	total, success, failed := s.metrics.Snapshot()
	snap := MetricsSnapshot{
		Timestamp:       time.Now().UnixMilli(),
		Total:           total,
		Success:         success,
		Failed:          failed,
		RPS:             s.metrics.RequestsPerSecond(),
		Challenges:      make(map[string]ChallengeStats),
		LoopProtections: s.metrics.LoopProtections(),
		AvgSolveMillis:  s.metrics.AverageSolveTime().Milliseconds(),
	}
	if s.sessions != nil {
		snap.Sessions = s.sessions()
	}
	for kind, c := range s.metrics.Challenges() {
		if kind == challenge.None {
			continue
		}
		snap.Challenges[kind.String()] = ChallengeStats{Detected: c.Detected, Solved: c.Solved, Failed: c.Failed}
	}
	return snap
}

// ─── CORS middleware ──────────────────────────────────────────────────────────

func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// ─── /api/metrics ────────────────────────────────────────────────────────────

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		s.log.Debug("write metrics", zap.Error(err))
	}
}

// ─── /api/metrics/stream ─────────────────────────────────────────────────────

func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan MetricsSnapshot, 16)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	defer func() {
		s.subsMu.Lock()
		delete(s.subs, ch)
		s.subsMu.Unlock()
	}()

	// The first event goes out immediately.
	if err := sseWrite(w, s.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			if err := sseWrite(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sseWrite(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
