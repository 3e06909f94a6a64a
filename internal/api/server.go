// Package api exposes the read-mostly HTTP status/control surface
// described in SPEC_FULL.md §6, built on net/http.ServeMux's
// method-pattern routing the way the teacher's own server.go routes
// requests.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scholargate/scholargate/internal/orchestrator"
	"github.com/scholargate/scholargate/internal/types"
)

// Orchestrator is the subset of orchestrator.Orchestrator the API
// surface depends on, kept narrow so tests can stub it.
type Orchestrator interface {
	Status() orchestrator.Status
	RunAllNow(ctx context.Context) (*orchestrator.RunSummary, error)
	RunSource(ctx context.Context, sourceID string) (*types.ScrapeJob, error)
	RecentJobs(sourceID string) []*types.ScrapeJob
	ResetBreakers()
}

// Server serves the status/control API described in SPEC_FULL.md §6.
type Server struct {
	mux    *http.ServeMux
	addr   string
	logger *slog.Logger
	orch   Orchestrator

	callerLimitMu sync.Mutex
	callerLimits  map[string]*rate.Limiter
	callerRate    rate.Limit
	callerBurst   int
}

// NewServer builds a Server bound to addr, dispatching trigger
// endpoints through orch. callerLimit/callerWindow configure the
// outer caller-facing rate limit on trigger endpoints (spec.md §6:
// default 10 calls/hour/caller).
func NewServer(addr string, orch Orchestrator, callerLimit int, callerWindow time.Duration, logger *slog.Logger) *Server {
	if callerLimit < 1 {
		callerLimit = 10
	}
	if callerWindow <= 0 {
		callerWindow = time.Hour
	}
	s := &Server{
		mux:          http.NewServeMux(),
		addr:         addr,
		logger:       logger.With("component", "api_server"),
		orch:         orch,
		callerLimits: make(map[string]*rate.Limiter),
		callerRate:   rate.Every(callerWindow / time.Duration(callerLimit)),
		callerBurst:  callerLimit,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /breakers", s.handleBreakers)
	s.mux.HandleFunc("POST /breakers/reset", s.withCallerLimit(s.handleBreakersReset))
	s.mux.HandleFunc("POST /jobs/runAll", s.withCallerLimit(s.handleRunAll))
	s.mux.HandleFunc("POST /jobs/run/{sourceId}", s.withCallerLimit(s.handleRunSource))
	s.mux.HandleFunc("GET /jobs/recent", s.handleJobsRecent)
}

// Start begins serving in a background goroutine, mirroring the
// teacher's fire-and-forget ListenAndServe pattern.
func (s *Server) Start() error {
	s.logger.Info("status API starting", "addr", s.addr)
	go func() {
		if err := http.ListenAndServe(s.addr, s.mux); err != nil {
			s.logger.Error("status API error", "error", err)
		}
	}()
	return nil
}

// envelope is the {success, timestamp, ...} response shape of
// spec.md §6.
type envelope struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

func (s *Server) writeOK(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Timestamp: time.Now().UTC().Format(time.RFC3339), Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Timestamp: time.Now().UTC().Format(time.RFC3339), Error: msg, Code: code})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeOK(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	status := s.orch.Status()
	breakers := make([]types.BreakerState, 0, len(status.Sources))
	for _, src := range status.Sources {
		breakers = append(breakers, src.Breaker)
	}
	s.writeOK(w, http.StatusOK, breakers)
}

func (s *Server) handleBreakersReset(w http.ResponseWriter, r *http.Request) {
	s.orch.ResetBreakers()
	s.writeOK(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	summary, err := s.orch.RunAllNow(r.Context())
	if err != nil {
		s.writeError(w, http.StatusConflict, "run_all_in_flight", err.Error())
		return
	}
	s.writeOK(w, http.StatusAccepted, summary)
}

func (s *Server) handleRunSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sourceId")
	job, err := s.orch.RunSource(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown_source", err.Error())
		return
	}
	s.writeOK(w, http.StatusAccepted, job)
}

func (s *Server) handleJobsRecent(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("source")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing_source", "source query parameter is required")
		return
	}
	s.writeOK(w, http.StatusOK, s.orch.RecentJobs(id))
}

// withCallerLimit wraps a trigger handler with the outer caller-facing
// rate limit (spec.md §6), keyed by the caller's remote IP, returning
// 429 with Retry-After when exceeded — grounded on
// internal/fetcher/http.go's own parseRetryAfter/429 idiom, applied in
// the opposite direction.
func (s *Server) withCallerLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerKey(r)
		limiter := s.limiterFor(caller)
		if !limiter.Allow() {
			retryAfter := int(1 / float64(s.callerRate))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			s.writeError(w, http.StatusTooManyRequests, "rate_limited", "trigger rate limit exceeded for this caller")
			return
		}
		next(w, r)
	}
}

func (s *Server) limiterFor(caller string) *rate.Limiter {
	s.callerLimitMu.Lock()
	defer s.callerLimitMu.Unlock()
	l, ok := s.callerLimits[caller]
	if !ok {
		l = rate.NewLimiter(s.callerRate, s.callerBurst)
		s.callerLimits[caller] = l
	}
	return l
}

func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
