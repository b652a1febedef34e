// Package admin exposes the scanner's operational HTTP API: live run
// status, balance-source health, an on-demand store audit, and a sanitized
// view of recent finds. Key material never crosses this surface; the found
// endpoint serves store.FoundSummary values, which drop it by construction.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/oracle"
	"github.com/didinska21/wallet-hunter/internal/scan"
	"github.com/didinska21/wallet-hunter/internal/store"
)

const (
	defaultFoundLimit = 20
	maxFoundLimit     = 100
)

// ScanProgress reports the run lifecycle. In production this is satisfied
// by *scan.Coordinator, but tests can provide a simple stub.
type ScanProgress interface {
	State() scan.State
	Remaining() int64
}

// StatsSource provides the live counter snapshot. Satisfied by
// *scan.Aggregator.
type StatsSource interface {
	Snapshot() model.StatsSnapshot
}

// SourceHealth reports per-source balance oracle health. Satisfied by
// *multi.Oracle.
type SourceHealth interface {
	HealthSnapshots() []oracle.HealthSnapshot
	BreakerStates() map[string]string
}

// AuditRunner triggers a store accounting audit. Satisfied by
// *reconciliation.Service.
type AuditRunner interface {
	AuditAny(ctx context.Context) (any, error)
}

// FoundLister serves recent finds with key material already stripped.
type FoundLister interface {
	RecentFound(ctx context.Context, limit int) ([]store.FoundSummary, error)
}

// Server provides an HTTP-based admin API for a running scan.
type Server struct {
	progress ScanProgress
	stats    StatsSource
	health   SourceHealth
	auditor  AuditRunner
	found    FoundLister
	logger   *slog.Logger
}

// NewServer creates a new admin API server. Optional dependencies are set
// through options; their endpoints answer 503 while unset.
func NewServer(progress ScanProgress, stats StatsSource, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		progress: progress,
		stats:    stats,
		logger:   logger.With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures optional dependencies for the admin server.
type ServerOption func(*Server)

// WithSourceHealth sets the balance-source health provider.
func WithSourceHealth(h SourceHealth) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithAuditRunner sets the store audit runner.
func WithAuditRunner(a AuditRunner) ServerOption {
	return func(s *Server) { s.auditor = a }
}

// WithFoundLister sets the sanitized found-record source.
func WithFoundLister(l FoundLister) ServerOption {
	return func(s *Server) { s.found = l }
}

// Handler returns the HTTP handler for the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/v1/status", s.handleStatus)
	mux.HandleFunc("GET /admin/v1/health", s.handleHealth)
	mux.HandleFunc("POST /admin/v1/audit", s.handleAudit)
	mux.HandleFunc("GET /admin/v1/found", s.handleFound)
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusResponse struct {
	State     string              `json:"state"`
	Remaining int64               `json:"remaining"`
	Stats     model.StatsSnapshot `json:"stats"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		State:     s.progress.State().String(),
		Remaining: s.progress.Remaining(),
		Stats:     s.stats.Snapshot(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		http.Error(w, `{"error":"health provider not available"}`, http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sources":  s.health.HealthSnapshots(),
		"breakers": s.health.BreakerStates(),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		http.Error(w, `{"error":"audit not available"}`, http.StatusServiceUnavailable)
		return
	}

	result, err := s.auditor.AuditAny(r.Context())
	if err != nil {
		s.logger.Error("on-demand audit failed", "error", err)
		http.Error(w, `{"error":"audit failed"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFound(w http.ResponseWriter, r *http.Request) {
	if s.found == nil {
		http.Error(w, `{"error":"found listing not available"}`, http.StatusServiceUnavailable)
		return
	}

	limit := defaultFoundLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		limit = min(n, maxFoundLimit)
	}

	wallets, err := s.found.RecentFound(r.Context(), limit)
	if err != nil {
		s.logger.Error("list recent finds failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallets": wallets,
		"count":   len(wallets),
	})
}
