// Package http exposes the analytics engine over a JSON API: stored
// snapshots, ingestion, overrides, and on-demand recomputation.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"finsight/internal/analytics"
	"finsight/internal/core"
	"finsight/internal/services"
	"finsight/internal/storage"
)

// SnapshotReader serves the stored snapshot for a user.
type SnapshotReader interface {
	GetSummary(ctx context.Context, userID string) (*analytics.Snapshot, error)
}

// Ingestor accepts a stream of raw NDJSON records.
type Ingestor interface {
	IngestNDJSON(ctx context.Context, userID string, r io.Reader) (services.IngestResult, error)
}

// Recomputer rebuilds one user's snapshot on demand.
type Recomputer interface {
	Recompute(ctx context.Context, userID string) (*analytics.Snapshot, error)
}

// DashboardBuilder serves the date-filtered dashboard fold.
type DashboardBuilder interface {
	Dashboard(ctx context.Context, userID string, from, to time.Time) (*analytics.Dashboard, error)
}

// OverrideWriter stores manual merchant-level corrections.
type OverrideWriter interface {
	SetIncomeOverride(ctx context.Context, userID, merchantKey string, isIncome bool) error
	SetSubscriptionOverride(ctx context.Context, userID, merchantKey string, override core.SubscriptionOverride) error
}

// BudgetWriter stores per-category budget targets.
type BudgetWriter interface {
	SetBudgetEntry(ctx context.Context, userID string, entry core.BudgetEntry) error
}

type Server struct {
	http.Server

	snapshots  SnapshotReader
	ingestor   Ingestor
	recomputer Recomputer
	dashboards DashboardBuilder
	overrides  OverrideWriter
	budgets    BudgetWriter

	rateLimiter  *rateLimiter
	metrics      *securityMetrics
	traffic      *traceMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, snapshots SnapshotReader, ingestor Ingestor, recomputer Recomputer, dashboards DashboardBuilder, overrides OverrideWriter, budgets BudgetWriter) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		snapshots:   snapshots,
		ingestor:    ingestor,
		recomputer:  recomputer,
		dashboards:  dashboards,
		overrides:   overrides,
		budgets:     budgets,
		rateLimiter: newRateLimiter(),
		metrics:     &securityMetrics{},
		traffic:     &traceMetrics{},
	}
	s.Handler = traceRequests(s.traffic, mux)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/users/{user}/summary", s.protect(s.handleGetSummary))
	mux.HandleFunc("POST /api/users/{user}/transactions", s.protect(s.handleIngest))
	mux.HandleFunc("POST /api/users/{user}/recompute", s.protect(s.handleRecompute))
	mux.HandleFunc("GET /api/users/{user}/dashboard", s.protect(s.handleDashboard))
	mux.HandleFunc("PUT /api/users/{user}/merchants/{merchant}/income", s.protect(s.handleIncomeOverride))
	mux.HandleFunc("PUT /api/users/{user}/merchants/{merchant}/subscription", s.protect(s.handleSubscriptionOverride))
	mux.HandleFunc("PUT /api/users/{user}/budget", s.protect(s.handleSetBudgetEntry))

	return s
}

// Shutdown gracefully stops the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// protect wraps a handler with security headers, rate limiting, and
// basic threat detection.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		clientIP := extractClientIP(r)
		if !s.rateLimiter.allow(clientIP, s.metrics) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if detectSuspiciousRequest(r, s.metrics) {
			slog.Warn("Suspicious request blocked",
				"request_id", requestIDFrom(r.Context()),
				"client_ip", clientIP,
				"path", r.URL.Path,
				"method", r.Method)
			writeError(w, http.StatusBadRequest, "request rejected")
			return
		}

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")

	snapshot, err := s.snapshots.GetSummary(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no snapshot for user")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read snapshot", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")

	result, err := s.ingestor.IngestNDJSON(r.Context(), userID, http.MaxBytesReader(w, r.Body, 32<<20))
	if err != nil {
		slog.ErrorContext(r.Context(), "Ingestion failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{
		"ingested": result.Ingested,
		"skipped":  result.Skipped,
	})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")

	snapshot, err := s.recomputer.Recompute(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Recomputation failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "recomputation failed")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")

	from, err := parseDateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date")
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date")
		return
	}
	if !to.IsZero() {
		// Date bounds are inclusive: stretch to the end of the day.
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	dashboard, err := s.dashboards.Dashboard(r.Context(), userID, from, to)
	if err != nil {
		slog.ErrorContext(r.Context(), "Dashboard build failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	writeJSON(w, http.StatusOK, dashboard)
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

func (s *Server) handleIncomeOverride(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	merchantKey := core.NormalizeMerchantKey(r.PathValue("merchant"))
	if merchantKey == "" {
		writeError(w, http.StatusBadRequest, "invalid merchant key")
		return
	}

	var body struct {
		IsIncome *bool `json:"isIncome"`
	}
	if err := decodeJSON(r, &body); err != nil || body.IsIncome == nil {
		writeError(w, http.StatusBadRequest, "body must carry isIncome")
		return
	}

	if err := s.overrides.SetIncomeOverride(r.Context(), userID, merchantKey, *body.IsIncome); err != nil {
		slog.ErrorContext(r.Context(), "Failed to store income override", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store override")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"merchantKey": merchantKey})
}

func (s *Server) handleSubscriptionOverride(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	merchantKey := core.NormalizeMerchantKey(r.PathValue("merchant"))
	if merchantKey == "" {
		writeError(w, http.StatusBadRequest, "invalid merchant key")
		return
	}

	var body struct {
		Decision string `json:"decision"`
		Note     string `json:"note"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	decision := core.Decision(strings.ToLower(strings.TrimSpace(body.Decision)))
	switch decision {
	case core.DecisionKeep, core.DecisionReduce, core.DecisionCancel:
	default:
		writeError(w, http.StatusBadRequest, "decision must be keep, reduce, or cancel")
		return
	}

	override := core.SubscriptionOverride{Decision: decision, Note: strings.TrimSpace(body.Note)}
	if err := s.overrides.SetSubscriptionOverride(r.Context(), userID, merchantKey, override); err != nil {
		slog.ErrorContext(r.Context(), "Failed to store subscription override", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store override")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"merchantKey": merchantKey})
}

func (s *Server) handleSetBudgetEntry(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")

	var body struct {
		CategoryKey string  `json:"categoryKey"`
		Label       string  `json:"label"`
		Mode        string  `json:"mode"`
		Amount      float64 `json:"amount"`
		Percent     float64 `json:"percent"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	mode := core.BudgetMode(strings.ToLower(strings.TrimSpace(body.Mode)))
	if mode != core.BudgetFixed && mode != core.BudgetPercent {
		writeError(w, http.StatusBadRequest, "mode must be fixed or percent")
		return
	}
	if strings.TrimSpace(body.CategoryKey) == "" {
		writeError(w, http.StatusBadRequest, "categoryKey is required")
		return
	}

	entry := core.BudgetEntry{
		CategoryKey: strings.TrimSpace(body.CategoryKey),
		Label:       strings.TrimSpace(body.Label),
		Mode:        mode,
		Amount:      body.Amount,
		Percent:     body.Percent,
	}
	if err := s.budgets.SetBudgetEntry(r.Context(), userID, entry); err != nil {
		slog.ErrorContext(r.Context(), "Failed to store budget entry", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store budget entry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"categoryKey": entry.CategoryKey})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// WithTimeouts applies the standard timeouts and returns the server.
func (s *Server) WithTimeouts() *Server {
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 60 * time.Second
	s.MaxHeaderBytes = 1 << 16
	return s
}
