// Package httpapi exposes the valuation queries over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"appraiser/internal/valuation"
)

// Valuator is the part of the valuation engine served over HTTP.
type Valuator interface {
	Relationships(ctx context.Context) ([]valuation.Relationship, error)
	Evaluate(ctx context.Context, offType string, offQty int64, reqType string, reqQty int64) (*valuation.TradeEvaluation, error)
	Expand(ctx context.Context, baseType string, baseQty float64) (*valuation.Equivalence, error)
	Recompute(ctx context.Context) (valuation.RecomputeResult, error)
	RemoveRelation(ctx context.Context, typeA, typeB string) error
	PurgeType(ctx context.Context, itemType string) (valuation.PurgeResult, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Options tunes a Server.
type Options struct {
	ReadHeaderTimeout time.Duration
	// MetricsPath mounts MetricsHandler when both are set.
	MetricsPath    string
	MetricsHandler http.Handler
}

type Server struct {
	addr   string
	engine Valuator
	logger *slog.Logger
	opts   Options
	server *http.Server
}

func New(addr string, engine Valuator, logger *slog.Logger, opts Options) *Server {
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 5 * time.Second
	}
	return &Server{addr: addr, engine: engine, logger: logger, opts: opts}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /relationships", s.handleRelationships)
	mux.HandleFunc("DELETE /relationships", s.handleDeleteRelationship)
	mux.HandleFunc("GET /hypotrade", s.handleHypotrade)
	mux.HandleFunc("GET /equivalents", s.handleEquivalents)
	mux.HandleFunc("POST /recompute", s.handleRecompute)
	mux.HandleFunc("DELETE /trades", s.handleDeleteTrades)

	if s.opts.MetricsPath != "" && s.opts.MetricsHandler != nil {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.MetricsHandler)
	}

	return withCORS(mux)
}

// Start listens until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}
	s.logger.Info("HTTP server listening", "addr", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	rels, err := s.engine.Relationships(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rels)
}

func (s *Server) handleHypotrade(w http.ResponseWriter, r *http.Request) {
	q, ok := requireParams(w, r, "off_t", "off_a", "req_t", "req_a")
	if !ok {
		return
	}

	offQty, err1 := strconv.ParseInt(strings.TrimSpace(q["off_a"]), 10, 64)
	reqQty, err2 := strconv.ParseInt(strings.TrimSpace(q["req_a"]), 10, 64)
	if err := errors.Join(err1, err2); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_parameter_type",
			Message: fmt.Sprintf("Invalid amount provided: %v. Amounts must be positive integers.", err),
		})
		return
	}

	res, err := s.engine.Evaluate(r.Context(), q["off_t"], offQty, q["req_t"], reqQty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEquivalents(w http.ResponseWriter, r *http.Request) {
	q, ok := requireParams(w, r, "base_type", "base_quantity")
	if !ok {
		return
	}

	qty, err := strconv.ParseFloat(strings.TrimSpace(q["base_quantity"]), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_parameter_type",
			Message: fmt.Sprintf("Invalid base_quantity provided: %v. Must be a positive number.", err),
		})
		return
	}

	res, err := s.engine.Expand(r.Context(), q["base_type"], qty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Recompute(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteRelationship(w http.ResponseWriter, r *http.Request) {
	q, ok := requireParams(w, r, "type_a", "type_b")
	if !ok {
		return
	}
	if err := s.engine.RemoveRelation(r.Context(), q["type_a"], q["type_b"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTrades(w http.ResponseWriter, r *http.Request) {
	q, ok := requireParams(w, r, "type")
	if !ok {
		return
	}
	res, err := s.engine.PurgeType(r.Context(), q["type"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// requireParams reads the named query parameters and replies 400 listing any
// that are missing or blank.
func requireParams(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, bool) {
	query := r.URL.Query()
	values := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		v := query.Get(name)
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
			continue
		}
		values[name] = v
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "missing_parameters",
			Message: "Missing required query parameters: " + strings.Join(missing, ", "),
		})
		return nil, false
	}
	return values, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := valuation.KindOf(err)
	status := statusFor(kind)

	var verr *valuation.Error
	message := err.Error()
	if errors.As(err, &verr) {
		message = verr.Message
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("API error response", "path", r.URL.Path, "status", status, "kind", kind, "error", err)
	} else {
		s.logger.Info("API error response", "path", r.URL.Path, "status", status, "kind", kind, "message", message)
	}
	writeJSON(w, status, ErrorResponse{Error: string(kind), Message: message})
}

func statusFor(kind valuation.Kind) int {
	switch kind {
	case valuation.KindDatabaseNotFound:
		return http.StatusServiceUnavailable
	case valuation.KindRelationNotFound, valuation.KindTypeNotFound:
		return http.StatusNotFound
	case valuation.KindInvalidParameter:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
