package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/indexer"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/query"
	"github.com/kyleking/askdb/internal/schema"
	"github.com/kyleking/askdb/internal/storage"
)

// Asker answers questions
type Asker interface {
	Ask(ctx context.Context, req query.Request) (*query.Answer, error)
}

// SchemaReader lists tables and previews schema selection
type SchemaReader interface {
	Tables(ctx context.Context) ([]string, error)
	Select(ctx context.Context, question string, explicitTables []string) (*schema.Selection, error)
	Mode(ctx context.Context) string
}

// IndexRunner builds and reports on the schema index
type IndexRunner interface {
	Index(ctx context.Context, opts indexer.Options) (*indexer.Result, error)
	Status(ctx context.Context) (*storage.IndexStatus, bool)
	UsingAcceleratedSearch() bool
}

// Dependencies are the collaborators behind the routes. Indexer may be nil
// when no embedding provider is configured.
type Dependencies struct {
	Engine  Asker
	Schemas SchemaReader
	Indexer IndexRunner
	Logger  *logging.Logger
}

type handler struct {
	deps    Dependencies
	logger  *logging.Logger
	indexMu sync.Mutex
}

// NewHandler builds the router
func NewHandler(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	h := &handler{deps: deps, logger: logger.WithField("component", "http")}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(instrument(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", h.handleAsk)
		r.Get("/tables", h.handleTables)
		r.Get("/schema", h.handleSchema)
		r.Get("/index/status", h.handleIndexStatus)
		r.Post("/index", h.handleIndex)
	})

	return r
}

func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Wrap(err, errors.ErrTypeValidation, "invalid request body"))
		return
	}

	answer, err := h.deps.Engine.Ask(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func (h *handler) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.deps.Schemas.Tables(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"mode":   h.deps.Schemas.Mode(r.Context()),
	})
}

func (h *handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	var explicit []string
	for _, t := range strings.Split(r.URL.Query().Get("tables"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			explicit = append(explicit, t)
		}
	}

	sel, err := h.deps.Schemas.Select(r.Context(), r.URL.Query().Get("q"), explicit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sel)
}

func (h *handler) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"indexed": false,
		"mode":    h.deps.Schemas.Mode(r.Context()),
	}

	if h.deps.Indexer != nil {
		if status, ok := h.deps.Indexer.Status(r.Context()); ok {
			body["indexed"] = true
			body["status"] = status
		}

		body["accelerated"] = h.deps.Indexer.UsingAcceleratedSearch()
	}

	writeJSON(w, http.StatusOK, body)
}

type indexRequest struct {
	Tables []string `json:"tables"`
	Force  bool     `json:"force"`
}

func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if h.deps.Indexer == nil {
		h.writeError(w, r, errors.NewConfigError("no embedding provider is configured", "embedding.provider"))
		return
	}

	// An empty body indexes every visible table.
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, errors.Wrap(err, errors.ErrTypeValidation, "invalid request body"))
		return
	}

	if !h.indexMu.TryLock() {
		writeJSON(w, http.StatusConflict, errorBody(r, "index_busy", "an index build is already running", nil))
		return
	}
	defer h.indexMu.Unlock()

	result, err := h.deps.Indexer.Index(r.Context(), indexer.Options{Tables: req.Tables, Force: req.Force})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func statusFor(errType errors.ErrorType) int {
	switch errType {
	case errors.ErrTypeValidation, errors.ErrTypeConfig:
		return http.StatusBadRequest
	case errors.ErrTypeUnsafeQuery, errors.ErrTypeCannotAnswer:
		return http.StatusUnprocessableEntity
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeProvider, errors.ErrTypeDatabase:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errType := errors.GetType(err)
	status := statusFor(errType)

	extra := map[string]any{}

	if unsafeErr, ok := errors.AsUnsafeQuery(err); ok {
		extra["violation"] = unsafeErr.Kind
		extra["sql"] = unsafeErr.SQL
	}

	var structured *errors.Error
	if errors.As(err, &structured) && len(structured.Suggestions) > 0 {
		extra["suggestions"] = structured.Suggestions
	}

	log := h.logger.WithError(err).WithField("request_id", RequestID(r.Context()))
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}

	writeJSON(w, status, errorBody(r, string(errType), err.Error(), extra))
}

func errorBody(r *http.Request, code, message string, extra map[string]any) map[string]any {
	body := map[string]any{
		"error_code": code,
		"message":    message,
		"request_id": RequestID(r.Context()),
	}

	for k, v := range extra {
		body[k] = v
	}

	return body
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
