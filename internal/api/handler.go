// Package api exposes the incident-response engine over HTTP. Handlers are
// thin: decode, delegate to a service, map domain errors to statuses.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"pipemedic/internal/domain"
	"pipemedic/internal/middleware"
	"pipemedic/internal/service"
)

// Handler holds the services behind the HTTP surface.
type Handler struct {
	registry  *service.RegistryService
	ledger    *service.LedgerService
	drift     *service.DriftService
	quality   *service.QualityService
	incidents *service.IncidentService
	scheduler *service.Scheduler
	audit     *service.AuditService
	sandbox   *service.SandboxService
	reasoner  domain.Reasoner
	logger    *slog.Logger
}

// NewHandler creates the HTTP handler with its service dependencies.
func NewHandler(
	registry *service.RegistryService,
	ledger *service.LedgerService,
	drift *service.DriftService,
	quality *service.QualityService,
	incidents *service.IncidentService,
	scheduler *service.Scheduler,
	audit *service.AuditService,
	sandbox *service.SandboxService,
	reasoner domain.Reasoner,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		registry:  registry,
		ledger:    ledger,
		drift:     drift,
		quality:   quality,
		incidents: incidents,
		scheduler: scheduler,
		audit:     audit,
		sandbox:   sandbox,
		reasoner:  reasoner,
		logger:    logger.With("component", "api"),
	}
}

// RouterConfig carries the transport-level settings Routes needs.
type RouterConfig struct {
	RateLimit   middleware.RateLimitConfig
	CORSOrigins []string // default: ["*"]
}

// Routes builds the router. The sandbox and chat endpoints sit behind a
// per-client rate limiter; everything else is unthrottled.
func (h *Handler) Routes(cfg RouterConfig) http.Handler {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)

	r.Get("/pipelines", h.listPipelines)
	r.Get("/pipelines/{name}", h.getPipeline)

	r.Get("/tables", h.listMonitoredTables)
	r.Get("/tables/{table}/drift", h.getTableDrift)
	r.Post("/tables/{table}/snapshot", h.snapshotTable)

	r.Post("/check", h.runCheck)
	r.Post("/diagnose", h.diagnose)
	r.Post("/verify", h.verify)

	r.Get("/incidents", h.listIncidents)
	r.Get("/incidents/{id}", h.getIncident)
	r.Post("/incidents/{id}/approve", h.approveIncident)

	r.Get("/actions", h.listActions)
	r.Get("/patterns", h.listPatterns)

	r.Get("/scheduler/status", h.schedulerStatus)
	r.Post("/scheduler/start", h.schedulerStart)
	r.Post("/scheduler/stop", h.schedulerStop)

	r.Group(func(r chi.Router) {
		if cfg.RateLimit.RequestsPerSecond > 0 {
			r.Use(middleware.RateLimiter(cfg.RateLimit))
		}
		r.Post("/query/diagnostic", h.diagnosticQuery)
		r.Post("/chat", h.chat)
		r.Post("/chat/reset", h.chatReset)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response encoding failed", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	h.respondJSON(w, status, map[string]interface{}{
		"code":    status,
		"message": err.Error(),
	})
}

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}
