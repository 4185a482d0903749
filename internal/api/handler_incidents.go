package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pipemedic/internal/domain"
)

type diagnoseRequest struct {
	PipelineName string `json:"pipeline_name"`
	TableName    string `json:"table_name"`
	AlertType    string `json:"alert_type"`
	Severity     string `json:"severity"`
	Description  string `json:"description"`
}

// diagnose feeds a manually raised alert into the incident workflow. The
// same entry point the scheduler uses; concurrent triggers serialize inside
// the incident service.
func (h *Handler) diagnose(w http.ResponseWriter, r *http.Request) {
	var req diagnoseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	alert := &domain.Alert{
		PipelineName: req.PipelineName,
		TableName:    req.TableName,
		AlertType:    req.AlertType,
		Severity:     req.Severity,
		Description:  req.Description,
	}
	inc, err := h.incidents.HandleAlert(r.Context(), alert)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toIncidentDTO(inc))
}

func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	incidents := h.incidents.List()
	out := make([]incidentDTO, 0, len(incidents))
	for i := range incidents {
		out = append(out, toIncidentDTO(&incidents[i]))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"incidents": out})
}

func (h *Handler) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toIncidentDTO(inc))
}

// approveIncident is the human approval gate: it applies the proposed fix,
// validates, verifies, and either resolves or rolls back.
func (h *Handler) approveIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toIncidentDTO(inc))
}

type verifyRequest struct {
	PipelineName  string   `json:"pipeline_name"`
	FailingChecks []string `json:"failing_checks"`
}

// verify runs the deterministic post-fix checks for a pipeline on demand.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.PipelineName == "" {
		h.respondError(w, r, domain.ErrValidation("pipeline_name is required"))
		return
	}
	report, err := h.incidents.Verify(r.Context(), req.PipelineName, req.FailingChecks)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toVerificationDTO(report))
}
