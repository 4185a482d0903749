package api

import (
	"net/http"
	"time"
)

// runCheck performs one detection pass immediately and returns the raised
// alerts. Each alert has already been fed through the incident workflow.
func (h *Handler) runCheck(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.scheduler.RunOnce(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	type alertDTO struct {
		PipelineName string `json:"pipeline_name,omitempty"`
		TableName    string `json:"table_name,omitempty"`
		AlertType    string `json:"alert_type"`
		Severity     string `json:"severity"`
		Description  string `json:"description"`
	}
	out := make([]alertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertDTO{
			PipelineName: a.PipelineName,
			TableName:    a.TableName,
			AlertType:    a.AlertType,
			Severity:     a.Severity,
			Description:  a.Description,
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":      out,
		"alert_count": len(out),
	})
}

func (h *Handler) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, h.scheduler.Status())
}

type schedulerStartRequest struct {
	IntervalMinutes float64 `json:"interval_minutes"`
}

func (h *Handler) schedulerStart(w http.ResponseWriter, r *http.Request) {
	var req schedulerStartRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	interval := time.Duration(req.IntervalMinutes * float64(time.Minute))
	if err := h.scheduler.Start(interval); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) schedulerStop(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Stop(); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.scheduler.Status())
}
