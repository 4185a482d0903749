package api

import (
	"net/http"
	"strconv"
	"time"

	"pipemedic/internal/domain"
)

// listActions returns recent audit-log entries, newest first. Filters come
// from query parameters: actor, action_type, since (RFC 3339), limit.
func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	filter := domain.ActionFilter{
		Actor:      r.URL.Query().Get("actor"),
		ActionType: r.URL.Query().Get("action_type"),
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, r, domain.ErrValidation("since must be RFC 3339: %v", err))
			return
		}
		filter.Since = &since
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.respondError(w, r, domain.ErrValidation("limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	actions, err := h.audit.Recent(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]actionDTO, 0, len(actions))
	for i := range actions {
		out = append(out, toActionDTO(&actions[i]))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"actions": out})
}

// listPatterns returns recurring failure-action aggregates per pipeline.
func (h *Handler) listPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.audit.Patterns(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]patternDTO, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, patternDTO{
			PipelineName: p.PipelineName,
			ActionType:   p.ActionType,
			Occurrences:  p.Occurrences,
			LastSeen:     p.LastSeen,
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"patterns": out})
}

type diagnosticQueryRequest struct {
	SQL string `json:"sql"`
}

// diagnosticQuery executes a read-only ad-hoc statement through the guarded
// sandbox. Rejections surface as 403, never reach the warehouse.
func (h *Handler) diagnosticQuery(w http.ResponseWriter, r *http.Request) {
	var req diagnosticQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.sandbox.Execute(r.Context(), domain.ActorOperator, req.SQL)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

type chatRequest struct {
	Message string `json:"message"`
}

// chat forwards one message to the reasoning collaborator's persistent
// conversation. A collaborator deadline surfaces as 504.
func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Message == "" {
		h.respondError(w, r, domain.ErrValidation("message is required"))
		return
	}
	reply, err := h.reasoner.Chat(r.Context(), req.Message)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func (h *Handler) chatReset(w http.ResponseWriter, _ *http.Request) {
	h.reasoner.Reset()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
