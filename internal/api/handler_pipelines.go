package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pipemedic/internal/service"
)

// listPipelines returns every active pipeline with derived health, failures
// first.
func (h *Handler) listPipelines(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.registry.Statuses(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]pipelineStatusDTO, 0, len(statuses))
	for i := range statuses {
		out = append(out, toPipelineStatusDTO(&statuses[i]))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"pipelines": out})
}

// getPipeline returns one pipeline's detail: health, dependency neighbors,
// recent runs, and current quality results.
func (h *Handler) getPipeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	status, err := h.registry.Status(ctx, name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	upstream, err := h.registry.Upstream(ctx, name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	downstream, err := h.registry.Downstream(ctx, name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	runs, err := h.ledger.History(ctx, name, service.DefaultHistoryLimit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	quality, err := h.quality.CurrentResults(ctx, name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	detail := pipelineDetailDTO{
		pipelineStatusDTO: toPipelineStatusDTO(status),
		Upstream:          make([]string, 0, len(upstream)),
		Downstream:        make([]string, 0, len(downstream)),
		RecentRuns:        make([]runDTO, 0, len(runs)),
		Quality:           make([]checkResultDTO, 0, len(quality)),
	}
	for i := range upstream {
		detail.Upstream = append(detail.Upstream, upstream[i].Name)
	}
	for i := range downstream {
		detail.Downstream = append(detail.Downstream, downstream[i].Name)
	}
	for i := range runs {
		detail.RecentRuns = append(detail.RecentRuns, *toRunDTO(&runs[i]))
	}
	for i := range quality {
		detail.Quality = append(detail.Quality, toCheckResultDTO(&quality[i]))
	}
	h.respondJSON(w, http.StatusOK, detail)
}
