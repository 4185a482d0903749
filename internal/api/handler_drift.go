package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pipemedic/internal/domain"
)

func (h *Handler) listMonitoredTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.drift.MonitoredTables(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

type columnDTO struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Position int    `json:"position"`
}

func toColumnDTOs(cols []domain.SchemaColumn) []columnDTO {
	out := make([]columnDTO, 0, len(cols))
	for _, c := range cols {
		out = append(out, columnDTO{
			Name:     c.ColumnName,
			DataType: c.DataType,
			Nullable: c.IsNullable,
			Position: c.OrdinalPosition,
		})
	}
	return out
}

// getTableDrift compares the live column layout against the stored snapshot.
func (h *Handler) getTableDrift(w http.ResponseWriter, r *http.Request) {
	drift, err := h.drift.Drift(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"table_name":       drift.TableName,
		"drift_detected":   drift.DriftDetected,
		"columns_added":    drift.ColumnsAdded,
		"columns_removed":  drift.ColumnsRemoved,
		"current_columns":  toColumnDTOs(drift.CurrentColumns),
		"snapshot_columns": toColumnDTOs(drift.SnapshotColumns),
	})
}

// snapshotTable re-baselines a table: the stored layout is wholesale replaced
// by the live one.
func (h *Handler) snapshotTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	columns, err := h.drift.Snapshot(r.Context(), table)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"table_name":  table,
		"columns":     toColumnDTOs(columns),
		"captured_at": time.Now().UTC(),
	})
}
