package api

import (
	"net/http"
	"time"

	"github.com/mailhaven/mailstore/internal/blob"
)

// SweepStatus reports the outcome of the most recent orphan cleanup sweep.
type SweepStatus interface {
	LastResult() *blob.CleanupResult
}

// CleanupHandler exposes the orphan sweep status for operators.
type CleanupHandler struct {
	sweep SweepStatus
}

// NewCleanupHandler creates a cleanup status handler.
func NewCleanupHandler(sweep SweepStatus) *CleanupHandler {
	return &CleanupHandler{sweep: sweep}
}

type cleanupStatusResponse struct {
	Completed      bool       `json:"completed"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	ObjectsScanned int        `json:"objects_scanned"`
	OrphansFound   int        `json:"orphans_found"`
	OrphansDeleted int        `json:"orphans_deleted"`
	BytesFreed     int64      `json:"bytes_freed"`
}

// Status returns the last completed sweep, or completed=false when no
// sweep has run yet.
func (h *CleanupHandler) Status(w http.ResponseWriter, r *http.Request) {
	res := h.sweep.LastResult()
	if res == nil {
		writeJSON(w, http.StatusOK, cleanupStatusResponse{})
		return
	}
	writeJSON(w, http.StatusOK, cleanupStatusResponse{
		Completed:      true,
		StartedAt:      &res.StartTime,
		FinishedAt:     &res.EndTime,
		ObjectsScanned: res.ObjectsScanned,
		OrphansFound:   res.OrphansFound,
		OrphansDeleted: res.OrphansDeleted,
		BytesFreed:     res.BytesFreed,
	})
}
