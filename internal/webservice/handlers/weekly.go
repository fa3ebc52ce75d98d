package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/webcompat/ochazuke/internal/models"
)

// Weekly serves the weekly counts of newly reported issues, e.g.
// GET /data/weekly-counts?from=2019-05-16&to=2019-06-04.
type Weekly struct {
	db TimelineStore
}

type weeklyResponse struct {
	About            string                 `json:"about"`
	NumberingOfWeeks string                 `json:"numbering_of_weeks"`
	Timeline         []models.TimelineEntry `json:"timeline"`
}

// NewWeekly creates a Weekly handler.
func NewWeekly(db TimelineStore) *Weekly {
	return &Weekly{db: db}
}

// ServeHTTP handles weekly count requests.
func (h *Weekly) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()

	from, to, err := parseDateRange(r.URL.Query())
	if err != nil {
		slog.Debug("Rejecting weekly counts request", "req_id", reqID, "err", err)
		http.NotFound(w, r)
		return
	}

	timeline, err := h.db.WeeklyCounts(r.Context(), from, to)
	if err != nil {
		slog.Error("Failed to query weekly counts", "req_id", reqID, "err", err)
		http.Error(w, "Failed to fetch weekly counts", http.StatusInternalServerError)
		return
	}

	writeJSON(w, reqID, weeklyResponse{
		About:            "Weekly Count of New Issues Reported",
		NumberingOfWeeks: "ISO calendar",
		Timeline:         timeline,
	})
}
