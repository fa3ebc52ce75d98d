// Package handlers provides the HTTP handlers of the web service.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/webcompat/ochazuke/internal/models"
)

// Timeline serves the hourly issue counts of a category, e.g.
// GET /data/needsdiagnosis-timeline?from=2018-05-16&to=2018-05-18.
type Timeline struct {
	cfg CategoryProvider
	db  TimelineStore
}

type timelineResponse struct {
	About      string                 `json:"about"`
	DateFormat string                 `json:"date_format"`
	Timeline   []models.TimelineEntry `json:"timeline"`
}

// NewTimeline creates a Timeline handler.
func NewTimeline(cfg CategoryProvider, db TimelineStore) *Timeline {
	return &Timeline{cfg: cfg, db: db}
}

// ServeHTTP handles category timeline requests.
func (h *Timeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()

	category, ok := strings.CutSuffix(r.PathValue("metric"), "-timeline")
	if !ok || !h.cfg.IsValidCategory(category) {
		http.NotFound(w, r)
		return
	}

	from, to, err := parseDateRange(r.URL.Query())
	if err != nil {
		slog.Debug("Rejecting timeline request", "req_id", reqID, "category", category, "err", err)
		http.NotFound(w, r)
		return
	}

	timeline, err := h.db.Timeline(r.Context(), category, from, to)
	if err != nil {
		slog.Error("Failed to query timeline", "req_id", reqID, "category", category, "err", err)
		http.Error(w, "Failed to fetch timeline", http.StatusInternalServerError)
		return
	}

	writeJSON(w, reqID, timelineResponse{
		About:      fmt.Sprintf("Hourly %s issues count", category),
		DateFormat: "w3c",
		Timeline:   timeline,
	})
}
