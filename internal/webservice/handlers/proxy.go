package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/webcompat/ochazuke/internal/constants"
)

// TriageBugs proxies the list of issues currently sitting in the triage
// milestone from the GitHub API.
type TriageBugs struct {
	fetcher Fetcher
}

// NewTriageBugs creates a TriageBugs handler.
func NewTriageBugs(fetcher Fetcher) *TriageBugs {
	return &TriageBugs{fetcher: fetcher}
}

// ServeHTTP handles triage bugs requests.
func (h *TriageBugs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()

	body, err := h.fetcher.TriageIssues(r.Context())
	if err != nil {
		slog.Error("Failed to fetch triage bugs", "req_id", reqID, "err", err)
		http.Error(w, "Failed to fetch triage bugs", http.StatusBadGateway)
		return
	}

	writeRawJSON(w, reqID, body)
}

// TSCIDoc proxies the pointer to the spreadsheet where the top site
// compatibility index is calculated.
type TSCIDoc struct {
	fetcher Fetcher
}

// NewTSCIDoc creates a TSCIDoc handler.
func NewTSCIDoc(fetcher Fetcher) *TSCIDoc {
	return &TSCIDoc{fetcher: fetcher}
}

// ServeHTTP handles TSCI document requests.
func (h *TSCIDoc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()

	body, err := h.fetcher.Fetch(r.Context(), constants.TSCIDocURL)
	if err != nil {
		slog.Error("Failed to fetch TSCI document", "req_id", reqID, "err", err)
		http.Error(w, "Failed to fetch TSCI document", http.StatusBadGateway)
		return
	}

	writeRawJSON(w, reqID, body)
}
