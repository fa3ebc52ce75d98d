package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// The data endpoints feed browser dashboards hosted on other origins.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Vary", "Origin")
}

func writeJSON(w http.ResponseWriter, reqID string, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "req_id", reqID, "err", err)
	}
}

func writeRawJSON(w http.ResponseWriter, reqID string, body []byte) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(body); err != nil {
		slog.Error("Failed to write response", "req_id", reqID, "err", err)
	}
}
