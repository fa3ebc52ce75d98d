package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/webcompat/ochazuke/internal/webhooks"
)

// Webhook responses, mostly kept from the original deployment for the benefit
// of anyone reading delivery logs on the GitHub side.
const (
	msgAccepted  = "Yay! Data! *munch, munch, munch*"
	msgIgnored   = "We'll just circular-file that, but thanks!"
	msgRejected  = "Move along, nothing to see here"
	msgWrongHook = "This is not the hook we're looking for."
	msgPong      = "pong"
)

// Webhook handles one GitHub webhook endpoint (issues, label, or milestone).
type Webhook struct {
	event     string // the X-GitHub-Event this endpoint accepts
	secret    []byte
	processor EventProcessor
	maxBytes  int64
}

// NewWebhook creates a handler accepting deliveries of the given event type.
func NewWebhook(event string, secret []byte, processor EventProcessor, maxBytes int64) *Webhook {
	return &Webhook{
		event:     event,
		secret:    secret,
		processor: processor,
		maxBytes:  maxBytes,
	}
}

// ServeHTTP validates and dispatches a webhook delivery.
func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()

	event := r.Header.Get("X-GitHub-Event")
	if event == "" {
		plainText(w, http.StatusUnauthorized, msgRejected)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("Failed to read webhook body", "req_id", reqID, "event", event, "err", err)
		plainText(w, http.StatusBadRequest, "Bad request")
		return
	}

	if !webhooks.ValidSignature(r.Header.Get("X-Hub-Signature"), body, h.secret) {
		slog.Info("Rejected webhook with bad signature", "req_id", reqID, "event", event)
		plainText(w, http.StatusUnauthorized, msgRejected)
		return
	}

	switch event {
	case "ping":
		plainText(w, http.StatusOK, msgPong)
	case h.event:
		h.dispatch(w, r, reqID, body)
	default:
		slog.Info("Wrong event type for endpoint", "req_id", reqID, "event", event, "endpoint", h.event)
		plainText(w, http.StatusForbidden, msgWrongHook)
	}
}

func (h *Webhook) dispatch(w http.ResponseWriter, r *http.Request, reqID string, body []byte) {
	switch h.event {
	case "issues":
		h.dispatchIssues(w, r, reqID, body)
	case "label":
		var payload webhooks.LabelPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			slog.Error("Failed to decode label payload", "req_id", reqID, "err", err)
			plainText(w, http.StatusBadRequest, "Bad request")
			return
		}
		if err := h.processor.ProcessLabelEvent(r.Context(), payload); err != nil {
			slog.Error("Failed to process label event", "req_id", reqID, "err", err)
		}
		plainText(w, http.StatusAccepted, msgAccepted)
	case "milestone":
		var payload webhooks.MilestonePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			slog.Error("Failed to decode milestone payload", "req_id", reqID, "err", err)
			plainText(w, http.StatusBadRequest, "Bad request")
			return
		}
		switch payload.Action {
		case "created", "edited", "deleted":
			if err := h.processor.ProcessMilestoneEvent(r.Context(), payload); err != nil {
				slog.Error("Failed to process milestone event", "req_id", reqID, "err", err)
			}
			plainText(w, http.StatusAccepted, msgAccepted)
		default:
			// Milestones also open and close, which we don't track.
			plainText(w, http.StatusAccepted, msgIgnored)
		}
	}
}

func (h *Webhook) dispatchIssues(w http.ResponseWriter, r *http.Request, reqID string, body []byte) {
	var payload webhooks.IssuePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Error("Failed to decode issues payload", "req_id", reqID, "err", err)
		plainText(w, http.StatusBadRequest, "Bad request")
		return
	}

	if !webhooks.WorthProcessing(payload.Action, payload.Changes) {
		slog.Debug("Ignoring issues action", "req_id", reqID, "action", payload.Action)
		plainText(w, http.StatusAccepted, msgIgnored)
		return
	}

	event, err := webhooks.ExtractIssueEvent(payload)
	if err != nil {
		slog.Error("Failed to extract issue event", "req_id", reqID, "action", payload.Action, "err", err)
		plainText(w, http.StatusAccepted, msgIgnored)
		return
	}

	// Database failures are logged, not surfaced: GitHub retries non-2xx
	// deliveries and a replay would not fix a broken write.
	if err := h.processor.ProcessIssueEvent(r.Context(), event); err != nil {
		slog.Error("Failed to process issue event", "req_id", reqID, "err", err)
	}
	plainText(w, http.StatusAccepted, msgAccepted)
}

func plainText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}
