// Package webhooks validates and processes the GitHub webhook deliveries that
// keep the metrics database in sync with webcompat/web-bugs.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Issue actions that update the database. Everything else is acknowledged and
// dropped (assignments) or logged (unknown actions).
var handledIssueActions = map[string]struct{}{
	"opened":       {},
	"closed":       {},
	"reopened":     {},
	"labeled":      {},
	"unlabeled":    {},
	"milestoned":   {},
	"demilestoned": {},
}

// IssuePayload is the part of the GitHub "issues" event we care about.
type IssuePayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number    int       `json:"number"`
		Title     string    `json:"title"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
		Milestone *struct {
			Title string `json:"title"`
		} `json:"milestone"`
	} `json:"issue"`
	// Milestone is the milestone being added or removed. On demilestoned
	// deliveries issue.milestone is already null, so this is the only place
	// the removed milestone appears.
	Milestone *struct {
		Title string `json:"title"`
	} `json:"milestone"`
	Label *struct {
		Name string `json:"name"`
	} `json:"label"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	Changes *Changes `json:"changes"`
}

// LabelPayload is the part of the GitHub "label" event we care about.
type LabelPayload struct {
	Action string `json:"action"`
	Label  struct {
		Name string `json:"name"`
	} `json:"label"`
	Changes *Changes `json:"changes"`
}

// MilestonePayload is the part of the GitHub "milestone" event we care about.
type MilestonePayload struct {
	Action    string `json:"action"`
	Milestone struct {
		Title string `json:"title"`
	} `json:"milestone"`
	Changes *Changes `json:"changes"`
}

// Changes carries the previous values of edited fields. GitHub also reports
// changes we ignore, like label colors and milestone due dates.
type Changes struct {
	Title *struct {
		From string `json:"from"`
	} `json:"title"`
	Name *struct {
		From string `json:"from"`
	} `json:"name"`
}

// IssueEvent is the information extracted from an issues delivery, ready to be
// applied to the database.
type IssueEvent struct {
	IssueID        int
	Title          string
	CreatedAt      time.Time
	MilestoneTitle string // empty when the issue has no milestone
	Actor          string
	Action         string
	Details        json.RawMessage // nil for open/close/reopen without title change
	ReceivedAt     time.Time
}

// ValidSignature checks an X-Hub-Signature header against the raw request
// body using the shared webhook secret.
func ValidSignature(signature string, payload, secret []byte) bool {
	hexDigest, ok := strings.CutPrefix(signature, "sha1=")
	if !ok || hexDigest == "" {
		return false
	}

	mac := hmac.New(sha1.New, secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(hexDigest))
}

// WorthProcessing reports whether an issues action updates the database.
//
// Title edits are worth processing, body edits are not since only titles are
// stored.
func WorthProcessing(action string, changes *Changes) bool {
	if _, ok := handledIssueActions[action]; ok {
		return true
	}
	if action == "edited" {
		return changes != nil && changes.Title != nil
	}
	return false
}

// ExtractIssueEvent pulls the database relevant information out of an issues
// delivery.
func ExtractIssueEvent(payload IssuePayload) (IssueEvent, error) {
	event := IssueEvent{
		IssueID:    payload.Issue.Number,
		Title:      payload.Issue.Title,
		CreatedAt:  payload.Issue.CreatedAt,
		Actor:      payload.Sender.Login,
		Action:     payload.Action,
		ReceivedAt: payload.Issue.UpdatedAt,
	}
	if payload.Issue.Milestone != nil {
		event.MilestoneTitle = payload.Issue.Milestone.Title
	}

	var details any
	switch payload.Action {
	case "opened", "closed", "reopened", "edited":
		if payload.Changes != nil && payload.Changes.Title != nil {
			details = map[string]string{"old title": payload.Changes.Title.From}
		}
	case "milestoned", "demilestoned":
		milestone := payload.Milestone
		if milestone == nil {
			milestone = payload.Issue.Milestone
		}
		if milestone == nil {
			return IssueEvent{}, fmt.Errorf("%s event without milestone data", payload.Action)
		}
		if payload.Action == "milestoned" {
			event.MilestoneTitle = milestone.Title
		}
		details = map[string]string{"milestone title": milestone.Title}
	case "labeled", "unlabeled":
		if payload.Label == nil {
			return IssueEvent{}, fmt.Errorf("%s event without label data", payload.Action)
		}
		details = map[string]string{"label name": payload.Label.Name}
	default:
		return IssueEvent{}, fmt.Errorf("unhandled issues action %q", payload.Action)
	}

	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return IssueEvent{}, fmt.Errorf("failed to encode event details: %v", err)
		}
		event.Details = raw
	}

	return event, nil
}

// LabelName returns the label name carried by an issues delivery, decoded from
// the event details.
func (e IssueEvent) LabelName() (string, error) {
	var details struct {
		Name string `json:"label name"`
	}
	if err := json.Unmarshal(e.Details, &details); err != nil {
		return "", fmt.Errorf("failed to decode label details: %v", err)
	}
	if details.Name == "" {
		return "", fmt.Errorf("label event without a label name")
	}
	return details.Name, nil
}
