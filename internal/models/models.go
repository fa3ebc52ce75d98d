// Package models defines the data structures stored by and served from the metrics database.
package models

import (
	"encoding/json"
	"time"
)

// Issue is a webcompat.com bug report, keyed by its GitHub issue number.
//
// An issue usually carries a milestone (the triage state machine of
// webcompat/web-bugs) and zero or more labels.
type Issue struct {
	ID          int
	Title       string
	CreatedAt   time.Time
	MilestoneID *int
	IsOpen      bool
}

// Milestone is a GitHub milestone (needsdiagnosis, sitewait, ...).
type Milestone struct {
	ID    int
	Title string
}

// Label is a GitHub label (browser-firefox, severity-critical, ...).
type Label struct {
	ID   int
	Name string
}

// IssueEvent records a single webhook event applied to an issue.
//
// Details carries event specific context: the old title for edits, the
// milestone title for milestoned/demilestoned, the label name for
// labeled/unlabeled. It is null for open/close/reopen events.
type IssueEvent struct {
	ID         int
	IssueID    int
	Actor      string
	Action     string
	Details    json.RawMessage
	ReceivedAt time.Time
}

// TimelineEntry is one point of an hourly category timeline.
type TimelineEntry struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// DailyTotal is the number of issues reported on a single day.
type DailyTotal struct {
	Day   time.Time
	Count int
}

// WeeklyTotal is the number of issues reported during the ISO week starting on Monday.
type WeeklyTotal struct {
	Monday time.Time
	Count  int
}
