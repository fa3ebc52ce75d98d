package handlers

import (
	"context"
	"time"

	"github.com/webcompat/ochazuke/internal/models"
	"github.com/webcompat/ochazuke/internal/webhooks"
)

// CategoryProvider is the configuration access used by the timeline handler.
type CategoryProvider interface {
	IsValidCategory(string) bool
}

// TimelineStore is the subset of the database the data handlers read from.
type TimelineStore interface {
	Timeline(ctx context.Context, category string, from, to time.Time) ([]models.TimelineEntry, error)
	WeeklyCounts(ctx context.Context, from, to time.Time) ([]models.TimelineEntry, error)
}

// Fetcher retrieves remote documents for the proxy endpoints.
type Fetcher interface {
	TriageIssues(ctx context.Context) ([]byte, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// EventProcessor applies validated webhook deliveries.
type EventProcessor interface {
	ProcessIssueEvent(ctx context.Context, event webhooks.IssueEvent) error
	ProcessLabelEvent(ctx context.Context, payload webhooks.LabelPayload) error
	ProcessMilestoneEvent(ctx context.Context, payload webhooks.MilestonePayload) error
}
