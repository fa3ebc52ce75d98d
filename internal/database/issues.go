package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/webcompat/ochazuke/internal/models"
)

// AddIssue inserts a newly opened issue.
//
// GitHub may redeliver a webhook, so an insert for an already known issue
// number is a no-op rather than an error.
func (db Manager) AddIssue(ctx context.Context, issue models.Issue) error {
	return db.exec(ctx,
		`INSERT INTO issue (id, title, created_at, milestone_id, is_open)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		issue.ID,
		issue.Title,
		issue.CreatedAt,
		issue.MilestoneID,
		issue.IsOpen,
	)
}

// UpdateIssueTitle replaces the stored title of an issue.
func (db Manager) UpdateIssueTitle(ctx context.Context, id int, title string) error {
	return db.exec(ctx, `UPDATE issue SET title = $2 WHERE id = $1`, id, title)
}

// SetIssueState opens or closes an issue.
func (db Manager) SetIssueState(ctx context.Context, id int, isOpen bool) error {
	return db.exec(ctx, `UPDATE issue SET is_open = $2 WHERE id = $1`, id, isOpen)
}

// SetIssueMilestone sets or clears the milestone of an issue.
//
// GitHub signals a milestone change as a demilestoned event followed by a
// milestoned one, so issues legitimately pass through a nil milestone state.
func (db Manager) SetIssueMilestone(ctx context.Context, id int, milestoneID *int) error {
	return db.exec(ctx, `UPDATE issue SET milestone_id = $2 WHERE id = $1`, id, milestoneID)
}

// AddIssueLabel links the named label to an issue.
//
// The label row is created on the fly: a labeled delivery can arrive before
// the label-created one.
func (db Manager) AddIssueLabel(ctx context.Context, issueID int, labelName string) error {
	if err := db.exec(ctx,
		`INSERT INTO label (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, labelName,
	); err != nil {
		return err
	}
	return db.exec(ctx,
		`INSERT INTO issue_label (issue_id, label_id)
		 SELECT $1, id FROM label WHERE name = $2
		 ON CONFLICT DO NOTHING`,
		issueID, labelName,
	)
}

// RemoveIssueLabel unlinks the named label from an issue.
func (db Manager) RemoveIssueLabel(ctx context.Context, issueID int, labelName string) error {
	return db.exec(ctx,
		`DELETE FROM issue_label
		 WHERE issue_id = $1 AND label_id = (SELECT id FROM label WHERE name = $2)`,
		issueID, labelName,
	)
}

// AddIssueEvent records a webhook event against an issue.
func (db Manager) AddIssueEvent(ctx context.Context, event models.IssueEvent) error {
	return db.exec(ctx,
		`INSERT INTO issue_event (issue_id, actor, action, details, received_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.IssueID,
		event.Actor,
		event.Action,
		event.Details,
		event.ReceivedAt,
	)
}

// Issue returns a stored issue by its GitHub number.
func (db Manager) Issue(ctx context.Context, id int) (models.Issue, error) {
	if db.dbpool == nil {
		return models.Issue{}, fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var issue models.Issue
	err := db.dbpool.QueryRow(ctx,
		`SELECT id, title, created_at, milestone_id, is_open FROM issue WHERE id = $1`, id,
	).Scan(&issue.ID, &issue.Title, &issue.CreatedAt, &issue.MilestoneID, &issue.IsOpen)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Issue{}, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Issue{}, fmt.Errorf("failed to query issue %d: %v", id, err)
	}
	return issue, nil
}
