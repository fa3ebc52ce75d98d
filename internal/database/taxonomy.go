package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/webcompat/ochazuke/internal/models"
)

// CreateMilestone inserts a milestone by title.
func (db Manager) CreateMilestone(ctx context.Context, title string) error {
	return db.exec(ctx,
		`INSERT INTO milestone (title) VALUES ($1) ON CONFLICT (title) DO NOTHING`, title)
}

// RenameMilestone changes a milestone title.
func (db Manager) RenameMilestone(ctx context.Context, oldTitle, newTitle string) error {
	return db.exec(ctx, `UPDATE milestone SET title = $2 WHERE title = $1`, oldTitle, newTitle)
}

// DeleteMilestone removes a milestone by title. Issues referencing it fall
// back to no milestone.
func (db Manager) DeleteMilestone(ctx context.Context, title string) error {
	return db.exec(ctx, `DELETE FROM milestone WHERE title = $1`, title)
}

// MilestoneByTitle returns the milestone with the given title.
func (db Manager) MilestoneByTitle(ctx context.Context, title string) (models.Milestone, error) {
	if db.dbpool == nil {
		return models.Milestone{}, fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var m models.Milestone
	err := db.dbpool.QueryRow(ctx,
		`SELECT id, title FROM milestone WHERE title = $1`, title,
	).Scan(&m.ID, &m.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Milestone{}, fmt.Errorf("milestone %q: %w", title, ErrNotFound)
	}
	if err != nil {
		return models.Milestone{}, fmt.Errorf("failed to query milestone %q: %v", title, err)
	}
	return m, nil
}

// CreateLabel inserts a label by name.
func (db Manager) CreateLabel(ctx context.Context, name string) error {
	return db.exec(ctx,
		`INSERT INTO label (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
}

// RenameLabel changes a label name.
func (db Manager) RenameLabel(ctx context.Context, oldName, newName string) error {
	return db.exec(ctx, `UPDATE label SET name = $2 WHERE name = $1`, oldName, newName)
}

// DeleteLabel removes a label by name, along with its issue links.
func (db Manager) DeleteLabel(ctx context.Context, name string) error {
	return db.exec(ctx, `DELETE FROM label WHERE name = $1`, name)
}
