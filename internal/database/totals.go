package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/webcompat/ochazuke/internal/models"
)

// Timeline returns the hourly entries of a category between from (inclusive)
// and to (exclusive), oldest first.
func (db Manager) Timeline(ctx context.Context, category string, from, to time.Time) ([]models.TimelineEntry, error) {
	return db.queryTimeline(ctx,
		`SELECT count, recorded_at FROM timeline_entry
		 WHERE category = $1 AND recorded_at >= $2 AND recorded_at < $3
		 ORDER BY recorded_at`,
		category, from, to,
	)
}

// LatestTimelineCount returns the most recent recorded count for a category.
// ErrNotFound means the category has no entries yet.
func (db Manager) LatestTimelineCount(ctx context.Context, category string) (int, error) {
	if db.dbpool == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var count int
	err := db.dbpool.QueryRow(ctx,
		`SELECT count FROM timeline_entry WHERE category = $1 ORDER BY recorded_at DESC LIMIT 1`,
		category,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("timeline %q: %w", category, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query timeline %q: %v", category, err)
	}
	return count, nil
}

// AddTimelineEntry appends an hourly count to a category timeline.
func (db Manager) AddTimelineEntry(ctx context.Context, category string, count int, recordedAt time.Time) error {
	return db.exec(ctx,
		`INSERT INTO timeline_entry (category, count, recorded_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (category, recorded_at) DO NOTHING`,
		category, count, recordedAt,
	)
}

// WeeklyCounts returns the weekly totals between from (inclusive) and to
// (exclusive) as timeline entries stamped with each week's Monday at midnight UTC.
func (db Manager) WeeklyCounts(ctx context.Context, from, to time.Time) ([]models.TimelineEntry, error) {
	return db.queryTimeline(ctx,
		`SELECT count, monday::timestamp AT TIME ZONE 'UTC' FROM weekly_total
		 WHERE monday >= $1 AND monday < $2
		 ORDER BY monday`,
		from, to,
	)
}

// AddDailyTotal stores the number of issues reported on the given day.
func (db Manager) AddDailyTotal(ctx context.Context, day time.Time, count int) error {
	return db.exec(ctx,
		`INSERT INTO daily_total (day, count) VALUES ($1, $2)
		 ON CONFLICT (day) DO UPDATE SET count = EXCLUDED.count`,
		day, count,
	)
}

// SumDailyTotals sums the daily totals between from and to, both inclusive.
// It also returns the number of days that had a stored total.
func (db Manager) SumDailyTotals(ctx context.Context, from, to time.Time) (sum, days int, err error) {
	if db.dbpool == nil {
		return 0, 0, fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err = db.dbpool.QueryRow(ctx,
		`SELECT COALESCE(SUM(count), 0), COUNT(*) FROM daily_total WHERE day BETWEEN $1 AND $2`,
		from, to,
	).Scan(&sum, &days)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum daily totals: %v", err)
	}
	return sum, days, nil
}

// AddWeeklyTotal stores the number of issues reported during the week starting
// on the given Monday.
func (db Manager) AddWeeklyTotal(ctx context.Context, monday time.Time, count int) error {
	return db.exec(ctx,
		`INSERT INTO weekly_total (monday, count) VALUES ($1, $2)
		 ON CONFLICT (monday) DO UPDATE SET count = EXCLUDED.count`,
		monday, count,
	)
}

func (db Manager) queryTimeline(ctx context.Context, query string, args ...any) ([]models.TimelineEntry, error) {
	if db.dbpool == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := db.dbpool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %v", err)
	}
	defer rows.Close()

	entries := []models.TimelineEntry{}
	for rows.Next() {
		var e models.TimelineEntry
		if err := rows.Scan(&e.Count, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %v", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read timeline rows: %v", err)
	}
	return entries, nil
}
