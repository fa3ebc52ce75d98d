// Package jobs provides the scheduled GitHub polling jobs of the fetch service.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/webcompat/ochazuke/internal/config"
	"github.com/webcompat/ochazuke/internal/database"
	"github.com/webcompat/ochazuke/internal/github"
)

// Pool runs the scheduled fetch jobs: hourly per-category timeline counts, a
// daily count of newly reported issues, and the Monday weekly aggregation.
type Pool struct {
	cm dConfigManager
	gh dGitHub
	db dStore

	timelineInterval time.Duration
	dailyInterval    time.Duration
	retryDelay       time.Duration
	now              func() time.Time

	mu       sync.Mutex
	workers  map[string]context.CancelFunc
	workerWG sync.WaitGroup

	metricsMu   sync.Mutex
	jobRuns     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

type dConfigManager interface {
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	Categories() map[string]config.Category
	Category(string) (config.Category, bool)
}

type dGitHub interface {
	Milestone(ctx context.Context, number int) (github.MilestoneCounts, error)
	SearchIssueCount(ctx context.Context, day string) (int, error)
}

type dStore interface {
	LatestTimelineCount(ctx context.Context, category string) (int, error)
	AddTimelineEntry(ctx context.Context, category string, count int, recordedAt time.Time) error
	AddDailyTotal(ctx context.Context, day time.Time, count int) error
	SumDailyTotals(ctx context.Context, from, to time.Time) (sum, days int, err error)
	AddWeeklyTotal(ctx context.Context, monday time.Time, count int) error
}

type options struct {
	timelineInterval time.Duration
	dailyInterval    time.Duration
	retryDelay       time.Duration
	now              func() time.Time
}

// Options represents an optional function to override Pool default values.
type Options func(*options)

// New creates a new job pool with the provided config manager, GitHub client,
// store, and Prometheus registerer.
func New(cm dConfigManager, gh dGitHub, db dStore, reg prometheus.Registerer, args ...Options) (*Pool, error) {
	opts := options{
		timelineInterval: time.Hour,
		dailyInterval:    24 * time.Hour,
		retryDelay:       2 * time.Minute,
		now:              time.Now,
	}
	for _, opt := range args {
		opt(&opts)
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_job_runs_total",
		Help: "Number of fetch job runs, by job and result.",
	}, []string{"job", "result"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fetch_job_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last successful run of each fetch job.",
	}, []string{"job"})
	if err := reg.Register(jobRuns); err != nil {
		return nil, fmt.Errorf("failed to register job runs counter: %v", err)
	}
	if err := reg.Register(lastSuccess); err != nil {
		return nil, fmt.Errorf("failed to register last success gauge: %v", err)
	}

	return &Pool{
		cm: cm,
		gh: gh,
		db: db,

		timelineInterval: opts.timelineInterval,
		dailyInterval:    opts.dailyInterval,
		retryDelay:       opts.retryDelay,
		now:              opts.now,

		workers:     make(map[string]context.CancelFunc),
		jobRuns:     jobRuns,
		lastSuccess: lastSuccess,
	}, nil
}

// Run orchestrates the fetch jobs until the context is canceled or one of the
// jobs fails in a way it cannot recover from.
//
// Always returns a non-nil error, which is either a context error or a job error.
func (m *Pool) Run(ctx context.Context) error {
	slog.Info("Fetch jobs started")

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.runTimelines(ctx) })
	g.Go(func() error { return m.runDaily(ctx) })
	g.Go(func() error { return m.runWeekly(ctx) })
	return g.Wait()
}

// runTimelines keeps one worker per configured category, resyncing when the
// configuration changes.
func (m *Pool) runTimelines(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reloadEventCh, cfgWatchErrCh, err := m.cm.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching configuration: %v", err)
	}

	// Initial sync
	m.syncWorkers(ctx)

	// Debounce timer for handling bursts of events
	debounceDuration := 5 * time.Second
	debounceTimer := time.NewTimer(debounceDuration)
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Context canceled, stopping timeline workers")
			m.workerWG.Wait()
			return ctx.Err()

		case _, ok := <-reloadEventCh:
			if !ok {
				return fmt.Errorf("reloadEventCh closed unexpectedly")
			}
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(debounceDuration)

		case <-debounceTimer.C:
			// Timer expired, perform the resync
			slog.Info("Resyncing timeline workers after configuration change")
			m.syncWorkers(ctx)
			slog.Debug("Completed resyncing timeline workers")

		case err, ok := <-cfgWatchErrCh:
			if !ok {
				return fmt.Errorf("cfgWatchErrCh closed unexpectedly")
			}
			if err != nil {
				slog.Error("Configuration watcher error", "err", err)
			}
		}
	}
}

// syncWorkers diffs the configured categories and starts/stops goroutines.
func (m *Pool) syncWorkers(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	categories := m.cm.Categories()

	// stop removed
	for name, cancel := range m.workers {
		if _, ok := categories[name]; !ok {
			cancel()
			delete(m.workers, name)
		}
	}
	// start added
	for name := range categories {
		if _, ok := m.workers[name]; ok {
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("Context canceled, stopping worker sync")
			return // normal shutdown
		default:
		}
		catCtx, cancel := context.WithCancel(ctx)
		m.workers[name] = cancel
		slog.Info("Starting category worker", "category", name)
		m.workerWG.Add(1)
		go m.categoryWorker(catCtx, name)
	}
}

// categoryWorker polls the category's milestone until ctx is canceled.
func (m *Pool) categoryWorker(ctx context.Context, name string) {
	defer m.workerWG.Done()

	baseBackoff := time.Minute
	maxBackoff := 10 * time.Minute
	backoff := baseBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := m.timelineInterval
		err := m.recordTimelineEntry(ctx, name)
		switch {
		case err == nil:
			m.observeRun("timeline", nil)
			backoff = baseBackoff
		case errors.Is(err, ctx.Err()):
			return // normal shutdown
		default:
			slog.Error("Timeline job failed", "category", name, "err", err)
			m.observeRun("timeline", err)

			// #nosec:G404 We don't need cryptographic randomness.
			wait = time.Duration(rand.Int63n(int64(backoff)))
			backoff = min(backoff*2, maxBackoff)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			slog.Debug("Category worker context canceled", "category", name)
			return // normal shutdown
		}
	}
}

// recordTimelineEntry fetches the current issue count of the category's
// milestone and appends it to the timeline if it changed.
func (m *Pool) recordTimelineEntry(ctx context.Context, name string) error {
	cat, ok := m.cm.Category(name)
	if !ok {
		// Removed from the config since the worker started, the next resync
		// will stop it.
		return nil
	}

	counts, err := m.gh.Milestone(ctx, cat.Milestone)
	if err != nil {
		return fmt.Errorf("failed to fetch milestone %d: %w", cat.Milestone, err)
	}

	count := counts.Open
	if cat.State == config.StateClosed {
		count = counts.Closed
	}

	last, err := m.db.LatestTimelineCount(ctx, name)
	switch {
	case errors.Is(err, database.ErrNotFound):
		// First entry for the category.
	case err != nil:
		return fmt.Errorf("failed to read last count: %w", err)
	case last == count:
		slog.Debug("Count unchanged, skipping timeline entry", "category", name, "count", count)
		return nil
	}

	recordedAt := m.now().UTC().Truncate(time.Hour)
	if err := m.db.AddTimelineEntry(ctx, name, count, recordedAt); err != nil {
		return fmt.Errorf("failed to store timeline entry: %w", err)
	}
	slog.Info("Recorded timeline entry", "category", name, "count", count, "recorded_at", recordedAt)
	return nil
}

// runDaily stores the count of issues reported the previous day, once per day.
func (m *Pool) runDaily(ctx context.Context) error {
	ticker := time.NewTicker(m.dailyInterval)
	defer ticker.Stop()

	for {
		if err := m.recordDailyTotal(ctx); err != nil {
			if errors.Is(err, ctx.Err()) {
				return ctx.Err()
			}
			slog.Error("Daily total job failed", "err", err)
			m.observeRun("daily", err)
		} else {
			m.observeRun("daily", nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Pool) recordDailyTotal(ctx context.Context) error {
	now := m.now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	dayStr := day.Format("2006-01-02")

	count, err := m.gh.SearchIssueCount(ctx, dayStr)
	if errors.Is(err, github.ErrIncompleteResults) {
		slog.Warn("Search results incomplete, retrying", "day", dayStr, "delay", m.retryDelay)
		select {
		case <-time.After(m.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		count, err = m.gh.SearchIssueCount(ctx, dayStr)
	}
	if err != nil {
		return fmt.Errorf("failed to count issues reported on %s: %w", dayStr, err)
	}

	if err := m.db.AddDailyTotal(ctx, day, count); err != nil {
		return fmt.Errorf("failed to store daily total: %w", err)
	}
	slog.Info("Recorded daily total", "day", dayStr, "count", count)
	return nil
}

// runWeekly aggregates the previous week's daily totals every Monday.
func (m *Pool) runWeekly(ctx context.Context) error {
	ticker := time.NewTicker(m.dailyInterval)
	defer ticker.Stop()

	for {
		if m.now().UTC().Weekday() == time.Monday {
			if err := m.recordWeeklyTotal(ctx); err != nil {
				if errors.Is(err, ctx.Err()) {
					return ctx.Err()
				}
				slog.Error("Weekly total job failed", "err", err)
				m.observeRun("weekly", err)
			} else {
				m.observeRun("weekly", nil)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Pool) recordWeeklyTotal(ctx context.Context) error {
	now := m.now().UTC()
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	sum, days, err := m.db.SumDailyTotals(ctx, monday.AddDate(0, 0, -7), monday.AddDate(0, 0, -1))
	if err != nil {
		return fmt.Errorf("failed to sum daily totals: %w", err)
	}
	if days == 0 {
		slog.Warn("No daily totals recorded for the past week, skipping weekly total", "monday", monday.Format("2006-01-02"))
		return nil
	}

	if err := m.db.AddWeeklyTotal(ctx, monday, sum); err != nil {
		return fmt.Errorf("failed to store weekly total: %w", err)
	}
	slog.Info("Recorded weekly total", "monday", monday.Format("2006-01-02"), "count", sum)
	return nil
}

func (m *Pool) observeRun(job string, err error) {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()

	result := "success"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	if err == nil {
		m.lastSuccess.WithLabelValues(job).Set(float64(m.now().Unix()))
	}
}
