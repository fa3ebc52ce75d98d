package jobs

import "time"

type (
	DConfigManager = dConfigManager
	DGitHub        = dGitHub
	DStore         = dStore
)

// WithTimelineInterval overrides the delay between category polls.
func WithTimelineInterval(d time.Duration) Options {
	return func(o *options) {
		o.timelineInterval = d
	}
}

// WithDailyInterval overrides the delay between daily job runs.
func WithDailyInterval(d time.Duration) Options {
	return func(o *options) {
		o.dailyInterval = d
	}
}

// WithRetryDelay overrides the delay before retrying an incomplete search.
func WithRetryDelay(d time.Duration) Options {
	return func(o *options) {
		o.retryDelay = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// WorkerNames returns the category names of active workers.
func (m *Pool) WorkerNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.workers))
	for name := range m.workers {
		names = append(names, name)
	}
	return names
}
