package database

import "context"

type DBPool = dbPool

// WithNewPool overrides the connection pool constructor, for tests.
func WithNewPool(f func(ctx context.Context, dsn string) (DBPool, error)) Options {
	return func(o *options) {
		o.newPool = f
	}
}
