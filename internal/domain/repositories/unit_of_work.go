package repositories

import "context"

// UnitOfWork scopes several repository calls to one database transaction
type UnitOfWork interface {
	// Do runs fn with a context bound to the transaction; returning an error rolls back.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	// WithLock makes reads inside Do take row locks.
	WithLock(ctx context.Context) context.Context
}
