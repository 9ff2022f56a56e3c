package server

import (
	"context"
	"errors"

	"github.com/vireo-social/vireo/internal/feedstore"
)

// FeedStoreChecker implements ReadinessChecker for the feed store. It
// verifies the Redis connection is healthy with a ping.
type FeedStoreChecker struct {
	store feedstore.Store
}

// NewFeedStoreChecker creates a new FeedStoreChecker.
func NewFeedStoreChecker(store feedstore.Store) *FeedStoreChecker {
	return &FeedStoreChecker{store: store}
}

// Name returns the name of this component for health status display.
func (c *FeedStoreChecker) Name() string {
	return "feed_store"
}

// CheckReady verifies the feed store is accessible.
func (c *FeedStoreChecker) CheckReady(ctx context.Context) error {
	if c.store == nil {
		return errors.New("feed store not configured")
	}
	return c.store.Ping(ctx)
}

// Pinger is implemented by backends that expose a connectivity check,
// such as the activity database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker implements ReadinessChecker for the activity
// database backing the vacuum oracle.
type DatabaseChecker struct {
	db Pinger
}

// NewDatabaseChecker creates a new DatabaseChecker.
func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

// Name returns the name of this component for health status display.
func (c *DatabaseChecker) Name() string {
	return "database"
}

// CheckReady verifies the database is accessible.
func (c *DatabaseChecker) CheckReady(ctx context.Context) error {
	if c.db == nil {
		return errors.New("database not configured")
	}
	return c.db.Ping(ctx)
}

// FuncChecker is a simple ReadinessChecker that wraps a function.
// Useful for ad-hoc checks or testing.
type FuncChecker struct {
	name  string
	check func(context.Context) error
}

// NewFuncChecker creates a new FuncChecker with the given name and check function.
func NewFuncChecker(name string, check func(context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, check: check}
}

// Name returns the name of this component.
func (c *FuncChecker) Name() string {
	return c.name
}

// CheckReady calls the wrapped function.
func (c *FuncChecker) CheckReady(ctx context.Context) error {
	if c.check == nil {
		return nil
	}
	return c.check(ctx)
}
