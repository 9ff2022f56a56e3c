// Package feedstore defines the Store interface over the ordered-set
// backend that holds materialized feeds. The default implementation
// uses Redis (see the redis subpackage); MockStore provides an
// in-memory implementation for tests.
//
// Every operation is atomic at single-key granularity. No cross-key
// transaction is offered or required: feed writes, shadow-index
// bookkeeping, and vacuum deletions are all sequences of independent
// single-key operations that remain correct under interleaving.
package feedstore

import (
	"context"
	"errors"
)

// Common errors returned by Store operations.
var (
	// ErrUnavailable is returned when the backend cannot be reached.
	// Transient: the caller owns the retry policy, the store never
	// retries on its own.
	ErrUnavailable = errors.New("feedstore: backend unavailable")

	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("feedstore: store closed")
)

// Entry is one member of a feed: a content entry id with its ranking
// score. Higher scores sort first.
type Entry struct {
	ID    string
	Score float64
}

// Store is the ordered-set and plain-set surface the feed subsystem
// needs from its key/value backend. Keys are opaque strings produced
// by the keys package; callers never construct them by hand.
type Store interface {
	// Add inserts entryID into the ordered set at key with the given
	// score, creating the key if absent. If entryID is already a
	// member its score is updated; the set never holds duplicates.
	Add(ctx context.Context, key, entryID string, score float64) error

	// Remove deletes a single member from the ordered set at key.
	// Removing an absent member or key is a no-op.
	Remove(ctx context.Context, key, entryID string) error

	// Trim removes the lowest-scored entries beyond maxSize.
	// No-op when the set holds maxSize entries or fewer.
	Trim(ctx context.Context, key string, maxSize int64) error

	// RangeDesc returns entries ordered by descending score, from rank
	// start to rank stop inclusive (0 is the highest-scored entry,
	// stop -1 means the end). An absent key yields an empty slice,
	// not an error.
	RangeDesc(ctx context.Context, key string, start, stop int64) ([]Entry, error)

	// Exists reports whether key holds any data.
	Exists(ctx context.Context, key string) (bool, error)

	// Card returns the number of entries at key, 0 if absent.
	Card(ctx context.Context, key string) (int64, error)

	// Delete removes the given keys entirely. Deleting an absent key
	// is a no-op success, so deletes are safely re-runnable.
	Delete(ctx context.Context, keys ...string) error

	// SetAdd adds member to the plain set at key, creating it lazily.
	// Reports whether the member was newly added.
	SetAdd(ctx context.Context, key, member string) (bool, error)

	// SetRemove removes member from the plain set at key. The backend
	// discards the key once its last member is removed. Reports
	// whether the member was present.
	SetRemove(ctx context.Context, key, member string) (bool, error)

	// SetMembers returns all members of the plain set at key.
	// An absent key yields an empty slice.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// SetCard returns the number of members at key, 0 if absent.
	SetCard(ctx context.Context, key string) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
