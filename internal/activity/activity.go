// Package activity answers the one question the vacuum sweep asks of
// the account database: which owners are inactive. It also resolves
// the lists and antennas an account owns, so their feeds can be swept
// together with the account's home feed.
//
// Feeds themselves never consult this package; they are written
// independently of owner activity.
package activity

import (
	"context"
	"errors"
	"time"
)

// ErrResolution is returned when lists or antennas owned by an account
// cannot be resolved. The sweep skips that account's derived cleanups
// and continues.
var ErrResolution = errors.New("activity: owner resolution failed")

// Oracle reports accounts with no qualifying activity since the
// threshold. The returned slice is a point-in-time snapshot: the
// caller iterates it for a whole sweep, so an account cannot flicker
// between active and inactive mid-run.
type Oracle interface {
	InactiveAccounts(ctx context.Context, threshold time.Time) ([]string, error)
}

// OwnerResolver resolves the feed owners controlled by an account.
type OwnerResolver interface {
	ListsOwnedBy(ctx context.Context, accountID string) ([]string, error)
	AntennasOwnedBy(ctx context.Context, accountID string) ([]string, error)
}
