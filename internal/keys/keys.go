// Package keys derives the storage keys for materialized feeds.
//
// Every feed key is owned by exactly one (kind, owner id) pair:
//
//	feed:home:<accountId>
//	feed:list:<listId>
//	feed:antenna:<antennaId>
//
// Each feed additionally owns a reblog shadow index and one set per
// boosted content id:
//
//	<feedKey>:reblogs
//	<feedKey>:reblogs:<contentId>
//
// The per-content set keys are not enumerable from the scheme alone;
// they are derived from the members of the reblog index. CleanupPlan
// models that read-before-delete dependency explicitly so the vacuum
// sweep can delete an owner's keys completely.
package keys

import (
	"errors"
	"fmt"
)

// FeedKind identifies the kind of owner a feed belongs to.
type FeedKind int

const (
	// Home is an account's home timeline.
	Home FeedKind = iota
	// List is a list timeline, owned by a list entity.
	List
	// Antenna is a topic/filter subscription timeline.
	Antenna
)

// Kinds lists every feed kind. Iterated by callers that must handle
// all kinds, such as key-collision tests.
var Kinds = []FeedKind{Home, List, Antenna}

// ErrUnknownKind is returned when a string does not name a feed kind.
var ErrUnknownKind = errors.New("keys: unknown feed kind")

func (k FeedKind) String() string {
	switch k {
	case Home:
		return "home"
	case List:
		return "list"
	case Antenna:
		return "antenna"
	default:
		return "unknown"
	}
}

// ParseFeedKind converts a string to a FeedKind.
func ParseFeedKind(s string) (FeedKind, error) {
	switch s {
	case "home":
		return Home, nil
	case "list":
		return List, nil
	case "antenna":
		return Antenna, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

const (
	feedPrefix   = "feed"
	reblogSuffix = "reblogs"
)

// FeedKey returns the storage key for an owner's feed.
// Deterministic and collision-free across kinds: the kind name is part
// of the key, so the same numeric id under two kinds never collides.
func FeedKey(kind FeedKind, ownerID string) string {
	return fmt.Sprintf("%s:%s:%s", feedPrefix, kind, ownerID)
}

// ReblogIndexKey returns the key of the reblog shadow index for a feed.
// Its members are the content ids currently boosted into the feed.
func ReblogIndexKey(feedKey string) string {
	return feedKey + ":" + reblogSuffix
}

// ReblogSetKey returns the key of the per-content booster set for a feed.
func ReblogSetKey(feedKey, contentID string) string {
	return feedKey + ":" + reblogSuffix + ":" + contentID
}

// IndexCleanup references an index key whose members must be read
// before deletion: each member derives one additional key via
// KeyForMember, and those derived keys must be deleted together with
// the index key itself.
type IndexCleanup struct {
	// IndexKey is the shadow index set to read and then delete.
	IndexKey string

	// feedKey is the parent feed the index belongs to.
	feedKey string
}

// KeyForMember derives the storage key for one member of the index.
func (c IndexCleanup) KeyForMember(member string) string {
	return ReblogSetKey(c.feedKey, member)
}

// CleanupPlan is the two-step deletion plan for one owner's keys.
//
// StaticKeys can be deleted without any prior read. Indexes must be
// read first; their members derive further keys to delete. Executing
// the plan in order (indexes, then static keys) keeps re-runs safe:
// a failed index read leaves the index key in place for the next run.
type CleanupPlan struct {
	StaticKeys []string
	Indexes    []IndexCleanup
}

// OwnerCleanupPlan returns the complete deletion plan for an owner's
// feed: the feed key itself plus its reblog shadow keys.
func OwnerCleanupPlan(kind FeedKind, ownerID string) CleanupPlan {
	feedKey := FeedKey(kind, ownerID)
	return CleanupPlan{
		StaticKeys: []string{feedKey},
		Indexes: []IndexCleanup{
			{IndexKey: ReblogIndexKey(feedKey), feedKey: feedKey},
		},
	}
}
