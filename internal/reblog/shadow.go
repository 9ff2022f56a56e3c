// Package reblog maintains the shadow index that deduplicates boosted
// content within a feed.
//
// For each feed there is one index set listing the content ids
// currently boosted into it, and one set per content id listing the
// accounts that boosted it. Only the first boost of a content id
// becomes a visible feed entry; later boosts are recorded in the
// shadow sets but suppressed from the feed. The index and its
// per-content sets are always deleted together so neither can outlive
// the other.
package reblog

import (
	"context"
	"fmt"

	"github.com/vireo-social/vireo/internal/feedstore"
	"github.com/vireo-social/vireo/internal/keys"
)

// ShadowIndex tracks boosts per feed on top of the feed store.
type ShadowIndex struct {
	store feedstore.Store
}

// NewShadowIndex creates a ShadowIndex over the given store.
func NewShadowIndex(store feedstore.Store) *ShadowIndex {
	return &ShadowIndex{store: store}
}

// IsFirstBoost reports whether no booster is currently recorded for
// contentID in the feed. Callers use it to decide whether a boost
// should surface as a new feed entry. RecordBoost's return value is
// the authoritative answer under concurrency; this read exists for
// callers that only need to inspect.
func (s *ShadowIndex) IsFirstBoost(ctx context.Context, feedKey, contentID string) (bool, error) {
	n, err := s.store.SetCard(ctx, keys.ReblogSetKey(feedKey, contentID))
	if err != nil {
		return false, fmt.Errorf("reblog: count boosters: %w", err)
	}
	return n == 0, nil
}

// RecordBoost records boosterID as having boosted contentID into the
// feed. Reports whether this was the first boost of contentID, in
// which case the caller inserts the feed entry. Index membership means
// "some booster exists", so the single atomic index add decides
// firstness: exactly one of any set of concurrent boosters observes
// first=true. The index is written before the per-content set so a
// failure in between cannot leave a booster set the index (and thus
// Purge) never learns about.
func (s *ShadowIndex) RecordBoost(ctx context.Context, feedKey, contentID, boosterID string) (bool, error) {
	first, err := s.store.SetAdd(ctx, keys.ReblogIndexKey(feedKey), contentID)
	if err != nil {
		return false, fmt.Errorf("reblog: index content: %w", err)
	}

	if _, err := s.store.SetAdd(ctx, keys.ReblogSetKey(feedKey, contentID), boosterID); err != nil {
		return false, fmt.Errorf("reblog: record boost: %w", err)
	}
	return first, nil
}

// UnrecordBoost removes boosterID from contentID's booster set.
// Reports whether the set became empty: when it did, the content id
// has been dropped from the feed's reblog index and the caller must
// remove the corresponding feed entry, since no booster backs it.
func (s *ShadowIndex) UnrecordBoost(ctx context.Context, feedKey, contentID, boosterID string) (bool, error) {
	setKey := keys.ReblogSetKey(feedKey, contentID)

	if _, err := s.store.SetRemove(ctx, setKey, boosterID); err != nil {
		return false, fmt.Errorf("reblog: unrecord boost: %w", err)
	}

	n, err := s.store.SetCard(ctx, setKey)
	if err != nil {
		return false, fmt.Errorf("reblog: count boosters: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	if _, err := s.store.SetRemove(ctx, keys.ReblogIndexKey(feedKey), contentID); err != nil {
		return false, fmt.Errorf("reblog: unindex content: %w", err)
	}
	return true, nil
}

// Purge deletes the feed's reblog index and every per-content set it
// references. Used exclusively by the vacuum sweep. The index members
// are read before any deletion so no per-content set is left behind.
func (s *ShadowIndex) Purge(ctx context.Context, feedKey string) error {
	indexKey := keys.ReblogIndexKey(feedKey)

	members, err := s.store.SetMembers(ctx, indexKey)
	if err != nil {
		return fmt.Errorf("reblog: read index %s: %w", indexKey, err)
	}

	toDelete := make([]string, 0, len(members)+1)
	for _, contentID := range members {
		toDelete = append(toDelete, keys.ReblogSetKey(feedKey, contentID))
	}
	toDelete = append(toDelete, indexKey)

	if err := s.store.Delete(ctx, toDelete...); err != nil {
		return fmt.Errorf("reblog: purge %s: %w", indexKey, err)
	}
	return nil
}
