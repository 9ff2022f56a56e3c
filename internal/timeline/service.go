// Package timeline exposes the mutation and read surface for
// materialized feeds. External ingestion logic goes through Service
// and never constructs storage keys itself.
//
// Service is constructed once at process start and shared by
// reference between request handlers and the vacuum worker; there is
// no package-level singleton.
package timeline

import (
	"context"
	"fmt"

	"github.com/vireo-social/vireo/internal/feedstore"
	"github.com/vireo-social/vireo/internal/keys"
	"github.com/vireo-social/vireo/internal/reblog"
)

// DefaultMaxSize bounds a feed when no per-kind capacity is configured.
const DefaultMaxSize = 400

// Config holds per-kind feed capacities.
type Config struct {
	// MaxHomeSize caps home timelines. Default: DefaultMaxSize.
	MaxHomeSize int64
	// MaxListSize caps list timelines. Default: DefaultMaxSize.
	MaxListSize int64
	// MaxAntennaSize caps antenna timelines. Default: DefaultMaxSize.
	MaxAntennaSize int64
}

// DefaultConfig returns the default capacities.
func DefaultConfig() Config {
	return Config{
		MaxHomeSize:    DefaultMaxSize,
		MaxListSize:    DefaultMaxSize,
		MaxAntennaSize: DefaultMaxSize,
	}
}

// Service is the feed manager: it owns all writes into the feed store
// and the reblog shadow index on behalf of ingestion collaborators.
type Service struct {
	store  feedstore.Store
	shadow *reblog.ShadowIndex
	config Config
}

// NewService creates a Service. Zero capacities in config are replaced
// with DefaultMaxSize.
func NewService(store feedstore.Store, config Config) *Service {
	if config.MaxHomeSize <= 0 {
		config.MaxHomeSize = DefaultMaxSize
	}
	if config.MaxListSize <= 0 {
		config.MaxListSize = DefaultMaxSize
	}
	if config.MaxAntennaSize <= 0 {
		config.MaxAntennaSize = DefaultMaxSize
	}
	return &Service{
		store:  store,
		shadow: reblog.NewShadowIndex(store),
		config: config,
	}
}

// Shadow returns the reblog shadow index, shared with the vacuum worker.
func (s *Service) Shadow() *reblog.ShadowIndex {
	return s.shadow
}

func (s *Service) maxSize(kind keys.FeedKind) int64 {
	switch kind {
	case keys.Home:
		return s.config.MaxHomeSize
	case keys.List:
		return s.config.MaxListSize
	case keys.Antenna:
		return s.config.MaxAntennaSize
	default:
		return DefaultMaxSize
	}
}

// PushEntry inserts an entry into an owner's feed and trims the feed
// to its capacity. Pushing an existing entry id updates its score.
// Backend errors surface directly; retry policy belongs to the caller.
func (s *Service) PushEntry(ctx context.Context, kind keys.FeedKind, ownerID, entryID string, score float64) error {
	feedKey := keys.FeedKey(kind, ownerID)

	if err := s.store.Add(ctx, feedKey, entryID, score); err != nil {
		return fmt.Errorf("timeline: push entry: %w", err)
	}
	if err := s.store.Trim(ctx, feedKey, s.maxSize(kind)); err != nil {
		return fmt.Errorf("timeline: trim feed: %w", err)
	}
	return nil
}

// RecordBoost records a boost of contentID by boosterID into an
// owner's feed. The first boost inserts contentID as a feed entry;
// later boosts are recorded in the shadow index but suppressed.
// Reports whether a feed entry was inserted.
func (s *Service) RecordBoost(ctx context.Context, kind keys.FeedKind, ownerID, contentID, boosterID string, score float64) (bool, error) {
	feedKey := keys.FeedKey(kind, ownerID)

	first, err := s.shadow.RecordBoost(ctx, feedKey, contentID, boosterID)
	if err != nil {
		return false, fmt.Errorf("timeline: record boost: %w", err)
	}
	if !first {
		return false, nil
	}

	if err := s.store.Add(ctx, feedKey, contentID, score); err != nil {
		return false, fmt.Errorf("timeline: push boosted entry: %w", err)
	}
	if err := s.store.Trim(ctx, feedKey, s.maxSize(kind)); err != nil {
		return false, fmt.Errorf("timeline: trim feed: %w", err)
	}
	return true, nil
}

// UnrecordBoost removes a boost. When the last booster of contentID is
// removed the feed entry itself is removed, since nothing backs it.
// Reports whether the feed entry was removed.
func (s *Service) UnrecordBoost(ctx context.Context, kind keys.FeedKind, ownerID, contentID, boosterID string) (bool, error) {
	feedKey := keys.FeedKey(kind, ownerID)

	empty, err := s.shadow.UnrecordBoost(ctx, feedKey, contentID, boosterID)
	if err != nil {
		return false, fmt.Errorf("timeline: unrecord boost: %w", err)
	}
	if !empty {
		return false, nil
	}

	if err := s.store.Remove(ctx, feedKey, contentID); err != nil {
		return false, fmt.Errorf("timeline: remove boosted entry: %w", err)
	}
	return true, nil
}

// Range reads a page of an owner's feed ordered by descending score.
// An absent feed yields an empty page.
func (s *Service) Range(ctx context.Context, kind keys.FeedKind, ownerID string, start, stop int64) ([]feedstore.Entry, error) {
	return s.store.RangeDesc(ctx, keys.FeedKey(kind, ownerID), start, stop)
}

// Card returns the number of entries in an owner's feed, 0 if absent.
func (s *Service) Card(ctx context.Context, kind keys.FeedKind, ownerID string) (int64, error) {
	return s.store.Card(ctx, keys.FeedKey(kind, ownerID))
}
