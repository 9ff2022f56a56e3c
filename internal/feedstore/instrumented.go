package feedstore

import (
	"context"
	"time"
)

// MetricsRecorder receives one observation per store operation.
// Decouples this package from the metrics package.
type MetricsRecorder interface {
	RecordOp(op string, durationSeconds float64, success bool)
}

// InstrumentedStore wraps a Store and records metrics for each operation.
type InstrumentedStore struct {
	store   Store
	metrics MetricsRecorder
}

// NewInstrumentedStore creates an instrumented wrapper around a Store.
// If metrics is nil, operations pass through unrecorded.
func NewInstrumentedStore(store Store, metrics MetricsRecorder) *InstrumentedStore {
	return &InstrumentedStore{store: store, metrics: metrics}
}

func (s *InstrumentedStore) record(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordOp(op, time.Since(start).Seconds(), err == nil)
	}
}

func (s *InstrumentedStore) Add(ctx context.Context, key, entryID string, score float64) error {
	start := time.Now()
	err := s.store.Add(ctx, key, entryID, score)
	s.record("add", start, err)
	return err
}

func (s *InstrumentedStore) Remove(ctx context.Context, key, entryID string) error {
	start := time.Now()
	err := s.store.Remove(ctx, key, entryID)
	s.record("remove", start, err)
	return err
}

func (s *InstrumentedStore) Trim(ctx context.Context, key string, maxSize int64) error {
	start := time.Now()
	err := s.store.Trim(ctx, key, maxSize)
	s.record("trim", start, err)
	return err
}

func (s *InstrumentedStore) RangeDesc(ctx context.Context, key string, startRank, stop int64) ([]Entry, error) {
	start := time.Now()
	entries, err := s.store.RangeDesc(ctx, key, startRank, stop)
	s.record("range", start, err)
	return entries, err
}

func (s *InstrumentedStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.store.Exists(ctx, key)
	s.record("exists", start, err)
	return ok, err
}

func (s *InstrumentedStore) Card(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := s.store.Card(ctx, key)
	s.record("card", start, err)
	return n, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := s.store.Delete(ctx, keys...)
	s.record("delete", start, err)
	return err
}

func (s *InstrumentedStore) SetAdd(ctx context.Context, key, member string) (bool, error) {
	start := time.Now()
	added, err := s.store.SetAdd(ctx, key, member)
	s.record("set_add", start, err)
	return added, err
}

func (s *InstrumentedStore) SetRemove(ctx context.Context, key, member string) (bool, error) {
	start := time.Now()
	removed, err := s.store.SetRemove(ctx, key, member)
	s.record("set_remove", start, err)
	return removed, err
}

func (s *InstrumentedStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	members, err := s.store.SetMembers(ctx, key)
	s.record("set_members", start, err)
	return members, err
}

func (s *InstrumentedStore) SetCard(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := s.store.SetCard(ctx, key)
	s.record("set_card", start, err)
	return n, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}
