package feedstore

import (
	"context"
	"sort"
	"sync"
)

// MockStore implements Store in memory for testing. It is exported so
// that tests in other packages can use it.
//
// Failure injection: FailKey arms an error for the next N operations
// touching a specific key, FailAll for every operation. This is how
// sweep tests exercise per-key deletion failures without a backend.
type MockStore struct {
	mu     sync.RWMutex
	zsets  map[string]map[string]float64
	sets   map[string]map[string]struct{}
	closed bool

	failAll  error
	failKeys map[string]*keyFailure
}

type keyFailure struct {
	remaining int
	err       error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		zsets:    make(map[string]map[string]float64),
		sets:     make(map[string]map[string]struct{}),
		failKeys: make(map[string]*keyFailure),
	}
}

// FailAll makes every subsequent operation return err. Pass nil to clear.
func (m *MockStore) FailAll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = err
}

// FailKey makes the next times operations touching key return err.
func (m *MockStore) FailKey(key string, times int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failKeys[key] = &keyFailure{remaining: times, err: err}
}

// checkLocked returns any armed failure for the given keys.
// Callers must hold m.mu.
func (m *MockStore) checkLocked(keys ...string) error {
	if m.closed {
		return ErrClosed
	}
	if m.failAll != nil {
		return m.failAll
	}
	for _, key := range keys {
		if f, ok := m.failKeys[key]; ok && f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				delete(m.failKeys, key)
			}
			return f.err
		}
	}
	return nil
}

func (m *MockStore) Add(_ context.Context, key, entryID string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return err
	}
	zset, ok := m.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		m.zsets[key] = zset
	}
	zset[entryID] = score
	return nil
}

func (m *MockStore) Remove(_ context.Context, key, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return err
	}
	if zset, ok := m.zsets[key]; ok {
		delete(zset, entryID)
		if len(zset) == 0 {
			delete(m.zsets, key)
		}
	}
	return nil
}

func (m *MockStore) Trim(_ context.Context, key string, maxSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return err
	}
	zset, ok := m.zsets[key]
	if !ok || int64(len(zset)) <= maxSize {
		return nil
	}
	entries := sortedDesc(zset)
	for _, e := range entries[maxSize:] {
		delete(zset, e.ID)
	}
	if len(zset) == 0 {
		delete(m.zsets, key)
	}
	return nil
}

func (m *MockStore) RangeDesc(_ context.Context, key string, start, stop int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return nil, err
	}
	zset, ok := m.zsets[key]
	if !ok {
		return []Entry{}, nil
	}
	entries := sortedDesc(zset)

	n := int64(len(entries))
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = n + start
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []Entry{}, nil
	}
	return entries[start : stop+1], nil
}

func (m *MockStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return false, err
	}
	_, z := m.zsets[key]
	_, s := m.sets[key]
	return z || s, nil
}

func (m *MockStore) Card(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return 0, err
	}
	return int64(len(m.zsets[key])), nil
}

func (m *MockStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(keys...); err != nil {
		return err
	}
	for _, key := range keys {
		delete(m.zsets, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *MockStore) SetAdd(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return false, err
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	if _, exists := set[member]; exists {
		return false, nil
	}
	set[member] = struct{}{}
	return true, nil
}

func (m *MockStore) SetRemove(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return false, err
	}
	set, ok := m.sets[key]
	if !ok {
		return false, nil
	}
	if _, exists := set[member]; !exists {
		return false, nil
	}
	delete(set, member)
	// Redis discards a set key once its last member is removed.
	if len(set) == 0 {
		delete(m.sets, key)
	}
	return true, nil
}

func (m *MockStore) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return nil, err
	}
	set, ok := m.sets[key]
	if !ok {
		return []string{}, nil
	}
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MockStore) SetCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(key); err != nil {
		return 0, err
	}
	return int64(len(m.sets[key])), nil
}

func (m *MockStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	if m.failAll != nil {
		return m.failAll
	}
	return nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Keys returns every live key in the store, sorted. Test helper.
func (m *MockStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.zsets)+len(m.sets))
	for k := range m.zsets {
		keys = append(keys, k)
	}
	for k := range m.sets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortedDesc returns the zset entries ordered by descending score,
// breaking score ties by descending id as ZREVRANGE does.
func sortedDesc(zset map[string]float64) []Entry {
	entries := make([]Entry, 0, len(zset))
	for id, score := range zset {
		entries = append(entries, Entry{ID: id, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ID > entries[j].ID
	})
	return entries
}
