package timeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireo-social/vireo/internal/feedstore"
	"github.com/vireo-social/vireo/internal/keys"
)

func newTestService() (*Service, *feedstore.MockStore) {
	store := feedstore.NewMockStore()
	return NewService(store, Config{MaxHomeSize: 5, MaxListSize: 3, MaxAntennaSize: 3}), store
}

func TestPushEntryTrimsToCapacity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	for i := 0; i < 8; i++ {
		require.NoError(t, svc.PushEntry(ctx, keys.Home, "1", fmt.Sprintf("e%d", i), float64(i)))
	}

	entries, err := svc.Range(ctx, keys.Home, "1", 0, -1)
	require.NoError(t, err)
	require.Len(t, entries, 5, "feed should be trimmed to capacity")
	assert.Equal(t, "e7", entries[0].ID, "highest-scored entry should survive")
	assert.Equal(t, "e3", entries[len(entries)-1].ID, "lowest survivor should be e3")
}

func TestPushEntryUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	require.NoError(t, svc.PushEntry(ctx, keys.Home, "1", "e1", 1))
	require.NoError(t, svc.PushEntry(ctx, keys.Home, "1", "e1", 10))

	n, err := svc.Card(ctx, keys.Home, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "re-push should update, not duplicate")
}

func TestRecordBoostOnlyFirstInserts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	inserted, err := svc.RecordBoost(ctx, keys.Home, "1", "st-1", "acct-a", 100)
	require.NoError(t, err)
	assert.True(t, inserted, "first boost should insert a feed entry")

	inserted, err = svc.RecordBoost(ctx, keys.Home, "1", "st-1", "acct-b", 200)
	require.NoError(t, err)
	assert.False(t, inserted, "second boost should not insert a duplicate")

	n, err := svc.Card(ctx, keys.Home, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUnrecordBoostRemovesEntryWhenUnbacked(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	_, err := svc.RecordBoost(ctx, keys.Home, "1", "st-1", "acct-a", 100)
	require.NoError(t, err)
	_, err = svc.RecordBoost(ctx, keys.Home, "1", "st-1", "acct-b", 200)
	require.NoError(t, err)

	removed, err := svc.UnrecordBoost(ctx, keys.Home, "1", "st-1", "acct-a")
	require.NoError(t, err)
	assert.False(t, removed, "entry should stay while a booster remains")

	removed, err = svc.UnrecordBoost(ctx, keys.Home, "1", "st-1", "acct-b")
	require.NoError(t, err)
	assert.True(t, removed, "entry should be removed after last booster gone")

	n, err := svc.Card(ctx, keys.Home, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	exists, err := store.Exists(ctx, keys.ReblogSetKey(keys.FeedKey(keys.Home, "1"), "st-1"))
	require.NoError(t, err)
	assert.False(t, exists, "booster set should be gone")
}

func TestKindsUseDistinctFeeds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	for _, kind := range keys.Kinds {
		require.NoError(t, svc.PushEntry(ctx, kind, "9", "e1", 1))
	}
	for _, kind := range keys.Kinds {
		n, err := svc.Card(ctx, kind, "9")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "kind %v", kind)
	}
}

func TestRangeAbsentOwnerEmpty(t *testing.T) {
	svc, _ := newTestService()

	entries, err := svc.Range(context.Background(), keys.Antenna, "nobody", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestZeroConfigGetsDefaults(t *testing.T) {
	svc := NewService(feedstore.NewMockStore(), Config{})
	assert.Equal(t, int64(DefaultMaxSize), svc.maxSize(keys.Home))
}
