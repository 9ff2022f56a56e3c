package vacuum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vireo-social/vireo/internal/feedstore"
	"github.com/vireo-social/vireo/internal/keys"
	"github.com/vireo-social/vireo/internal/metrics"
	"github.com/vireo-social/vireo/internal/reblog"
)

type fakeOracle struct {
	lastSignIn map[string]time.Time
	err        error
}

func (o *fakeOracle) InactiveAccounts(_ context.Context, threshold time.Time) ([]string, error) {
	if o.err != nil {
		return nil, o.err
	}
	var out []string
	for id, signIn := range o.lastSignIn {
		if signIn.Before(threshold) {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeResolver struct {
	lists      map[string][]string
	antennas   map[string][]string
	listErr    map[string]error
	antennaErr map[string]error
}

func (r *fakeResolver) ListsOwnedBy(_ context.Context, accountID string) ([]string, error) {
	if err := r.listErr[accountID]; err != nil {
		return nil, err
	}
	return r.lists[accountID], nil
}

func (r *fakeResolver) AntennasOwnedBy(_ context.Context, accountID string) ([]string, error) {
	if err := r.antennaErr[accountID]; err != nil {
		return nil, err
	}
	return r.antennas[accountID], nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestWorker(store feedstore.Store, oracle *fakeOracle, resolver *fakeResolver, config Config) *Worker {
	if config.RetryBackoff == 0 {
		config.RetryBackoff = -1
	}
	return NewWorker(store, oracle, resolver, nil, config)
}

// seedOwner populates a feed with entries and reblog bookkeeping the
// same way the timeline write path would.
func seedOwner(t *testing.T, store feedstore.Store, kind keys.FeedKind, ownerID string, entryIDs []string, boosts map[string][]string) string {
	t.Helper()
	ctx := context.Background()
	feedKey := keys.FeedKey(kind, ownerID)
	for i, id := range entryIDs {
		if err := store.Add(ctx, feedKey, id, float64(i+1)); err != nil {
			t.Fatalf("Add(%s, %s): %v", feedKey, id, err)
		}
	}
	shadow := reblog.NewShadowIndex(store)
	for contentID, boosters := range boosts {
		for _, boosterID := range boosters {
			if _, err := shadow.RecordBoost(ctx, feedKey, contentID, boosterID); err != nil {
				t.Fatalf("RecordBoost(%s, %s, %s): %v", feedKey, contentID, boosterID, err)
			}
		}
	}
	return feedKey
}

func mustNotExist(t *testing.T, store feedstore.Store, key string) {
	t.Helper()
	ok, err := store.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("Exists(%s): %v", key, err)
	}
	if ok {
		t.Fatalf("key %s still exists", key)
	}
}

func mustExist(t *testing.T, store feedstore.Store, key string) {
	t.Helper()
	ok, err := store.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("Exists(%s): %v", key, err)
	}
	if !ok {
		t.Fatalf("key %s does not exist", key)
	}
}

func TestSweepDeletesInactiveOwnerData(t *testing.T) {
	store := feedstore.NewMockStore()
	feedKey := seedOwner(t, store, keys.Home, "alice", []string{"s1", "s2"}, map[string][]string{
		"c1": {"b1", "b2"},
	})
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"alice": time.Now().Add(-30 * 24 * time.Hour),
	}}
	w := newTestWorker(store, oracle, &fakeResolver{}, Config{})

	res, err := w.Sweep(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.AccountsScanned != 1 {
		t.Fatalf("AccountsScanned = %d, want 1", res.AccountsScanned)
	}
	if res.OwnersSwept != 1 {
		t.Fatalf("OwnersSwept = %d, want 1", res.OwnersSwept)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", res.Failures)
	}

	mustNotExist(t, store, feedKey)
	mustNotExist(t, store, keys.ReblogIndexKey(feedKey))
	mustNotExist(t, store, keys.ReblogSetKey(feedKey, "c1"))
	if got := store.Keys(); len(got) != 0 {
		t.Fatalf("leftover keys after sweep: %v", got)
	}
}

func TestSweepLeavesActiveOwnersUntouched(t *testing.T) {
	store := feedstore.NewMockStore()
	feedKey := seedOwner(t, store, keys.Home, "bob", []string{"s1", "s2", "s3"}, nil)
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"bob": time.Now().Add(-2 * 24 * time.Hour),
	}}
	w := newTestWorker(store, oracle, &fakeResolver{}, Config{})

	res, err := w.Sweep(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.AccountsScanned != 0 {
		t.Fatalf("AccountsScanned = %d, want 0", res.AccountsScanned)
	}
	entries, err := store.RangeDesc(context.Background(), feedKey, 0, -1)
	if err != nil {
		t.Fatalf("RangeDesc: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("feed entries = %d, want 3", len(entries))
	}
}

func TestSweepIdempotent(t *testing.T) {
	store := feedstore.NewMockStore()
	seedOwner(t, store, keys.Home, "alice", []string{"s1"}, map[string][]string{"c1": {"b1"}})
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"alice": time.Now().Add(-30 * 24 * time.Hour),
	}}
	w := newTestWorker(store, oracle, &fakeResolver{}, Config{})

	for i := 0; i < 2; i++ {
		res, err := w.Sweep(context.Background(), SweepOptions{})
		if err != nil {
			t.Fatalf("Sweep %d: %v", i, err)
		}
		if len(res.Failures) != 0 {
			t.Fatalf("Sweep %d failures: %v", i, res.Failures)
		}
	}
	if got := store.Keys(); len(got) != 0 {
		t.Fatalf("leftover keys: %v", got)
	}
}

func TestSweepDryRunReportsWithoutDeleting(t *testing.T) {
	store := feedstore.NewMockStore()
	feedKey := seedOwner(t, store, keys.Home, "alice", []string{"s1"}, map[string][]string{"c1": {"b1"}})
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"alice": time.Now().Add(-30 * 24 * time.Hour),
	}}
	w := newTestWorker(store, oracle, &fakeResolver{}, Config{})

	res, err := w.Sweep(context.Background(), SweepOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !res.DryRun {
		t.Fatal("result not marked dry-run")
	}
	if res.KeysDeleted != 0 {
		t.Fatalf("KeysDeleted = %d, want 0", res.KeysDeleted)
	}
	want := map[string]bool{
		feedKey:                          false,
		keys.ReblogIndexKey(feedKey):     false,
		keys.ReblogSetKey(feedKey, "c1"): false,
	}
	for _, key := range res.WouldDelete {
		if _, ok := want[key]; !ok {
			t.Fatalf("unexpected would-delete key %s", key)
		}
		want[key] = true
	}
	for key, seen := range want {
		if !seen {
			t.Fatalf("key %s missing from WouldDelete", key)
		}
	}
	mustExist(t, store, feedKey)
	mustExist(t, store, keys.ReblogIndexKey(feedKey))
	mustExist(t, store, keys.ReblogSetKey(feedKey, "c1"))
}

func TestSweepThresholdOverride(t *testing.T) {
	store := feedstore.NewMockStore()
	feedKey := seedOwner(t, store, keys.Home, "alice", []string{"s1"}, nil)
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"alice": time.Now().Add(-5 * 24 * time.Hour),
	}}
	w := newTestWorker(store, oracle, &fakeResolver{}, Config{})

	if _, err := w.Sweep(context.Background(), SweepOptions{}); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	mustExist(t, store, feedKey)

	if _, err := w.Sweep(context.Background(), SweepOptions{Threshold: 3 * 24 * time.Hour}); err != nil {
		t.Fatalf("Sweep with override: %v", err)
	}
	mustNotExist(t, store, feedKey)
}

func TestSweepResolverFailureSkipsDerivedFeeds(t *testing.T) {
	store := feedstore.NewMockStore()
	homeKey := seedOwner(t, store, keys.Home, "alice", []string{"s1"}, nil)
	listKey := seedOwner(t, store, keys.List, "l1", []string{"s2"}, nil)
	antennaKey := seedOwner(t, store, keys.Antenna, "n1", []string{"s3"}, nil)
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"alice": time.Now().Add(-30 * 24 * time.Hour),
	}}
	resolver := &fakeResolver{
		lists:    map[string][]string{"alice": {"l1"}},
		antennas: map[string][]string{"alice": {"n1"}},
		listErr:  map[string]error{"alice": errors.New("lists table unavailable")},
	}
	w := newTestWorker(store, oracle, resolver, Config{})

	res, err := w.Sweep(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	mustNotExist(t, store, homeKey)
	mustExist(t, store, listKey)
	mustNotExist(t, store, antennaKey)

	if len(res.Failures) != 1 {
		t.Fatalf("Failures = %v, want 1", res.Failures)
	}
	f := res.Failures[0]
	if f.Kind != keys.List || f.OwnerID != "alice" || f.Failure != FailureResolution {
		t.Fatalf("unexpected failure %+v", f)
	}
}

func TestSweepRetriesTransientDeleteFailure(t *testing.T) {
	store := feedstore.NewMockStore()
	feedKey := seedOwner(t, store, keys.Home, "alice", []string{"s1"}, nil)
	store.FailKey(feedKey, 1, errors.New("transient"))
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"alice": time.Now().Add(-30 * 24 * time.Hour),
	}}
	w := newTestWorker(store, oracle, &fakeResolver{}, Config{DeleteAttempts: 3})

	res, err := w.Sweep(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", res.Failures)
	}
	mustNotExist(t, store, feedKey)
}

func TestSweepRecordsFailureAfterExhaustedRetries(t *testing.T) {
	store := feedstore.NewMockStore()
	aliceKey := seedOwner(t, store, keys.Home, "alice", []string{"s1"}, nil)
	carolKey := seedOwner(t, store, keys.Home, "carol", []string{"s2"}, nil)
	store.FailKey(aliceKey, 10, errors.New("persistent"))
	old := time.Now().Add(-30 * 24 * time.Hour)
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{"alice": old, "carol": old}}
	w := newTestWorker(store, oracle, &fakeResolver{}, Config{DeleteAttempts: 2, Concurrency: 1})

	res, err := w.Sweep(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("Failures = %v, want 1", res.Failures)
	}
	f := res.Failures[0]
	if f.Kind != keys.Home || f.OwnerID != "alice" || f.Failure != FailureDeletion {
		t.Fatalf("unexpected failure %+v", f)
	}
	if res.OwnersSwept != 1 {
		t.Fatalf("OwnersSwept = %d, want 1", res.OwnersSwept)
	}
	mustExist(t, store, aliceKey)
	mustNotExist(t, store, carolKey)
}

func TestSweepOracleError(t *testing.T) {
	store := feedstore.NewMockStore()
	oracle := &fakeOracle{err: errors.New("database down")}
	w := newTestWorker(store, oracle, &fakeResolver{}, Config{})

	res, err := w.Sweep(context.Background(), SweepOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}
}

func TestSweepEndToEnd(t *testing.T) {
	store := feedstore.NewMockStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	aliceHome := seedOwner(t, store, keys.Home, "alice", []string{"s1", "s2"}, map[string][]string{"c1": {"b1"}})
	aliceList := seedOwner(t, store, keys.List, "l1", []string{"s3", "s4", "s5"}, map[string][]string{"c2": {"b2", "b3"}})
	aliceAntenna := seedOwner(t, store, keys.Antenna, "n1", []string{"s6"}, nil)
	bobHome := seedOwner(t, store, keys.Home, "bob", []string{"s7", "s8"}, map[string][]string{"c3": {"b4"}})

	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"alice": now.Add(-22 * 24 * time.Hour),
		"bob":   now.Add(-2 * 24 * time.Hour),
	}}
	resolver := &fakeResolver{
		lists:    map[string][]string{"alice": {"l1"}},
		antennas: map[string][]string{"alice": {"n1"}},
	}
	w := newTestWorker(store, oracle, resolver, Config{Concurrency: 2})
	w.SetClock(&fixedClock{now: now})

	res, err := w.Sweep(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.AccountsScanned != 1 {
		t.Fatalf("AccountsScanned = %d, want 1", res.AccountsScanned)
	}
	if res.OwnersSwept != 3 {
		t.Fatalf("OwnersSwept = %d, want 3", res.OwnersSwept)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", res.Failures)
	}

	for _, key := range []string{
		aliceHome, keys.ReblogIndexKey(aliceHome), keys.ReblogSetKey(aliceHome, "c1"),
		aliceList, keys.ReblogIndexKey(aliceList), keys.ReblogSetKey(aliceList, "c2"),
		aliceAntenna,
	} {
		mustNotExist(t, store, key)
	}

	mustExist(t, store, bobHome)
	mustExist(t, store, keys.ReblogIndexKey(bobHome))
	mustExist(t, store, keys.ReblogSetKey(bobHome, "c3"))
	entries, err := store.RangeDesc(context.Background(), bobHome, 0, -1)
	if err != nil {
		t.Fatalf("RangeDesc: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("bob's feed entries = %d, want 2", len(entries))
	}
}

func TestSweepMetricsDistinguishDryRun(t *testing.T) {
	store := feedstore.NewMockStore()
	seedOwner(t, store, keys.Home, "alice", []string{"s1"}, nil)
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"alice": time.Now().Add(-30 * 24 * time.Hour),
	}}
	m := metrics.NewVacuumMetricsWithRegistry(prometheus.NewRegistry())
	w := NewWorker(store, oracle, &fakeResolver{}, m, Config{RetryBackoff: -1})

	if _, err := w.Sweep(context.Background(), SweepOptions{DryRun: true}); err != nil {
		t.Fatalf("dry-run sweep: %v", err)
	}
	if got := testutil.ToFloat64(m.SweepsTotal.WithLabelValues("dry_run")); got != 1 {
		t.Fatalf("dry_run sweeps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SweepsTotal.WithLabelValues("ok")); got != 0 {
		t.Fatalf("ok sweeps after dry run = %v, want 0", got)
	}

	if _, err := w.Sweep(context.Background(), SweepOptions{}); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := testutil.ToFloat64(m.SweepsTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok sweeps = %v, want 1", got)
	}
}

func TestSweepResultSerializesFailures(t *testing.T) {
	res := &SweepResult{
		RunID: "run-1",
		Failures: []OwnerFailure{{
			Kind:    keys.List,
			OwnerID: "l1",
			Failure: FailureDeletion,
			Err:     errors.New("persistent backend error"),
		}},
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{
		`"kind":"list"`,
		`"ownerId":"l1"`,
		`"failure":"deletion"`,
		`"error":"persistent backend error"`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("result JSON missing %s: %s", want, data)
		}
	}
}

func TestCleanupOwnerRemovesFeedImmediately(t *testing.T) {
	store := feedstore.NewMockStore()
	feedKey := seedOwner(t, store, keys.List, "l1", []string{"s1", "s2"}, map[string][]string{
		"c1": {"b1"},
		"c2": {"b2", "b3"},
	})
	w := newTestWorker(store, &fakeOracle{}, &fakeResolver{}, Config{})

	if err := w.CleanupOwner(context.Background(), keys.List, "l1"); err != nil {
		t.Fatalf("CleanupOwner: %v", err)
	}
	mustNotExist(t, store, feedKey)
	mustNotExist(t, store, keys.ReblogIndexKey(feedKey))
	mustNotExist(t, store, keys.ReblogSetKey(feedKey, "c1"))
	mustNotExist(t, store, keys.ReblogSetKey(feedKey, "c2"))
}

func TestWorkerStartStop(t *testing.T) {
	store := feedstore.NewMockStore()
	feedKey := seedOwner(t, store, keys.Home, "alice", []string{"s1"}, nil)
	oracle := &fakeOracle{lastSignIn: map[string]time.Time{
		"alice": time.Now().Add(-30 * 24 * time.Hour),
	}}
	w := newTestWorker(store, oracle, &fakeResolver{}, Config{Interval: 10 * time.Millisecond})

	w.Start(context.Background())
	defer w.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		ok, err := store.Exists(context.Background(), feedKey)
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("feed not reclaimed before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w.Stop()
	w.Stop() // second Stop is a no-op
	if got := w.State(); got != StateIdle {
		t.Fatalf("State() = %v, want idle", got)
	}
}

func TestStateReturnsToIdleAfterSweep(t *testing.T) {
	store := feedstore.NewMockStore()
	w := newTestWorker(store, &fakeOracle{}, &fakeResolver{}, Config{})
	if _, err := w.Sweep(context.Background(), SweepOptions{}); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if got := w.State(); got != StateIdle {
		t.Fatalf("State() = %v, want idle", got)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:     "idle",
		StateScanning: "scanning",
		StateSweeping: "sweeping",
		State(99):     fmt.Sprintf("unknown(%d)", 99),
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", int32(state), got, want)
		}
	}
}
