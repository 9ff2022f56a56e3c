package vacuum

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vireo-social/vireo/internal/activity"
	"github.com/vireo-social/vireo/internal/feedstore"
	"github.com/vireo-social/vireo/internal/keys"
	"github.com/vireo-social/vireo/internal/logging"
	"github.com/vireo-social/vireo/internal/metrics"
	"github.com/vireo-social/vireo/internal/reblog"
)

const (
	// DefaultInterval is how often the background worker sweeps.
	DefaultInterval = 24 * time.Hour

	// DefaultInactivityThreshold is how long an account must have been
	// signed out before its feeds become reclaimable.
	DefaultInactivityThreshold = 21 * 24 * time.Hour

	// DefaultConcurrency bounds how many owners are cleaned in parallel.
	DefaultConcurrency = 4

	// DefaultDeleteAttempts bounds how many times a single key deletion
	// is retried before the owner is recorded as failed.
	DefaultDeleteAttempts = 3

	// DefaultRetryBackoff is the pause between attempts on one key.
	DefaultRetryBackoff = 100 * time.Millisecond
)

// State describes what the worker is currently doing.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateSweeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateSweeping:
		return "sweeping"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// FailureKind classifies why an owner's cleanup did not complete.
type FailureKind string

const (
	// FailureResolution means the owned lists or antennas of an account
	// could not be resolved; the account's derived feeds were skipped.
	FailureResolution FailureKind = "resolution"

	// FailureDeletion means one or more keys could not be deleted after
	// the configured number of attempts.
	FailureDeletion FailureKind = "deletion"
)

// OwnerFailure records one owner whose cleanup did not fully complete
// during a sweep. The sweep itself continues past failures.
type OwnerFailure struct {
	Kind    keys.FeedKind
	OwnerID string
	Failure FailureKind
	Err     error
}

// MarshalJSON renders the failure for sweep results returned over the
// admin API and the one-shot CLI.
func (f OwnerFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Kind    string      `json:"kind"`
		OwnerID string      `json:"ownerId"`
		Failure FailureKind `json:"failure"`
		Error   string      `json:"error,omitempty"`
	}{f.Kind.String(), f.OwnerID, f.Failure, msg})
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	RunID           string         `json:"runId"`
	DryRun          bool           `json:"dryRun"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      time.Time      `json:"finishedAt"`
	AccountsScanned int            `json:"accountsScanned"`
	OwnersSwept     int            `json:"ownersSwept"`
	KeysDeleted     int            `json:"keysDeleted"`
	WouldDelete     []string       `json:"wouldDelete,omitempty"`
	Failures        []OwnerFailure `json:"failures,omitempty"`
}

// SweepOptions adjusts a single manually triggered sweep.
type SweepOptions struct {
	// DryRun reports the keys that would be deleted without deleting.
	DryRun bool

	// Threshold overrides the configured inactivity threshold when
	// non-zero.
	Threshold time.Duration
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config controls the vacuum worker.
type Config struct {
	// Interval between scheduled sweeps. Defaults to DefaultInterval.
	Interval time.Duration

	// InactivityThreshold is the minimum sign-out age before an
	// account's feeds are reclaimed. Defaults to
	// DefaultInactivityThreshold.
	InactivityThreshold time.Duration

	// Concurrency bounds parallel owner cleanups. Defaults to
	// DefaultConcurrency.
	Concurrency int

	// DeleteAttempts bounds per-key deletion attempts. Defaults to
	// DefaultDeleteAttempts.
	DeleteAttempts int

	// RetryBackoff is the pause between attempts on one key. Zero
	// means DefaultRetryBackoff; negative disables the pause.
	RetryBackoff time.Duration

	// RatePerSecond caps issued deletions per second across the whole
	// sweep. Zero means unlimited.
	RatePerSecond float64

	// DryRun makes scheduled sweeps report instead of delete. Manual
	// sweeps carry their own flag.
	DryRun bool
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = DefaultInactivityThreshold
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.DeleteAttempts <= 0 {
		c.DeleteAttempts = DefaultDeleteAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	} else if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	return c
}

// Worker reclaims feed data belonging to inactive owners. It runs as a
// background loop but sweeps can also be triggered manually.
type Worker struct {
	store    feedstore.Store
	oracle   activity.Oracle
	resolver activity.OwnerResolver
	shadow   *reblog.ShadowIndex
	metrics  *metrics.VacuumMetrics
	config   Config
	clock    Clock
	limiter  *rate.Limiter

	state atomic.Int32

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker creates a vacuum worker. The metrics recorder may be nil.
func NewWorker(store feedstore.Store, oracle activity.Oracle, resolver activity.OwnerResolver, m *metrics.VacuumMetrics, config Config) *Worker {
	config = config.withDefaults()
	w := &Worker{
		store:    store,
		oracle:   oracle,
		resolver: resolver,
		shadow:   reblog.NewShadowIndex(store),
		metrics:  m,
		config:   config,
		clock:    realClock{},
	}
	if config.RatePerSecond > 0 {
		burst := int(config.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}
	return w
}

// SetClock replaces the time source. Call before Start.
func (w *Worker) SetClock(clock Clock) {
	w.clock = clock
}

// State reports what the worker is doing right now.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Start launches the background sweep loop. The first sweep runs
// immediately. Calling Start on a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, w.stopCh, w.doneCh)
}

// Stop halts the background loop and waits for an in-flight sweep to
// finish. Calling Stop on a stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()
	<-doneCh
}

func (w *Worker) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.sweepScheduled(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepScheduled(ctx)
		}
	}
}

func (w *Worker) sweepScheduled(ctx context.Context) {
	logger := logging.FromCtx(ctx)
	res, err := w.Sweep(ctx, SweepOptions{DryRun: w.config.DryRun})
	if err != nil {
		logger.Errorf("vacuum sweep failed", map[string]any{"error": err.Error()})
		return
	}
	logger.Infof("vacuum sweep complete", map[string]any{
		"runId":           res.RunID,
		"dryRun":          res.DryRun,
		"accountsScanned": res.AccountsScanned,
		"ownersSwept":     res.OwnersSwept,
		"keysDeleted":     res.KeysDeleted,
		"failures":        len(res.Failures),
	})
}

// Sweep runs one full reclamation pass: resolve the inactive account
// set, then clean each account's home feed and every list and antenna
// feed it owns. Owner failures are recorded in the result and do not
// abort the pass; only a failure to resolve the account set does.
func (w *Worker) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = w.config.InactivityThreshold
	}

	started := w.clock.Now()
	res := &SweepResult{
		RunID:     uuid.NewString(),
		DryRun:    opts.DryRun,
		StartedAt: started,
	}
	logger := logging.FromCtx(ctx).With(map[string]any{"runId": res.RunID})

	w.state.Store(int32(StateScanning))
	defer w.state.Store(int32(StateIdle))

	cutoff := started.Add(-threshold)
	accounts, err := w.oracle.InactiveAccounts(ctx, cutoff)
	if err != nil {
		w.recordSweep("error", res)
		return nil, fmt.Errorf("vacuum: resolve inactive accounts: %w", err)
	}
	res.AccountsScanned = len(accounts)
	logger.Debugf("inactive account scan complete", map[string]any{
		"accounts": len(accounts),
		"cutoff":   cutoff.UTC().Format(time.RFC3339),
	})

	w.state.Store(int32(StateSweeping))

	var (
		resMu sync.Mutex
		eg    errgroup.Group
	)
	eg.SetLimit(w.config.Concurrency)
	for _, accountID := range accounts {
		accountID := accountID
		eg.Go(func() error {
			w.sweepAccount(ctx, accountID, opts.DryRun, res, &resMu)
			return nil
		})
	}
	// Goroutines never return errors; failures land in the result.
	_ = eg.Wait()

	res.FinishedAt = w.clock.Now()
	outcome := "ok"
	if opts.DryRun {
		outcome = "dry_run"
	}
	w.recordSweep(outcome, res)
	return res, nil
}

// sweepAccount cleans one account's home feed and the feeds it owns
// through lists and antennas. Partial progress is fine: everything
// here is idempotent and a later sweep picks up whatever was missed.
func (w *Worker) sweepAccount(ctx context.Context, accountID string, dryRun bool, res *SweepResult, resMu *sync.Mutex) {
	w.sweepOwner(ctx, keys.Home, accountID, dryRun, res, resMu)

	lists, err := w.resolver.ListsOwnedBy(ctx, accountID)
	if err != nil {
		w.recordFailure(ctx, res, resMu, OwnerFailure{
			Kind:    keys.List,
			OwnerID: accountID,
			Failure: FailureResolution,
			Err:     err,
		})
	} else {
		for _, listID := range lists {
			w.sweepOwner(ctx, keys.List, listID, dryRun, res, resMu)
		}
	}

	antennas, err := w.resolver.AntennasOwnedBy(ctx, accountID)
	if err != nil {
		w.recordFailure(ctx, res, resMu, OwnerFailure{
			Kind:    keys.Antenna,
			OwnerID: accountID,
			Failure: FailureResolution,
			Err:     err,
		})
		return
	}
	for _, antennaID := range antennas {
		w.sweepOwner(ctx, keys.Antenna, antennaID, dryRun, res, resMu)
	}
}

// sweepOwner executes the cleanup plan for one feed owner. Index keys
// are read before anything is deleted so the derived per-content sets
// are still discoverable, then members, index, and static keys are
// deleted in that order.
func (w *Worker) sweepOwner(ctx context.Context, kind keys.FeedKind, ownerID string, dryRun bool, res *SweepResult, resMu *sync.Mutex) {
	plan := keys.OwnerCleanupPlan(kind, ownerID)

	targets, err := w.planTargets(ctx, plan)
	if err != nil {
		w.recordFailure(ctx, res, resMu, OwnerFailure{
			Kind:    kind,
			OwnerID: ownerID,
			Failure: FailureDeletion,
			Err:     err,
		})
		return
	}

	if dryRun {
		resMu.Lock()
		res.WouldDelete = append(res.WouldDelete, targets...)
		res.OwnersSwept++
		resMu.Unlock()
		return
	}

	deleted := 0
	var firstErr error
	for _, key := range targets {
		if err := w.deleteKey(ctx, key); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("delete %s: %w", key, err)
			}
			continue
		}
		deleted++
	}

	resMu.Lock()
	res.KeysDeleted += deleted
	if firstErr == nil {
		res.OwnersSwept++
	}
	resMu.Unlock()

	if firstErr != nil {
		w.recordFailure(ctx, res, resMu, OwnerFailure{
			Kind:    kind,
			OwnerID: ownerID,
			Failure: FailureDeletion,
			Err:     firstErr,
		})
	}
}

// planTargets expands a cleanup plan into the concrete keys a sweep
// would delete, in deletion order: per-content sets first, then the
// index that names them, then the static keys.
func (w *Worker) planTargets(ctx context.Context, plan keys.CleanupPlan) ([]string, error) {
	var targets []string
	for _, idx := range plan.Indexes {
		members, err := w.store.SetMembers(ctx, idx.IndexKey)
		if err != nil {
			return nil, fmt.Errorf("read index %s: %w", idx.IndexKey, err)
		}
		for _, member := range members {
			targets = append(targets, idx.KeyForMember(member))
		}
		targets = append(targets, idx.IndexKey)
	}
	targets = append(targets, plan.StaticKeys...)
	return targets, nil
}

// deleteKey deletes one key, pacing against the rate limiter and
// retrying up to the configured attempt count.
func (w *Worker) deleteKey(ctx context.Context, key string) error {
	var lastErr error
	for attempt := 0; attempt < w.config.DeleteAttempts; attempt++ {
		if attempt > 0 && w.config.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryBackoff):
			}
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := w.store.Delete(ctx, key); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// CleanupOwner removes one feed and its reblog bookkeeping right away,
// regardless of owner activity. It is the path for callers reacting to
// an owner entity being deleted rather than going idle.
func (w *Worker) CleanupOwner(ctx context.Context, kind keys.FeedKind, ownerID string) error {
	feedKey := keys.FeedKey(kind, ownerID)
	if err := w.shadow.Purge(ctx, feedKey); err != nil {
		return fmt.Errorf("vacuum: purge reblog index for %s: %w", feedKey, err)
	}
	if err := w.store.Delete(ctx, feedKey); err != nil {
		return fmt.Errorf("vacuum: delete %s: %w", feedKey, err)
	}
	return nil
}

func (w *Worker) recordFailure(ctx context.Context, res *SweepResult, resMu *sync.Mutex, failure OwnerFailure) {
	resMu.Lock()
	res.Failures = append(res.Failures, failure)
	resMu.Unlock()
	logging.FromCtx(ctx).Warnf("owner cleanup failed", map[string]any{
		"runId":   res.RunID,
		"kind":    failure.Kind.String(),
		"owner":   failure.OwnerID,
		"failure": string(failure.Failure),
		"error":   failure.Err.Error(),
	})
	if w.metrics != nil {
		w.metrics.RecordOwnerFailure(failure.Kind.String())
	}
}

func (w *Worker) recordSweep(outcome string, res *SweepResult) {
	if w.metrics == nil {
		return
	}
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = w.clock.Now()
	}
	w.metrics.RecordSweep(outcome, finished.Sub(res.StartedAt).Seconds(), res.OwnersSwept, res.KeysDeleted, float64(finished.Unix()))
}
