// Package vacuum implements the reclamation sweep that deletes feed
// data belonging to inactive owners.
//
// # Sweep
//
// The worker ([Worker]) periodically asks the activity oracle for
// accounts inactive past a configured threshold. For each inactive
// account it executes the cleanup plan for the account's home feed
// (per-content reblog sets, reblog index, the feed key itself), then
// resolves the lists and antennas the account owns and deletes their
// feeds the same way. Active owners are never part of the target set,
// so the sweep's cost is proportional to the inactive population and
// no interleaving can delete an active owner's data.
//
// Each owner's cleanup is self-contained: failures are recorded and
// the sweep continues with the remaining owners, and because key
// deletion is idempotent the whole sweep is safe to interrupt and
// re-run at any point.
//
// # Usage
//
//	worker := vacuum.NewWorker(store, oracle, resolver, nil, vacuum.Config{
//	    Interval:            24 * time.Hour,
//	    InactivityThreshold: 21 * 24 * time.Hour,
//	})
//	worker.Start(ctx)
//	defer worker.Stop()
//
// Operators can trigger a run on demand with Sweep, including a
// dry-run mode that reports which keys would be deleted without
// deleting them.
package vacuum
