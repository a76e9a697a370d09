// Package engine implements course link synchronization.
//
// Two paths keep every enabled link child -> parent consistent:
//
// Incremental handlers (handlers.go, lifecycle.go) react to one event at a
// time and patch the parent side with low latency. They run synchronously
// in the goroutine that delivers the event.
//
// Full reconciliation (reconcile.go) recomputes the desired state from
// scratch and applies the difference in four ordered passes. It heals
// anything the handlers missed: dropped events, failed mutations,
// out-of-band edits, disabled links.
//
// CRITICAL PATTERNS:
//
// Origin guard:
// Grant and enrol events whose Origin is the engine itself are ignored
// before any lookup, so the engine never propagates its own writes.
// Revoke events with the engine's origin are ignored as well.
//
// Ownership:
// The engine only creates or removes records tagged with a LinkOrigin.
// Foreign records are read, never written.
//
// Idempotence:
// Every mutation is an upsert or a delete of an exact row; repeating it
// reports changed=false. Mutations of the same (user, link) pair are
// serialized by an in-process pair lock and by storage uniqueness.
//
// Failure isolation:
// One failed mutation is logged, counted and skipped. It never aborts the
// handler's remaining links or the pass's remaining users.
package engine
