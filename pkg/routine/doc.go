// Package routine implements a hierarchical, cooperative scheduler for
// suspendable units of work.
//
// A routine advances a Program step by step. Each step either completes the
// program, fails it, or yields child work: a single unit, an ordered
// sequence, or a combinator group (wait-for-all / wait-for-first). Children
// are stepped synchronously to their first suspension point inside the
// parent's step; when a child later finishes, the parent is re-stepped.
// A routine can also wait on an arbitrary external event through the
// suspension protocol (Awaiter / Resumer).
//
// The scheduler pools routine nodes, capabilities and group descriptors, so
// sustained use produces near-zero incremental allocation on the stepping
// path. External references go through generation-checked weak Handles;
// a stale handle is permanently invalid even after its slot is reused.
//
// Everything here is strictly single-threaded and cooperative. A Scheduler
// must only ever be touched from one goroutine at a time; the host driver
// is expected to serialize access and to call Flush/Shift once per tick.
package routine
