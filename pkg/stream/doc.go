/*
Package stream contains the event multiplexer: the single poll loop
that samples the upstream cluster, diffs successive snapshots, and
broadcasts the resulting events to every attached subscriber session.

# Architecture

One loop serves all subscribers. N browser connections never cause N
upstream poll loops; this single-flight property is the central
correctness invariant of the package.

	┌───────────────────── EVENT MULTIPLEXER ─────────────────────┐
	│                                                              │
	│   poll loop (one per multiplexer, lazily started)            │
	│                                                              │
	│     ┌──────────┐   ┌───────┐   ┌──────┐   ┌───────┐         │
	│     │heartbeat │──▶│ fetch │──▶│ diff │──▶│ emit  │──sleep──┐│
	│     └──────────┘   └───┬───┘   └──────┘   └───┬───┘         ││
	│                        │ failure               │             ││
	│                        ▼                       ▼             ││
	│                  error event            status events        ││
	│                                                              ││
	│   ◀──────────────────────────────────────────────────────────┘│
	│                                                              │
	│   broadcast (non-blocking, per-session buffers)              │
	│        │               │                │                    │
	│        ▼               ▼                ▼                    │
	│   ┌─────────┐     ┌─────────┐      ┌─────────┐              │
	│   │ Session │     │ Session │      │ Session │              │
	│   └─────────┘     └─────────┘      └─────────┘              │
	└──────────────────────────────────────────────────────────────┘

# Cycle semantics

Every cycle emits a heartbeat first, unconditionally: it is a liveness
signal independent of data changes and drives the client-side watchdog.
A successful fetch is diffed against the last known-good snapshot and
the snapshot is then replaced. A failed fetch emits exactly one error
event and leaves the stored snapshot untouched, so the next successful
cycle diffs against real state rather than a partial one. Cycles are
strictly sequential: the loop is a single goroutine, so cycle N's
events reach every session before cycle N+1 starts.

# Session lifecycle

Subscribe attaches a session and starts the loop if it is not running;
a session attached mid-cycle only sees events emitted afterwards, with
no replay. Unsubscribe is idempotent, releases every multiplexer
reference to the session, and stops the loop when the last session
leaves (the next Subscribe restarts it). A transport write failure
downstream marks the session dead via MarkDead; the multiplexer then
skips it, and neither the loop nor any other session is affected.

# Backpressure

Delivery is non-blocking. A session that cannot keep up has events
dropped on its own buffer rather than stalling the loop or its peers;
the drop is counted in hivemon_events_dropped_total.

# Usage

	mux := stream.New(fetchSnapshot, stream.Config{
		PollInterval:   5 * time.Second,
		MaxSubscribers: 0,
	})

	sess, err := mux.Subscribe()
	if err != nil {
		return err
	}
	defer mux.Unsubscribe(sess)

	for ev := range sess.Events() {
		// forward ev to the transport
	}
*/
package stream
