/*
Package diff turns pairs of successive cluster snapshots into discrete
status change events.

The engine is a pure function over immutable snapshots: no retained
state, no side effects, which keeps it trivially testable and lets the
multiplexer own the only copy of "last known snapshot". Only the status
field participates in change detection; load, cpu, and memory churn on
an otherwise stable node produces no event, keeping the stream quiet
between real transitions.

Known gap: a node present in the previous snapshot but missing from the
current one emits nothing. A synthetic "node removed" event is a wire
protocol revision (see pkg/event) and is deferred until the desired
semantics are settled.
*/
package diff
