/*
Package types defines the core data structures shared across Hivemon
components: node summaries, cluster snapshots, metrics series, and
registry entries.

Snapshots are treated as immutable values. The multiplexer replaces its
stored snapshot wholesale on each successful poll cycle; nothing mutates
a NodeSummary after construction. Validate enforces the snapshot
invariants (unique node names, known statuses, used <= total resource
pairs) at the upstream boundary so downstream consumers never see
malformed state.
*/
package types
