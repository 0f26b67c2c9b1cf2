/*
Package cache provides the short-TTL, size-bounded snapshot cache that
sits between the upstream adapter and everything that reads cluster
state.

Its single job is to make N concurrent readers cost one upstream call:

	┌───────────┐   miss    ┌──────────────┐   one fetch   ┌──────────┐
	│ subscriber│──────────▶│  Cache       │──────────────▶│ upstream │
	│ subscriber│──────────▶│  (coalesced) │               │   API    │
	│ API call  │──────────▶│              │◀──────────────│          │
	└───────────┘   hits    └──────────────┘    result     └──────────┘

Coalescing is done with golang.org/x/sync/singleflight and is a
correctness requirement, not an optimization: the upstream adapter is
costly and the thundering herd on a cold key would multiply identical
requests.

# Lifecycle

An entry is created on miss, its access bookkeeping (count, last access
time) is updated on every hit, and it dies in one of three ways: lazily
on a read that finds it expired, during the periodic sweep, or by LRU
eviction when an insert finds the cache at capacity. A hit never
extends the TTL; freshness is decided solely by the original fetch
time. Eviction at capacity removes the entry with the oldest
lastAccessed, which is deliberately not the same thing as the oldest
timestamp.

# Usage

	c := cache.New[types.ClusterSnapshot](256)
	c.StartSweeper(30 * time.Second)
	defer c.Stop()

	snap, err := c.GetOrCompute(ctx, "cluster", 4*time.Second,
		func(ctx context.Context) (types.ClusterSnapshot, error) {
			return client.ClusterSummary(ctx)
		})
*/
package cache
