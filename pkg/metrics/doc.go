/*
Package metrics provides Prometheus instrumentation and component
health reporting for Hivemon.

All instruments are registered at init and exposed on /metrics by the
API server. The poll loop, snapshot cache, upstream adapter, and stream
multiplexer record into them directly; nothing in this package owns a
background loop of its own.

# Exported instruments

	hivemon_poll_cycles_total{result}          poll cycles by "success"/"failure"
	hivemon_poll_cycle_duration_seconds        fetch+diff+emit duration
	hivemon_events_emitted_total{type}         heartbeat/status/error events
	hivemon_active_subscribers                 attached stream sessions
	hivemon_subscribers_rejected_total         refusals by the subscriber bound
	hivemon_events_dropped_total               drops on full session buffers
	hivemon_cache_hits_total                   snapshot cache hits
	hivemon_cache_misses_total                 snapshot cache misses
	hivemon_cache_evictions_total{reason}      "ttl" or "lru" evictions
	hivemon_upstream_requests_total{operation,status}
	hivemon_api_requests_total{path,status}

# Health

Components register themselves with RegisterComponent and refresh their
state with UpdateComponent. HealthHandler serves an aggregate JSON
document on /healthz, returning 503 when any registered component is
unhealthy.
*/
package metrics
