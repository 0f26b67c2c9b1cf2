/*
Package api exposes Hivemon's HTTP surface: REST endpoints returning
JSON envelopes, and the Server-Sent Events stream that bridges
subscription sessions to browsers.

# Endpoints

	GET    /api/cluster               current cluster snapshot (cached)
	GET    /api/nodes/{node}/metrics  node metrics series; range/limit/since query params
	GET    /api/events                SSE event stream
	GET    /api/servers               list registered upstream servers
	POST   /api/servers               register an upstream server
	GET    /api/servers/{id}          fetch one registered server
	DELETE /api/servers/{id}          remove a registered server
	GET    /healthz                   component health
	GET    /metrics                   Prometheus metrics

# Response envelope

Every REST response is wrapped uniformly:

	{"ok": true,  "data": ..., "timestamp": "..."}
	{"ok": false, "error": "...", "timestamp": "..."}

Validation failures return 400, execution failures 500, missing
registry entries 404. The SSE endpoint is the one exception: once the
stream is open, failures surface as error events inside the stream, not
as HTTP statuses.

# Event stream bridging

Each /api/events connection subscribes one session on the multiplexer
and forwards its events through pkg/sse, flushing per frame. A write
failure marks the session dead and detaches it; client disconnects are
observed via the request context. Either way the session is
unsubscribed before the handler returns, so sessions never outlive
their transport connection.
*/
package api
