/*
Package client implements the reconnecting consumer side of the event
stream contract, the same state machine the browser dashboard runs,
usable from Go (the `hivemon watch` command is its main in-repo user).

# State machine

	disconnected → connecting → connected
	                   ▲            │ transport error / watchdog
	                   │            ▼
	                   └──────── error ──(budget exhausted)──▶ failed

Connecting successfully resets the retry counter to zero and records
the connection timestamp. Every transport error schedules a reconnect
after a fixed delay until the configured ceiling is reached, at which
point the consumer parks in the terminal failed state and waits for an
explicit Connect; automatic retries never resume on their own.

# Watchdog

The server heartbeats on every poll cycle even when nothing changed.
The consumer arms a timer at twice the expected heartbeat interval and
resets it on every received frame, comments included; if the timer
fires the connection is treated as silently dead and torn down through
the normal reconnect path. This catches half-open connections that
produce no transport error.

# Failure containment

A frame that fails to parse is logged and skipped rather than killing
the read loop, and a local error event is synthesized so the UI
can surface the problem. Disconnect clears the reconnect timer and the
watchdog before tearing down the transport, so no stray callback fires
against a disposed consumer, and is safe to call twice.
*/
package client
