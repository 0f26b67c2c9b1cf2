/*
Package sse frames multiplexer events for the outbound Server-Sent
Events transport.

Framing is the only concern here: subscription lifecycle lives in
pkg/stream and connection handling in pkg/api. Status and error events
become named `event:`/`data:` frames with JSON payloads. Heartbeats are
deliberately framed as comment lines (`: heartbeat <unix-millis>`) so
browser EventSource handlers are not invoked for pure liveness pings,
and an opening `: connected` comment is written as soon as the channel
is established so consumers can detect liveness before the first real
event.

The encoder switches exhaustively over the sealed event union; an
unknown variant is a hard error rather than a silently dropped frame.
*/
package sse
