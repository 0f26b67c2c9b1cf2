/*
Package event defines the wire contract between the event multiplexer
and all stream consumers: a closed, tagged union of heartbeat, status,
and error messages.

The union is modeled as a sealed interface rather than a struct with a
type field so that transport adapters switch over concrete variants and
fail loudly on anything unexpected instead of silently dropping it.
*/
package event
