package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hivelabs/hivemon/pkg/event"
)

// PrepareResponse sets the long-lived streaming headers and returns
// the flusher used to push each frame immediately. Returns an error if
// the ResponseWriter cannot stream.
func PrepareResponse(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Disable buffering at reverse proxies so frames are not held back
	h.Set("X-Accel-Buffering", "no")

	return flusher, nil
}

// WriteOpen emits the connection-establishment comment so the consumer
// can detect an open channel before the first real event arrives
func WriteOpen(w io.Writer) error {
	_, err := fmt.Fprint(w, ": connected\n\n")
	return err
}

// WriteEvent frames one event. Heartbeats are framed as comment lines
// rather than named events so consumer-side event handlers are not
// triggered by pure liveness pings. The switch over variants is
// exhaustive; an unhandled variant is an error, never a silent drop.
func WriteEvent(w io.Writer, ev event.Event) error {
	switch e := ev.(type) {
	case event.Heartbeat:
		_, err := fmt.Fprintf(w, ": heartbeat %d\n\n", e.TS.UnixMilli())
		return err
	case event.StatusChange:
		return writeNamed(w, event.TypeStatus, e)
	case event.StreamError:
		return writeNamed(w, event.TypeError, e)
	default:
		return fmt.Errorf("unhandled event variant %T", ev)
	}
}

// writeNamed frames a named event with a JSON data payload
func writeNamed(w io.Writer, typ event.Type, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", typ, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ, data)
	return err
}
