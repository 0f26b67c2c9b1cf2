package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelabs/hivemon/pkg/event"
	"github.com/hivelabs/hivemon/pkg/types"
)

func TestPrepareResponseHeaders(t *testing.T) {
	rec := httptest.NewRecorder()

	flusher, err := PrepareResponse(rec)
	require.NoError(t, err)
	require.NotNil(t, flusher)

	h := rec.Header()
	assert.Equal(t, "text/event-stream", h.Get("Content-Type"))
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
	assert.Equal(t, "keep-alive", h.Get("Connection"))
	assert.Equal(t, "no", h.Get("X-Accel-Buffering"))
}

type plainWriter struct{}

func (plainWriter) Header() http.Header         { return http.Header{} }
func (plainWriter) Write(p []byte) (int, error) { return len(p), nil }
func (plainWriter) WriteHeader(int)             {}

func TestPrepareResponseRequiresFlusher(t *testing.T) {
	_, err := PrepareResponse(plainWriter{})
	assert.Error(t, err)
}

func TestWriteOpen(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteOpen(&buf))
	assert.Equal(t, ": connected\n\n", buf.String())
}

func TestWriteHeartbeatFrame(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	var buf strings.Builder

	require.NoError(t, WriteEvent(&buf, event.Heartbeat{TS: ts}))
	assert.Equal(t, fmt.Sprintf(": heartbeat %d\n\n", ts.UnixMilli()), buf.String())
	assert.NotContains(t, buf.String(), "event:", "heartbeats are comments, not named events")
}

func TestWriteStatusChangeFrame(t *testing.T) {
	cpu := 0.25
	ev := event.StatusChange{
		Node: "node1",
		Summary: types.NodeSummary{
			Name:   "node1",
			Status: types.NodeStatusOnline,
			CPU:    &cpu,
		},
	}

	var buf strings.Builder
	require.NoError(t, WriteEvent(&buf, ev))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: status\n"), "got: %q", out)
	assert.True(t, strings.HasSuffix(out, "\n\n"))

	dataLine := strings.TrimSuffix(strings.TrimPrefix(out, "event: status\n"), "\n\n")
	require.True(t, strings.HasPrefix(dataLine, "data: "))

	var decoded event.StatusChange
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &decoded))
	assert.Equal(t, "node1", decoded.Node)
	assert.Equal(t, types.NodeStatusOnline, decoded.Summary.Status)
	require.NotNil(t, decoded.Summary.CPU)
	assert.InDelta(t, 0.25, *decoded.Summary.CPU, 1e-9)
}

func TestWriteStreamErrorFrame(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteEvent(&buf, event.StreamError{Message: "upstream unreachable"}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: error\n"))
	assert.Contains(t, out, "upstream unreachable")
}
