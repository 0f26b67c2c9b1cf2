package event

import (
	"time"

	"github.com/hivelabs/hivemon/pkg/types"
)

// Type identifies an event variant on the wire
type Type string

const (
	TypeHeartbeat Type = "heartbeat"
	TypeStatus    Type = "status"
	TypeError     Type = "error"
)

// Event is the closed set of messages flowing from the multiplexer to
// subscribers. The set is sealed via the unexported method: adding a
// variant is a protocol revision and must update every switch that
// handles events exhaustively.
type Event interface {
	Kind() Type
	sealed()
}

// Heartbeat is a liveness-only event carrying no state change
type Heartbeat struct {
	TS time.Time `json:"ts"`
}

func (Heartbeat) Kind() Type { return TypeHeartbeat }
func (Heartbeat) sealed()    {}

// StatusChange carries the full current summary of a node whose status
// differs from the previous snapshot. Consumers always receive complete
// state, never partial patches.
type StatusChange struct {
	Node    string            `json:"node"`
	Summary types.NodeSummary `json:"status"`
}

func (StatusChange) Kind() Type { return TypeStatus }
func (StatusChange) sealed()    {}

// StreamError reports an upstream poll failure to subscribers
type StreamError struct {
	Message string `json:"message"`
}

func (StreamError) Kind() Type { return TypeError }
func (StreamError) sealed()    {}
