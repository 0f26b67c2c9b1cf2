package types

import (
	"fmt"
	"time"
)

// NodeStatus represents the reported state of a hypervisor node
type NodeStatus string

const (
	NodeStatusOnline  NodeStatus = "online"
	NodeStatusOffline NodeStatus = "offline"
	NodeStatusUnknown NodeStatus = "unknown"
)

// Valid reports whether the status is one of the known states
func (s NodeStatus) Valid() bool {
	switch s {
	case NodeStatusOnline, NodeStatusOffline, NodeStatusUnknown:
		return true
	}
	return false
}

// ResourceUsage tracks a used/total pair for memory or storage
type ResourceUsage struct {
	Used  int64 `json:"used"`
	Total int64 `json:"total"`
}

// Free returns the unused portion
func (r ResourceUsage) Free() int64 {
	return r.Total - r.Used
}

// Fraction returns used/total clamped to [0,1]
func (r ResourceUsage) Fraction() float64 {
	if r.Total <= 0 {
		return 0
	}
	f := float64(r.Used) / float64(r.Total)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// LoadAverage is the 1/5/15 minute load triple
type LoadAverage [3]float64

// NodeSummary is the per-node view carried in a cluster snapshot.
// Summaries are immutable; state changes arrive as replacement
// snapshots, never as in-place mutation.
type NodeSummary struct {
	Name          string         `json:"name"`
	Status        NodeStatus     `json:"status"`
	UptimeSeconds int64          `json:"uptime,omitempty"`
	Load          *LoadAverage   `json:"loadavg,omitempty"`
	CPU           *float64       `json:"cpu,omitempty"` // fraction of all cores, 0..1
	Memory        *ResourceUsage `json:"memory,omitempty"`
	Storage       *ResourceUsage `json:"storage,omitempty"`
}

// ClusterSnapshot is a complete point-in-time view of cluster node
// state. Node order follows the upstream API response; node names are
// unique within one snapshot.
type ClusterSnapshot struct {
	TakenAt time.Time     `json:"taken_at"`
	Nodes   []NodeSummary `json:"nodes"`
}

// Node returns the summary for the named node, if present
func (s *ClusterSnapshot) Node(name string) (NodeSummary, bool) {
	for _, n := range s.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeSummary{}, false
}

// Validate checks snapshot invariants: unique node names, known
// statuses, cpu fraction in [0,1], and used <= total for memory and
// storage usage pairs.
func (s *ClusterSnapshot) Validate() error {
	seen := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node with empty name")
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate node name: %s", n.Name)
		}
		seen[n.Name] = true

		if !n.Status.Valid() {
			return fmt.Errorf("node %s: invalid status %q", n.Name, n.Status)
		}
		if n.CPU != nil && (*n.CPU < 0 || *n.CPU > 1) {
			return fmt.Errorf("node %s: cpu fraction %f out of range", n.Name, *n.CPU)
		}
		if n.Memory != nil && n.Memory.Used > n.Memory.Total {
			return fmt.Errorf("node %s: memory used %d exceeds total %d", n.Name, n.Memory.Used, n.Memory.Total)
		}
		if n.Storage != nil && n.Storage.Used > n.Storage.Total {
			return fmt.Errorf("node %s: storage used %d exceeds total %d", n.Name, n.Storage.Used, n.Storage.Total)
		}
	}
	return nil
}

// MetricPoint is one sample in a node metrics series
type MetricPoint struct {
	Time        time.Time `json:"time"`
	CPU         float64   `json:"cpu"` // fraction of all cores, 0..1
	MemoryUsed  int64     `json:"memory_used"`
	MemoryTotal int64     `json:"memory_total"`
	NetIn       int64     `json:"net_in"`
	NetOut      int64     `json:"net_out"`
}

// MetricsSeries is a time-ordered range of samples for one node
type MetricsSeries struct {
	Node         string        `json:"node"`
	RangeSeconds int           `json:"range_seconds"`
	Points       []MetricPoint `json:"points"`
}

// Server is a monitored upstream endpoint stored in the registry
type Server struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	TokenID       string    `json:"token_id,omitempty"`
	Secret        string    `json:"secret,omitempty"` // stripped at the API boundary, never returned to clients
	SkipTLSVerify bool      `json:"skip_tls_verify,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
