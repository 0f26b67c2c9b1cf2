package diff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelabs/hivemon/pkg/event"
	"github.com/hivelabs/hivemon/pkg/types"
)

func snapshot(nodes ...types.NodeSummary) types.ClusterSnapshot {
	return types.ClusterSnapshot{TakenAt: time.Now(), Nodes: nodes}
}

func node(name string, status types.NodeStatus) types.NodeSummary {
	return types.NodeSummary{Name: name, Status: status}
}

// TestDiffFirstSample verifies the full resync on a nil previous
// snapshot: one status event per node, each carrying the full summary
func TestDiffFirstSample(t *testing.T) {
	cur := snapshot(
		node("pve1", types.NodeStatusOnline),
		node("pve2", types.NodeStatusOffline),
		node("pve3", types.NodeStatusUnknown),
	)

	events := Diff(nil, cur)
	require.Len(t, events, 3)

	for i, ev := range events {
		sc, ok := ev.(event.StatusChange)
		require.True(t, ok, "expected StatusChange, got %T", ev)
		assert.Equal(t, cur.Nodes[i].Name, sc.Node)
		assert.Equal(t, cur.Nodes[i], sc.Summary)
	}
}

func TestDiffIdenticalSnapshots(t *testing.T) {
	s := snapshot(
		node("pve1", types.NodeStatusOnline),
		node("pve2", types.NodeStatusOnline),
	)

	events := Diff(&s, s)
	assert.Empty(t, events)
}

func TestDiffSingleStatusChange(t *testing.T) {
	prev := snapshot(
		node("pve1", types.NodeStatusOnline),
		node("pve2", types.NodeStatusOnline),
	)
	cur := snapshot(
		node("pve1", types.NodeStatusOffline),
		node("pve2", types.NodeStatusOnline),
	)

	events := Diff(&prev, cur)
	require.Len(t, events, 1)

	sc, ok := events[0].(event.StatusChange)
	require.True(t, ok)
	assert.Equal(t, "pve1", sc.Node)
	assert.Equal(t, types.NodeStatusOffline, sc.Summary.Status)
}

// TestDiffCarriesFullSummary checks that a status transition delivers
// the complete current node state, not just the changed field
func TestDiffCarriesFullSummary(t *testing.T) {
	cpu := 0.42
	prev := snapshot(node("pve1", types.NodeStatusOffline))
	cur := snapshot(types.NodeSummary{
		Name:          "pve1",
		Status:        types.NodeStatusOnline,
		UptimeSeconds: 120,
		CPU:           &cpu,
		Memory:        &types.ResourceUsage{Used: 4 << 30, Total: 16 << 30},
	})

	events := Diff(&prev, cur)
	require.Len(t, events, 1)

	sc := events[0].(event.StatusChange)
	assert.Equal(t, cur.Nodes[0], sc.Summary)
}

func TestDiffNewNode(t *testing.T) {
	prev := snapshot(node("pve1", types.NodeStatusOnline))
	cur := snapshot(
		node("pve1", types.NodeStatusOnline),
		node("pve2", types.NodeStatusOnline),
	)

	events := Diff(&prev, cur)
	require.Len(t, events, 1)
	assert.Equal(t, "pve2", events[0].(event.StatusChange).Node)
}

// TestDiffRemovedNode documents the known gap: a node disappearing
// between snapshots produces no event
func TestDiffRemovedNode(t *testing.T) {
	prev := snapshot(
		node("pve1", types.NodeStatusOnline),
		node("pve2", types.NodeStatusOnline),
	)
	cur := snapshot(node("pve1", types.NodeStatusOnline))

	events := Diff(&prev, cur)
	assert.Empty(t, events)
}

// TestDiffNonStatusChangeIsQuiet verifies that load/cpu/memory churn
// on a stable node emits nothing
func TestDiffNonStatusChangeIsQuiet(t *testing.T) {
	lowCPU, highCPU := 0.1, 0.9
	prev := snapshot(types.NodeSummary{Name: "pve1", Status: types.NodeStatusOnline, CPU: &lowCPU})
	cur := snapshot(types.NodeSummary{Name: "pve1", Status: types.NodeStatusOnline, CPU: &highCPU})

	events := Diff(&prev, cur)
	assert.Empty(t, events)
}

func TestDiffOrderFollowsCurrent(t *testing.T) {
	prev := snapshot(
		node("a", types.NodeStatusOnline),
		node("b", types.NodeStatusOnline),
		node("c", types.NodeStatusOnline),
	)
	cur := snapshot(
		node("c", types.NodeStatusOffline),
		node("a", types.NodeStatusOffline),
		node("b", types.NodeStatusOffline),
	)

	events := Diff(&prev, cur)
	require.Len(t, events, 3)

	var order []string
	for _, ev := range events {
		order = append(order, ev.(event.StatusChange).Node)
	}
	assert.Equal(t, []string{"c", "a", "b"}, order)
}
