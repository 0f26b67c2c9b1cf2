package diff

import (
	"github.com/hivelabs/hivemon/pkg/event"
	"github.com/hivelabs/hivemon/pkg/types"
)

// Diff compares two successive cluster snapshots and returns the
// status events describing what changed.
//
// When prev is nil (first sample) every node in cur produces one event,
// giving consumers a full resync. Otherwise a node produces an event
// when it is new in cur or when its status field changed. Each event
// carries the complete current summary, never a partial patch, so
// consumers replace state instead of merging it.
//
// Emission order follows the node order of cur. Nodes present in prev
// but absent from cur produce no event; surfacing disappearance needs a
// dedicated variant and a product decision first.
func Diff(prev *types.ClusterSnapshot, cur types.ClusterSnapshot) []event.Event {
	if prev == nil {
		events := make([]event.Event, 0, len(cur.Nodes))
		for _, n := range cur.Nodes {
			events = append(events, event.StatusChange{Node: n.Name, Summary: n})
		}
		return events
	}

	previous := make(map[string]types.NodeSummary, len(prev.Nodes))
	for _, n := range prev.Nodes {
		previous[n.Name] = n
	}

	var events []event.Event
	for _, n := range cur.Nodes {
		before, existed := previous[n.Name]
		if !existed || before.Status != n.Status {
			events = append(events, event.StatusChange{Node: n.Name, Summary: n})
		}
	}
	return events
}
