package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelabs/hivemon/pkg/event"
	"github.com/hivelabs/hivemon/pkg/types"
)

func snapshotWith(status types.NodeStatus) types.ClusterSnapshot {
	return types.ClusterSnapshot{
		TakenAt: time.Now(),
		Nodes: []types.NodeSummary{
			{Name: "node1", Status: status},
		},
	}
}

// collect drains events from a session until want events arrive or the
// deadline passes
func collect(t *testing.T, s *Session, want int, deadline time.Duration) []event.Event {
	t.Helper()
	var got []event.Event
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for len(got) < want {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timer.C:
			t.Fatalf("timed out waiting for events: got %d, want %d", len(got), want)
		}
	}
	return got
}

func TestLazyLoopStartAndStop(t *testing.T) {
	var fetches int32
	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		atomic.AddInt32(&fetches, 1)
		return snapshotWith(types.NodeStatusOnline), nil
	}, Config{PollInterval: 10 * time.Millisecond})

	// No subscribers: the loop must not be running
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fetches), "loop must not run without subscribers")

	s, err := m.Subscribe()
	require.NoError(t, err)
	collect(t, s, 2, time.Second) // heartbeat + status proves the loop went live

	m.Unsubscribe(s)
	assert.Equal(t, 0, m.SubscriberCount())

	// Loop stops when the last session detaches
	time.Sleep(50 * time.Millisecond)
	idle := atomic.LoadInt32(&fetches)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, idle, atomic.LoadInt32(&fetches), "loop must stop after last unsubscribe")

	// And restarts on the next subscriber
	s2, err := m.Subscribe()
	require.NoError(t, err)
	defer m.Unsubscribe(s2)
	collect(t, s2, 2, time.Second)
}

// TestSingleLoopManySessions attaches several sessions and verifies the
// fetch rate stays that of one loop while every session sees the events
func TestSingleLoopManySessions(t *testing.T) {
	var fetches int32
	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		atomic.AddInt32(&fetches, 1)
		return snapshotWith(types.NodeStatusOnline), nil
	}, Config{PollInterval: 20 * time.Millisecond})
	defer m.Stop()

	s1, err := m.Subscribe()
	require.NoError(t, err)
	s2, err := m.Subscribe()
	require.NoError(t, err)
	s3, err := m.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, 3, m.SubscriberCount())

	// s1 attached first and sees the initial resync; later sessions see
	// at least the heartbeats
	collect(t, s1, 2, time.Second)
	collect(t, s2, 1, time.Second)
	collect(t, s3, 1, time.Second)

	time.Sleep(100 * time.Millisecond)
	got := atomic.LoadInt32(&fetches)
	assert.LessOrEqual(t, got, int32(15), "three sessions must not triple the poll rate")
}

// TestHeartbeatPrecedesStatus pins per-cycle ordering: the heartbeat is
// emitted before any data event of the same cycle
func TestHeartbeatPrecedesStatus(t *testing.T) {
	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		return snapshotWith(types.NodeStatusOnline), nil
	}, Config{PollInterval: time.Hour}) // one cycle only
	defer m.Stop()

	s, err := m.Subscribe()
	require.NoError(t, err)

	got := collect(t, s, 2, time.Second)
	assert.Equal(t, event.TypeHeartbeat, got[0].Kind())
	assert.Equal(t, event.TypeStatus, got[1].Kind())
}

// TestFailurePreservesLastGood drives success, failure, success and
// checks the failing cycle emits one error event and the recovery cycle
// diffs against the pre-failure snapshot
func TestFailurePreservesLastGood(t *testing.T) {
	var cycle int32
	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		switch atomic.AddInt32(&cycle, 1) {
		case 1:
			return snapshotWith(types.NodeStatusOnline), nil
		case 2:
			return types.ClusterSnapshot{}, errors.New("upstream unreachable")
		default:
			return snapshotWith(types.NodeStatusOnline), nil
		}
	}, Config{PollInterval: 10 * time.Millisecond})
	defer m.Stop()

	s, err := m.Subscribe()
	require.NoError(t, err)

	// Cycle 1: heartbeat + resync status. Cycle 2: heartbeat + error.
	// Cycle 3: heartbeat only, because nothing changed against the
	// preserved snapshot.
	got := collect(t, s, 5, 2*time.Second)

	assert.Equal(t, event.TypeHeartbeat, got[0].Kind())
	assert.Equal(t, event.TypeStatus, got[1].Kind())
	assert.Equal(t, event.TypeHeartbeat, got[2].Kind())
	require.Equal(t, event.TypeError, got[3].Kind())
	assert.Contains(t, got[3].(event.StreamError).Message, "unreachable")
	assert.Equal(t, event.TypeHeartbeat, got[4].Kind())

	// Give cycle 3 room to finish; it must not re-announce node1
	time.Sleep(30 * time.Millisecond)
	select {
	case ev := <-s.Events():
		assert.NotEqual(t, event.TypeStatus, ev.Kind(), "recovery must diff against the last good snapshot")
	default:
	}
}

// TestResubscribeDuringFetchKeepsSingleLoop opens the window where a
// cancelled loop is still stuck in a slow upstream fetch while a new
// subscriber arrives: the new loop must not fetch concurrently with
// the old one, and the stale loop's output must not reach the new
// session or suppress its full resync
func TestResubscribeDuringFetchKeepsSingleLoop(t *testing.T) {
	var active, maxActive int32
	firstFetch := make(chan struct{})
	var firstOnce sync.Once
	release := make(chan struct{})

	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		cur := atomic.AddInt32(&active, 1)
		for {
			prev := atomic.LoadInt32(&maxActive)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, cur) {
				break
			}
		}
		firstOnce.Do(func() { close(firstFetch) })
		// A slow upstream that ignores cancellation
		<-release
		atomic.AddInt32(&active, -1)
		return snapshotWith(types.NodeStatusOnline), nil
	}, Config{PollInterval: 10 * time.Millisecond})
	defer m.Stop()

	s1, err := m.Subscribe()
	require.NoError(t, err)
	<-firstFetch

	// Detach while the fetch is in flight, then immediately reattach
	m.Unsubscribe(s1)
	s2, err := m.Subscribe()
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxActive),
		"a superseded loop still fetching must block the new loop, not run beside it")

	close(release)

	// The new session gets a fresh cycle: heartbeat, then the full
	// resync that a stale lastSnapshot write would have suppressed
	got := collect(t, s2, 2, 2*time.Second)
	assert.Equal(t, event.TypeHeartbeat, got[0].Kind())
	assert.Equal(t, event.TypeStatus, got[1].Kind())
}

func TestMaxSubscribers(t *testing.T) {
	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		return snapshotWith(types.NodeStatusOnline), nil
	}, Config{PollInterval: time.Hour, MaxSubscribers: 2})
	defer m.Stop()

	s1, err := m.Subscribe()
	require.NoError(t, err)
	_, err = m.Subscribe()
	require.NoError(t, err)

	_, err = m.Subscribe()
	assert.ErrorIs(t, err, ErrTooManySubscribers)

	// A detach frees a slot
	m.Unsubscribe(s1)
	_, err = m.Subscribe()
	assert.NoError(t, err)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		return snapshotWith(types.NodeStatusOnline), nil
	}, Config{PollInterval: time.Hour})
	defer m.Stop()

	s, err := m.Subscribe()
	require.NoError(t, err)

	m.Unsubscribe(s)
	assert.NotPanics(t, func() { m.Unsubscribe(s) })
	assert.NotPanics(t, func() { m.Unsubscribe(nil) })
	assert.Equal(t, 0, m.SubscriberCount())
}

// TestSlowSubscriberDoesNotStallOthers fills one session's buffer and
// verifies the broadcast keeps reaching a healthy session
func TestSlowSubscriberDoesNotStallOthers(t *testing.T) {
	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		return snapshotWith(types.NodeStatusOnline), nil
	}, Config{PollInterval: 5 * time.Millisecond, BufferSize: 1})
	defer m.Stop()

	slow, err := m.Subscribe()
	require.NoError(t, err)
	_ = slow // never drained; its buffer fills and events drop

	healthy, err := m.Subscribe()
	require.NoError(t, err)

	// The healthy reader keeps receiving heartbeats despite the stalled
	// sibling
	deadline := time.After(2 * time.Second)
	for seen := 0; seen < 5; {
		select {
		case <-healthy.Events():
			seen++
		case <-deadline:
			t.Fatal("healthy session starved by a slow sibling")
		}
	}
}

func TestDeadSessionSkipped(t *testing.T) {
	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		return snapshotWith(types.NodeStatusOnline), nil
	}, Config{PollInterval: 5 * time.Millisecond, BufferSize: 4})
	defer m.Stop()

	s, err := m.Subscribe()
	require.NoError(t, err)
	s.MarkDead()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, s.Events(), "dead session must receive nothing")
}

func TestStopDrainsAllSessions(t *testing.T) {
	m := New(func(ctx context.Context) (types.ClusterSnapshot, error) {
		return snapshotWith(types.NodeStatusOnline), nil
	}, Config{PollInterval: 10 * time.Millisecond})

	s1, err := m.Subscribe()
	require.NoError(t, err)
	s2, err := m.Subscribe()
	require.NoError(t, err)

	m.Stop()
	assert.Equal(t, 0, m.SubscriberCount())

	// Both channels end up closed
	for range s1.Events() {
	}
	for range s2.Events() {
	}
}
