package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivelabs/hivemon/pkg/diff"
	"github.com/hivelabs/hivemon/pkg/event"
	"github.com/hivelabs/hivemon/pkg/log"
	"github.com/hivelabs/hivemon/pkg/metrics"
	"github.com/hivelabs/hivemon/pkg/types"
)

// ErrTooManySubscribers is returned by Subscribe when the configured
// subscriber bound is reached
var ErrTooManySubscribers = errors.New("subscriber limit reached")

// FetchFunc produces a fresh cluster snapshot. The multiplexer calls
// it once per cycle, typically through the snapshot cache.
type FetchFunc func(ctx context.Context) (types.ClusterSnapshot, error)

// Config holds multiplexer settings
type Config struct {
	// PollInterval is the fixed sleep between cycles. The loop does
	// not compensate for cycle execution time.
	PollInterval time.Duration

	// MaxSubscribers bounds concurrently attached sessions; 0 means
	// unlimited
	MaxSubscribers int

	// BufferSize is the per-session channel buffer (default: 64)
	BufferSize int
}

// Multiplexer drives the poll loop and broadcasts its events to every
// attached session. The loop starts lazily on the first subscriber and
// there is never more than one loop per multiplexer, no matter how
// many sessions attach.
type Multiplexer struct {
	fetch  FetchFunc
	cfg    Config
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	loopCancel context.CancelFunc
	loopDone   chan struct{}

	// gen identifies the current poll loop. A cancelled loop still
	// draining an in-flight fetch carries a stale gen and its output is
	// discarded, so it can never reach sessions attached after it was
	// superseded.
	gen uint64

	// lastSnapshot is the last known-good snapshot. It is written only
	// by the poll loop and replaced wholesale, never mutated in place.
	lastSnapshot *types.ClusterSnapshot
}

// New creates a multiplexer polling through fetch
func New(fetch FetchFunc, cfg Config) *Multiplexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	return &Multiplexer{
		fetch:    fetch,
		cfg:      cfg,
		logger:   log.WithComponent("stream"),
		sessions: make(map[string]*Session),
	}
}

// Subscribe attaches a new session to the event stream. The poll loop
// is started if it is not already running. The session only receives
// events emitted after it is attached; there is no replay.
func (m *Multiplexer) Subscribe() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MaxSubscribers > 0 && len(m.sessions) >= m.cfg.MaxSubscribers {
		metrics.SubscribersRejectedTotal.Inc()
		return nil, ErrTooManySubscribers
	}

	s := newSession(m.cfg.BufferSize)
	m.sessions[s.ID] = s
	metrics.ActiveSubscribers.Set(float64(len(m.sessions)))

	if m.loopCancel == nil {
		m.startLoopLocked()
	}

	m.logger.Debug().Str("session_id", s.ID).Int("subscribers", len(m.sessions)).Msg("session attached")
	return s, nil
}

// Unsubscribe detaches a session and releases all multiplexer
// references to it. It is idempotent and safe to call from any
// goroutine; calling it twice is a no-op. When the last session
// detaches, the poll loop stops and will be restarted by the next
// Subscribe.
func (m *Multiplexer) Unsubscribe(s *Session) {
	if s == nil {
		return
	}

	m.mu.Lock()
	_, attached := m.sessions[s.ID]
	if attached {
		delete(m.sessions, s.ID)
		s.MarkDead()
		close(s.ch)
		metrics.ActiveSubscribers.Set(float64(len(m.sessions)))
	}

	var cancel context.CancelFunc
	if len(m.sessions) == 0 && m.loopCancel != nil {
		cancel = m.loopCancel
		m.loopCancel = nil
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if attached {
		m.logger.Debug().Str("session_id", s.ID).Msg("session detached")
	}
}

// SubscriberCount returns the number of attached sessions
func (m *Multiplexer) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stop detaches all sessions and stops the poll loop. Intended for
// process shutdown; a stopped multiplexer restarts its loop on the
// next Subscribe.
func (m *Multiplexer) Stop() {
	m.mu.Lock()
	for id, s := range m.sessions {
		delete(m.sessions, id)
		s.MarkDead()
		close(s.ch)
	}
	metrics.ActiveSubscribers.Set(0)

	cancel := m.loopCancel
	m.loopCancel = nil
	done := m.loopDone
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// startLoopLocked launches the poll loop. Caller holds the write lock.
// If a previous loop was cancelled but is still draining an in-flight
// fetch, the new loop waits for it to exit first; there is never more
// than one loop running.
func (m *Multiplexer) startLoopLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	m.loopCancel = cancel
	prev := m.loopDone
	done := make(chan struct{})
	m.loopDone = done
	m.gen++
	gen := m.gen

	go func() {
		if prev != nil {
			<-prev
		}
		m.run(ctx, done, gen)
	}()
	m.logger.Info().Dur("interval", m.cfg.PollInterval).Msg("poll loop started")
}

// run is the poll loop: heartbeat, fetch, diff, emit, sleep. Cycles
// are strictly sequential; cycle N's events are delivered to every
// session before cycle N+1 begins.
func (m *Multiplexer) run(ctx context.Context, done chan struct{}, gen uint64) {
	defer close(done)

	m.mu.Lock()
	if gen == m.gen {
		m.lastSnapshot = nil
	}
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("poll loop stopped")
			return
		default:
		}

		m.cycle(ctx, gen)

		select {
		case <-ctx.Done():
			m.logger.Info().Msg("poll loop stopped")
			return
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

// cycle performs one poll iteration
func (m *Multiplexer) cycle(ctx context.Context, gen uint64) {
	start := time.Now()

	// Liveness signal, emitted unconditionally before any data event
	m.publish(event.Heartbeat{TS: start}, gen)

	snap, err := m.fetch(ctx)
	if err != nil {
		// Keep the last known-good snapshot so the next successful
		// cycle diffs against real state, not a partial one.
		m.publish(event.StreamError{Message: err.Error()}, gen)
		metrics.PollCyclesTotal.WithLabelValues("failure").Inc()
		metrics.UpdateComponent("stream", false, err.Error())
		m.logger.Warn().Err(err).Msg("poll cycle failed")
		return
	}

	m.mu.RLock()
	last := m.lastSnapshot
	m.mu.RUnlock()

	for _, ev := range diff.Diff(last, snap) {
		m.publish(ev, gen)
	}

	m.mu.Lock()
	if gen == m.gen {
		m.lastSnapshot = &snap
	}
	m.mu.Unlock()

	metrics.PollCyclesTotal.WithLabelValues("success").Inc()
	metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
	metrics.UpdateComponent("stream", true, "")
}

// publish fans an event out to every live session without blocking.
// Sessions with a full buffer drop the event rather than stall the
// loop. Events from a superseded loop are discarded.
func (m *Multiplexer) publish(ev event.Event, gen uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if gen != m.gen {
		return
	}
	metrics.EventsEmittedTotal.WithLabelValues(string(ev.Kind())).Inc()

	for _, s := range m.sessions {
		if !s.Alive() {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			metrics.EventsDroppedTotal.Inc()
		}
	}
}
