package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivelabs/hivemon/pkg/event"
	"github.com/hivelabs/hivemon/pkg/log"
)

// ErrRetriesExhausted is recorded as the last error when the consumer
// enters the terminal failed state
var ErrRetriesExhausted = errors.New("retry budget exhausted")

// State is the consumer's connectivity state as surfaced to the UI
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"  // transient, reconnect scheduled
	StateFailed       State = "failed" // terminal, retry budget exhausted
)

// Config holds consumer settings
type Config struct {
	// URL is the event stream endpoint, e.g. "http://host:8090/api/events"
	URL string

	// MaxRetries is the reconnect budget; once exhausted the consumer
	// stops retrying and requires an explicit Connect (default: 5)
	MaxRetries int

	// RetryDelay is the fixed delay before each reconnect (default: 3s)
	RetryDelay time.Duration

	// HeartbeatInterval is the expected upstream heartbeat period. The
	// watchdog forces a reconnect when no message of any kind arrives
	// within twice this interval (default: 5s).
	HeartbeatInterval time.Duration

	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client
}

// EventHandler receives every decoded stream event
type EventHandler func(event.Event)

// StateHandler receives every connectivity state transition
type StateHandler func(State)

// Consumer is a reconnecting client for the Hivemon event stream. It
// maintains the connectivity state machine, applies retry with a fixed
// delay up to a ceiling, and watches heartbeats to detect silently
// dead connections.
type Consumer struct {
	cfg     Config
	onEvent EventHandler
	onState StateHandler
	logger  zerolog.Logger

	mu          sync.Mutex
	state       State
	attempt     int
	lastErr     error
	retrying    bool
	connectedAt time.Time
	closed      bool
	cancel      context.CancelFunc
	retryTimer  *time.Timer
}

// New creates a consumer. Handlers may be nil.
func New(cfg Config, onEvent EventHandler, onState StateHandler) *Consumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Consumer{
		cfg:     cfg,
		onEvent: onEvent,
		onState: onState,
		logger:  log.WithComponent("consumer"),
		state:   StateDisconnected,
	}
}

// Connect starts the consumer. It also resets a terminal failed state,
// serving as the manual reconnect trigger once the retry budget was
// exhausted.
func (c *Consumer) Connect() {
	c.mu.Lock()
	c.closed = false
	c.attempt = 0
	c.lastErr = nil
	c.retrying = false
	c.mu.Unlock()

	c.dial()
}

// Disconnect stops the consumer. All pending timers are cleared before
// the transport is torn down so no stray callback fires afterwards.
// Safe to call multiple times.
func (c *Consumer) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.retrying = false
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.setState(StateDisconnected)
}

// State returns the current connectivity state
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryState returns the current retry bookkeeping: attempt count,
// last connection error, and whether a reconnect is scheduled
func (c *Consumer) RetryState() (attempt int, lastErr error, retrying bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt, c.lastErr, c.retrying
}

// dial opens one connection attempt and runs its read loop in a
// goroutine
func (c *Consumer) dial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.retrying = false
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.setState(StateConnecting)

	go func() {
		err := c.consume(ctx)
		c.handleDisconnect(err)
	}()
}

// consume opens the stream and reads frames until the connection ends
func (c *Consumer) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream endpoint returned HTTP %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.attempt = 0
	c.lastErr = nil
	c.connectedAt = time.Now()
	c.mu.Unlock()
	c.setState(StateConnected)

	// Watchdog: any message, heartbeat comments included, resets the
	// timer. Silence for twice the heartbeat interval means the
	// connection is dead even without a transport-level error.
	watchdog := time.AfterFunc(2*c.cfg.HeartbeatInterval, func() {
		c.logger.Warn().Msg("heartbeat watchdog fired, forcing reconnect")
		// Cancelling the request context unblocks the read loop with
		// an error, which flows into the normal reconnect path.
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	defer watchdog.Stop()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName, data string
	for scanner.Scan() {
		watchdog.Reset(2 * c.cfg.HeartbeatInterval)
		line := scanner.Text()

		switch {
		case line == "":
			if eventName != "" || data != "" {
				c.dispatch(eventName, data)
				eventName, data = "", ""
			}
		case strings.HasPrefix(line, ":"):
			// Comment frame (heartbeat or open marker): liveness only
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return fmt.Errorf("stream closed by server")
}

// dispatch decodes one named frame and invokes the event handler. A
// parse failure is logged and skipped, never fatal to the read loop; a
// local error event is synthesized so the UI can surface it.
func (c *Consumer) dispatch(eventName, data string) {
	if c.onEvent == nil {
		return
	}

	switch event.Type(eventName) {
	case event.TypeStatus:
		var ev event.StatusChange
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.logger.Warn().Err(err).Msg("skipping unparseable status event")
			c.onEvent(event.StreamError{Message: fmt.Sprintf("unparseable status event: %v", err)})
			return
		}
		c.onEvent(ev)
	case event.TypeError:
		var ev event.StreamError
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.logger.Warn().Err(err).Msg("skipping unparseable error event")
			c.onEvent(event.StreamError{Message: fmt.Sprintf("unparseable error event: %v", err)})
			return
		}
		c.onEvent(ev)
	default:
		c.logger.Warn().Str("event", eventName).Msg("skipping unknown event type")
		c.onEvent(event.StreamError{Message: fmt.Sprintf("unknown event type %q", eventName)})
	}
}

// handleDisconnect applies the retry policy after a connection ends
func (c *Consumer) handleDisconnect(err error) {
	c.mu.Lock()
	if c.closed {
		// Explicit Disconnect already set the terminal state
		c.mu.Unlock()
		return
	}

	c.lastErr = err
	c.attempt++
	if c.attempt > c.cfg.MaxRetries {
		c.retrying = false
		c.lastErr = fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		c.mu.Unlock()
		c.logger.Error().Err(err).Int("attempts", c.cfg.MaxRetries).Msg("retry budget exhausted")
		c.setState(StateFailed)
		return
	}

	c.retrying = true
	attempt := c.attempt
	c.mu.Unlock()

	c.logger.Warn().Err(err).Int("attempt", attempt).Int("max", c.cfg.MaxRetries).Msg("connection lost, reconnect scheduled")
	c.setState(StateError)

	c.mu.Lock()
	if !c.closed && c.retrying {
		c.retryTimer = time.AfterFunc(c.cfg.RetryDelay, c.dial)
	}
	c.mu.Unlock()
}

// setState records a transition and notifies the state handler
func (c *Consumer) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.onState != nil {
		c.onState(s)
	}
}
