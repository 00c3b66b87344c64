package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/allcallall/voicecall/internal/util"
)

// ConnState is the lifecycle state of the signaling channel. It is owned
// exclusively by the Client and transitions only on socket lifecycle events.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "disconnected"
	}
}

// SendResult reports how a message left the Client: transmitted immediately,
// or buffered until the channel recovers.
type SendResult int

const (
	Sent SendResult = iota
	Queued
)

// ErrQueueOverflow is returned by Send when the outbound queue is full.
// Unlike every other failure here, it must be surfaced to the caller —
// a silently dropped call-control message would leave both peers stuck.
var ErrQueueOverflow = errors.New("signal: outbound queue overflow")

const (
	defaultReconnectDelay = 3 * time.Second
	defaultQueueCap       = 50
	handshakeTimeout      = 10 * time.Second
	eventBuffer           = 64
)

// Options configure a Client. Zero values fall back to production defaults.
type Options struct {
	URL            string // signaling endpoint, e.g. wss://host/api/v1/ws
	Token          string // bearer token, carried as a query parameter
	ReconnectDelay time.Duration
	QueueCap       int
}

// Client owns one logical connection to the signaling server. It reconnects
// with a flat delay on every unintended close, buffers outbound messages
// while disconnected (bounded), and publishes lifecycle and inbound-message
// events on a single ordered channel.
type Client struct {
	url      string
	token    string
	delay    time.Duration
	queueCap int

	events chan Event

	mu      sync.Mutex
	state   ConnState
	conn    *websocket.Conn
	queue   []*Message
	timer   *time.Timer
	stopped bool
	gen     uint64 // connection generation; guards callbacks from stale sockets
}

// New creates a Client. Call Connect to open the channel.
func New(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.QueueCap <= 0 {
		opts.QueueCap = defaultQueueCap
	}
	return &Client{
		url:      opts.URL,
		token:    opts.Token,
		delay:    opts.ReconnectDelay,
		queueCap: opts.QueueCap,
		events:   make(chan Event, eventBuffer),
	}
}

// Events returns the ordered event stream. Within one connection's lifetime
// the order is Open, Messages (arrival order), Close.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the channel. Idempotent: a no-op while already connecting or
// connected. Clears the do-not-reconnect flag set by Disconnect.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.stopped = false
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.run(gen)
}

// Send transmits a message immediately when the channel is open, or appends
// it to the bounded outbound queue otherwise. Returns ErrQueueOverflow when
// the queue is already at capacity.
func (c *Client) Send(msg *Message) (SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateOpen && c.conn != nil {
		if err := c.conn.WriteJSON(msg); err != nil {
			return Sent, fmt.Errorf("write signaling message: %w", err)
		}
		util.Stats.AddSent()
		return Sent, nil
	}

	if len(c.queue) >= c.queueCap {
		return Queued, ErrQueueOverflow
	}
	c.queue = append(c.queue, msg)
	util.Stats.AddQueued()
	return Queued, nil
}

// Disconnect closes the channel and prevents reconnection. Queued outbound
// messages are discarded — they are not meaningful after an intentional
// disconnect. No Close event is emitted.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	c.gen++ // invalidate in-flight socket goroutines
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.queue = nil
}

// ---------------------------------------------------------------------------
// Socket lifecycle (one goroutine per connection attempt)
// ---------------------------------------------------------------------------

// run dials the endpoint and, on success, services the connection until it
// closes. All events for one generation are emitted from this goroutine, so
// consumers observe Open → Messages → Close in order.
func (c *Client) run(gen uint64) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.Dial(c.authURL(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("dial signaling server: %w", err)})
		c.closed(gen, -1, "dial failed")
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.stopped {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.emit(Event{Kind: EventOpen})
	c.drainQueue(gen)
	c.readLoop(gen, conn)
}

// drainQueue transmits buffered messages strictly in insertion order. When a
// write fails, the untransmitted remainder — including the failed message —
// is requeued at the front in original order and the transport is forcibly
// closed so the regular reconnect path takes over.
func (c *Client) drainQueue(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.conn == nil {
		return
	}
	pending := c.queue
	c.queue = nil

	for i, msg := range pending {
		if err := c.conn.WriteJSON(msg); err != nil {
			util.LogWarning("signal: flush of queued message failed: %v", err)
			c.queue = append(pending[i:], c.queue...)
			c.conn.Close()
			return
		}
		util.Stats.AddSent()
	}
}

// readLoop parses inbound frames until the connection drops. A malformed
// frame is reported as an Error event and is otherwise non-fatal.
func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeInfo(err)
			c.closed(gen, code, reason)
			return
		}
		util.Stats.AddRecv()

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("parse signaling frame: %w", err)})
			continue
		}
		c.emit(Event{Kind: EventMessage, Message: &msg})
	}
}

// closed records the transport loss for the given generation, schedules a
// reconnect unless Disconnect was requested, and emits the Close event.
func (c *Client) closed(gen uint64, code int, reason string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected

	if !c.stopped {
		// Flat-delay retry, on purpose: no backoff, no attempt cap.
		util.Stats.AddReconnect()
		c.timer = time.AfterFunc(c.delay, c.reconnect)
	}
	c.mu.Unlock()

	c.emit(Event{Kind: EventClose, Code: code, Reason: reason})
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.stopped || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.run(gen)
}

func (c *Client) emit(ev Event) {
	c.events <- ev
}

// authURL appends the bearer token as a query parameter.
func (c *Client) authURL() string {
	return c.url + "?token=" + url.QueryEscape(c.token)
}

// closeInfo extracts the close code and reason from a read error.
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return -1, err.Error()
}
