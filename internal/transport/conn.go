package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"casechat-sync/internal/models"
	"casechat-sync/internal/observability"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// ConnectionError is a fatal handshake or authentication failure. Mid-
// session transport drops are retried internally and never surface as
// ConnectionError unless every reconnect attempt is exhausted.
type ConnectionError struct {
	Status int
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("push channel handshake rejected: status %d", e.Status)
	}
	return fmt.Sprintf("push channel connect failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ErrConnClosed is returned by Send after Close.
var ErrConnClosed = errors.New("push channel closed")

// Options configures the push-channel connection.
type Options struct {
	URL   string
	Token string

	MaxReconnectAttempts uint64
	PingInterval         time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration

	Dialer *websocket.Dialer
}

func (o *Options) withDefaults() {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 6
	}
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
}

// Conn is the single authenticated push-channel connection of a session.
// It owns the websocket lifecycle: one read pump, one write pump, and a
// supervisor that redials with bounded backoff on transport drops. It
// performs no message-level mutation.
type Conn struct {
	opts Options

	mu    sync.RWMutex
	state State
	ws    *websocket.Conn

	handler     func(*models.Envelope)
	onReconnect func()

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial opens and authenticates the push channel. Handshake rejection is
// fatal for the attempt and returned as *ConnectionError.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	opts.withDefaults()
	c := &Conn{
		opts:   opts,
		state:  StateConnecting,
		send:   make(chan []byte, 256),
		closed: make(chan struct{}),
	}

	ws, err := c.dialOnce(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}

	c.ws = ws
	c.setState(StateConnected)
	observability.SetWSConnected(true)
	go c.run()
	return c, nil
}

func (c *Conn) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	ctx, span := otel.Tracer("casechat-sync/transport").Start(ctx, "ws.handshake")
	defer span.End()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	ws, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &ConnectionError{Status: status, Err: err}
	}
	return ws, nil
}

// SetEventHandler installs the decoded-frame callback. Must be set before
// events are expected; frames arriving earlier are dropped.
func (c *Conn) SetEventHandler(handler func(*models.Envelope)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// SetReconnectHandler installs a callback invoked after every successful
// reconnect, once the connection is usable again.
func (c *Conn) SetReconnectHandler(handler func()) {
	c.mu.Lock()
	c.onReconnect = handler
	c.mu.Unlock()
}

// State reports the current lifecycle state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Send queues one envelope for delivery. Queued frames survive a
// reconnect; the write pump of the next session drains them.
func (c *Conn) Send(env *models.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	case c.send <- raw:
		return nil
	default:
		return errors.New("push channel send queue full")
	}
}

// Close tears the connection down. Idempotent; releases all room
// memberships implicitly because the server drops them with the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.RLock()
		ws := c.ws
		c.mu.RUnlock()
		if ws != nil {
			deadline := time.Now().Add(time.Second)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = ws.Close()
		}
	})
	return nil
}

func (c *Conn) run() {
	for {
		c.mu.RLock()
		ws := c.ws
		c.mu.RUnlock()

		writerStop := make(chan struct{})
		go c.writePump(ws, writerStop)
		c.readPump(ws)
		close(writerStop)
		_ = ws.Close()

		observability.SetWSConnected(false)

		select {
		case <-c.closed:
			c.setState(StateDisconnected)
			return
		default:
		}

		// Transport drop, including a server-initiated close: retry with
		// bounded backoff rather than terminating silently.
		c.setState(StateReconnecting)
		next, err := c.redial()
		if err != nil {
			log.Printf("push channel reconnect exhausted: %v", err)
			c.setState(StateDisconnected)
			return
		}

		c.mu.Lock()
		c.ws = next
		c.state = StateConnected
		handler := c.onReconnect
		c.mu.Unlock()

		observability.SetWSConnected(true)
		observability.IncWSReconnect()
		if handler != nil {
			go handler()
		}
	}
}

func (c *Conn) readPump(ws *websocket.Conn) {
	ws.SetReadLimit(1 << 16)
	_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("push channel read error: %v", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		env, err := models.ParseEnvelope(raw)
		if err != nil {
			log.Printf("push channel dropped malformed frame: %v", err)
			continue
		}
		observability.IncWSEvent(string(env.Type))

		c.mu.RLock()
		handler := c.handler
		c.mu.RUnlock()
		if handler != nil {
			handler(env)
		}
	}
}

func (c *Conn) writePump(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case raw := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *Conn) redial() (*websocket.Conn, error) {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.opts.MaxReconnectAttempts)

	var ws *websocket.Conn
	attempt := func() error {
		select {
		case <-c.closed:
			return backoff.Permanent(ErrConnClosed)
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conn, err := c.dialOnce(ctx)
		if err != nil {
			var connErr *ConnectionError
			if errors.As(err, &connErr) &&
				(connErr.Status == http.StatusUnauthorized || connErr.Status == http.StatusForbidden) {
				// Credential no longer valid; retrying cannot help.
				return backoff.Permanent(err)
			}
			return err
		}
		ws = conn
		return nil
	}

	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return ws, nil
}
