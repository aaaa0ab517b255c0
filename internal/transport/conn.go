package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ismaiel54/market-feed-handler/internal/chaos"
)

const opInbound = "inbound"

// Options configures a Conn
type Options struct {
	URL              string
	Backoff          Backoff
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// Chaos optionally drops or delays inbound frames. Nil disables injection.
	Chaos *chaos.Chaos
}

// Conn is a reconnecting websocket client. One goroutine owns dialing and
// reading; every Event is delivered to the handler from that goroutine.
type Conn struct {
	opt    Options
	dialer *websocket.Dialer
	logger *zap.Logger

	mu     sync.Mutex
	ws     *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex

	// set while the handler runs on the I/O goroutine
	delivering atomic.Bool
}

// NewConn creates a connection that is not yet dialed
func NewConn(opt Options, logger *zap.Logger) *Conn {
	if opt.HandshakeTimeout <= 0 {
		opt.HandshakeTimeout = 10 * time.Second
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = 5 * time.Second
	}
	return &Conn{
		opt: opt,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opt.HandshakeTimeout,
		},
		logger: logger,
	}
}

// Open starts the dial/read loop in the background
func (c *Conn) Open(handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return ErrAlreadyOpen
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, handler, c.done)
	return nil
}

// Close stops the loop, closes the socket and waits for the I/O goroutine to exit.
// When an event is being delivered at the time of the call (including a call made
// from inside the handler) Close does not wait; the loop exits once the handler
// returns and delivers no further events. Closing an unopened connection is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	cancel, done, ws := c.cancel, c.done, c.ws
	if cancel != nil {
		cancel()
	}
	c.cancel = nil
	c.ws = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}

	var err error
	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = ws.Close()
	}

	if !c.delivering.Load() {
		<-done
	}
	return err
}

// Connected reports whether a websocket session is currently established
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// SendJSON writes v as a JSON text frame on the current connection
func (c *Conn) SendJSON(v any) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ws.SetWriteDeadline(time.Now().Add(c.opt.WriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := ws.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *Conn) run(ctx context.Context, handler Handler, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		ws, _, err := c.dialer.DialContext(ctx, c.opt.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			c.deliver(ctx, handler, Event{Type: EventError, Err: fmt.Errorf("dial failed: %w", err), Received: time.Now()})
			c.sleepBackoff(ctx, attempt)
			continue
		}

		if !c.attach(ctx, ws) {
			return
		}
		attempt = 0
		c.logger.Info("websocket connected")
		c.deliver(ctx, handler, Event{Type: EventOpen, Received: time.Now()})

		err = c.readLoop(ctx, ws, handler)
		c.detach(ws)

		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("websocket disconnected", zap.Error(err))
		c.deliver(ctx, handler, Event{Type: EventClose, Err: err, Received: time.Now()})

		attempt++
		c.sleepBackoff(ctx, attempt)
	}
}

// attach publishes ws for writers unless Close already ran
func (c *Conn) attach(ctx context.Context, ws *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		_ = ws.Close()
		return false
	}
	c.ws = ws
	return true
}

func (c *Conn) detach(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
	_ = ws.Close()
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn, handler Handler) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		received := time.Now()

		if c.opt.Chaos.MaybeDrop(opInbound) {
			continue
		}
		if err := c.opt.Chaos.MaybeDelay(ctx, opInbound); err != nil {
			return err
		}

		c.deliver(ctx, handler, Event{Type: EventMessage, Data: data, Received: received})
	}
}

// deliver hands ev to the handler unless the connection has been closed
func (c *Conn) deliver(ctx context.Context, handler Handler, ev Event) {
	c.delivering.Store(true)
	defer c.delivering.Store(false)
	if ctx.Err() != nil {
		return
	}
	handler(ev)
}

func (c *Conn) sleepBackoff(ctx context.Context, attempt int) {
	wait := c.opt.Backoff.Next(attempt)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
