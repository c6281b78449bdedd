// Package notify listens to a websocket notification endpoint and keeps the
// connection alive across server restarts.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handlers are invoked from the client goroutine. Any of them may be nil.
type Handlers struct {
	OnConnect func()
	// OnMessage receives every text frame decoded as JSON.
	OnMessage    func(msg any)
	OnDisconnect func()
	OnError      func(err error)
}

// Options configures a Client.
type Options struct {
	URL            string
	ReconnectDelay time.Duration
	Handlers       Handlers
	Dialer         *websocket.Dialer
	Logger         *zap.Logger
}

// Client is a reconnecting websocket listener.
type Client struct {
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Client. Call Start to connect.
func New(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	return &Client{opts: opts, logger: opts.Logger}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start connects in the background and reconnects after every disconnect
// until ctx is done or Close is called. Start is a no-op on a started or
// closed client.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.done != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	context.AfterFunc(ctx, c.closeConn)
	go c.loop(ctx)
}

// Close stops reconnecting, closes the socket and waits for the client
// goroutine to exit. OnDisconnect is not called for this close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) stopping(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || ctx.Err() != nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) loop(ctx context.Context) {
	defer close(c.done)
	defer c.setState(Disconnected)

	for {
		c.setState(Connecting)
		c.session(ctx)
		if c.stopping(ctx) {
			return
		}

		c.setState(Disconnected)
		if h := c.opts.Handlers.OnDisconnect; h != nil {
			h()
		}

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection drops.
func (c *Client) session(ctx context.Context) {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		if !c.stopping(ctx) {
			c.fail(eris.Wrapf(err, "notify: dial %s", c.opts.URL))
		}
		return
	}

	c.mu.Lock()
	if c.closed || ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = Connected
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	c.logger.Debug("notification channel connected", zap.String("url", c.opts.URL))
	if h := c.opts.Handlers.OnConnect; h != nil {
		h()
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !c.stopping(ctx) && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("notification channel dropped", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg any
		if err := json.Unmarshal(data, &msg); err != nil {
			c.fail(eris.Wrap(err, "notify: decode message"))
			continue
		}
		if h := c.opts.Handlers.OnMessage; h != nil {
			h(msg)
		}
	}
}

func (c *Client) fail(err error) {
	c.logger.Debug("notification channel error", zap.Error(err))
	if h := c.opts.Handlers.OnError; h != nil {
		h(err)
	}
}
