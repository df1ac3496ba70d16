// Package wsclient is a reconnecting client for the engine websocket. After a
// dropped connection it redials with the last session id so the game resumes.
package wsclient

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/park285/cheese-engine/pkg/enginedto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var ErrNotConnected = errors.New("websocket not connected")

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

type ResponseCallback func(resp *enginedto.Response)

type StateCallback func(state State)

type Client struct {
	wsURL  string
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	state     State

	cbM      sync.RWMutex
	respCbs  []ResponseCallback
	stateCbs []StateCallback

	maxReconnectAttempts int
	reconnectDelay       time.Duration

	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// New returns an unconnected client. maxReconnectAttempts <= 0 disables
// reconnecting.
func New(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		wsURL:                wsURL,
		logger:               logger,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

// SessionID is the id assigned by the server on the last successful dial.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Resume makes the next dial ask for an existing session.
func (c *Client) Resume(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Connect(ctx context.Context) error {
	if c.isStopping() {
		return ErrNotConnected
	}
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	if err := c.dial(ctx); err != nil {
		c.setState(StateFailed)
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	target, err := c.url()
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, resp, err := websocket.Dial(dialCtx, target, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	if id := resp.Header.Get(enginedto.SessionHeader); id != "" {
		c.sessionID = id
	}
	id := c.sessionID
	c.mu.Unlock()
	c.logger.Debug("engine websocket connected", zap.String("session_id", id))
	c.setState(StateConnected)

	c.wg.Add(1)
	go c.listen(conn)
	return nil
}

func (c *Client) url() (string, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	if id != "" {
		q := u.Query()
		q.Set("session", id)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) listen(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		var resp enginedto.Response
		if err := wsjson.Read(c.rootCtx, conn, &resp); err != nil {
			if c.isStopping() {
				return
			}
			c.logger.Debug("engine websocket read failed", zap.Error(err))
			c.dropConn(conn)
			c.setState(StateDisconnected)
			c.scheduleReconnect()
			return
		}

		c.cbM.RLock()
		callbacks := append([]ResponseCallback(nil), c.respCbs...)
		c.cbM.RUnlock()
		for _, cb := range callbacks {
			cb(&resp)
		}
	}
}

// scheduleReconnect is only called from listen, which holds a wg slot.
func (c *Client) scheduleReconnect() {
	if c.maxReconnectAttempts <= 0 {
		c.setState(StateFailed)
		return
	}
	c.setState(StateReconnecting)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(c.backoff(attempt)):
			}
			if err := c.dial(c.rootCtx); err != nil {
				c.logger.Debug("engine websocket redial failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			return
		}
		c.setState(StateFailed)
	}()
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt > 6 {
		attempt = 6
	}
	return c.reconnectDelay * time.Duration(1<<uint(attempt-1))
}

// Send writes one request. Responses arrive through OnResponse callbacks.
func (c *Client) Send(ctx context.Context, req enginedto.Request) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, req)
}

func (c *Client) OnResponse(cb ResponseCallback) {
	if cb == nil {
		return
	}
	c.cbM.Lock()
	c.respCbs = append(c.respCbs, cb)
	c.cbM.Unlock()
}

func (c *Client) OnStateChange(cb StateCallback) {
	if cb == nil {
		return
	}
	c.cbM.Lock()
	c.stateCbs = append(c.stateCbs, cb)
	c.cbM.Unlock()
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.cbM.RLock()
	callbacks := append([]StateCallback(nil), c.stateCbs...)
	c.cbM.RUnlock()
	for _, cb := range callbacks {
		cb(state)
	}
}

func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	c.rootCancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.setState(StateDisconnected)
		return nil
	}
}

// dropConn forgets conn if it is still the current connection.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.CloseNow()
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}
