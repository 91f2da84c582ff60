package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quotestream/logger"
)

const (
	defaultWriteTimeout = 5 * time.Second
	idleTimeoutReason   = "idle timeout"
)

// WebSocketDialer is the gorilla/websocket transport.
type WebSocketDialer struct {
	// IdleTimeout, when set, drops the connection (reported as Disconnected)
	// if no frame (data, ping or pong) arrives for that long.
	IdleTimeout time.Duration

	// WriteTimeout bounds each outbound frame. Defaults to 5s.
	WriteTimeout time.Duration

	// Base carries proxy and TLS settings. Its HandshakeTimeout is replaced by
	// the request timeout.
	Base *websocket.Dialer
}

// Open implements Dialer.
func (d *WebSocketDialer) Open(req Request, sink func(Event)) Conn {
	base := websocket.DefaultDialer
	if d.Base != nil {
		base = d.Base
	}
	dialer := *base
	dialer.HandshakeTimeout = req.Timeout

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &wsConn{
		req:          req,
		sink:         sink,
		dialer:       &dialer,
		idleTimeout:  d.IdleTimeout,
		writeTimeout: writeTimeout,
		log:          logger.GetLogger().WithComponent("feed_transport"),
	}
}

type wsConn struct {
	req          Request
	sink         func(Event)
	dialer       *websocket.Dialer
	idleTimeout  time.Duration
	writeTimeout time.Duration
	log          *logger.Entry

	mu         sync.Mutex
	conn       *websocket.Conn
	cancelDial context.CancelFunc
	started    bool
	closed     bool

	writeMu sync.Mutex
}

func (c *wsConn) Connect() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, cancel := context.WithTimeout(context.Background(), c.req.Timeout)
	c.cancelDial = cancel
	c.mu.Unlock()

	go c.run(ctx, cancel)
}

func (c *wsConn) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn, cancel, started := c.conn, c.cancelDial, c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}
	if started {
		c.sink(Event{Kind: EventCancelled})
	}
}

func (c *wsConn) WriteText(text string) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	if conn == nil || closed {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *wsConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *wsConn) run(ctx context.Context, cancel context.CancelFunc) {
	conn, resp, err := c.dialer.DialContext(ctx, c.req.URL, c.req.Header)
	cancel()
	if err != nil {
		if c.isClosed() {
			return
		}
		if resp != nil {
			err = fmt.Errorf("dial feed: %w (status %d)", err, resp.StatusCode)
		} else {
			err = fmt.Errorf("dial feed: %w", err)
		}
		c.sink(Event{Kind: EventError, Err: err})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		c.touch(conn)
		c.sink(Event{Kind: EventPing, Data: []byte(data)})
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})
	conn.SetPongHandler(func(data string) error {
		c.touch(conn)
		c.sink(Event{Kind: EventPong, Data: []byte(data)})
		return nil
	})

	headers := http.Header{}
	if resp != nil {
		headers = resp.Header
	}
	c.sink(Event{Kind: EventConnected, Headers: headers})

	c.readLoop(conn)
}

// touch extends the idle deadline.
func (c *wsConn) touch(conn *websocket.Conn) {
	if c.idleTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
}

func (c *wsConn) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		c.touch(conn)
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}

		switch msgType {
		case websocket.TextMessage:
			c.sink(Event{Kind: EventText, Text: string(data)})
		case websocket.BinaryMessage:
			c.sink(Event{Kind: EventBinary, Data: data})
		}
	}
}

func (c *wsConn) readFailed(err error) {
	// Disconnect already reported EventCancelled
	if c.isClosed() {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.sink(Event{Kind: EventDisconnected, Reason: closeErr.Text, Code: closeErr.Code})
		return
	}

	// gorilla read errors are permanent, the socket is unusable after a timeout
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.log.WithField("idle_timeout", c.idleTimeout.String()).Warn("feed idle, dropping connection")
		c.sink(Event{Kind: EventDisconnected, Reason: idleTimeoutReason, Code: websocket.CloseAbnormalClosure})
		return
	}

	c.sink(Event{Kind: EventError, Err: fmt.Errorf("read feed: %w", err)})
}
