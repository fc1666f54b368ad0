package transport

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"tchat/domain"
	"tchat/errors"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WSConn carries the same line protocol as LineConn, one frame per text message.
type WSConn struct {
	conn   *websocket.Conn
	addr   string
	outbox *outbox
	opts   Options
	log    *slog.Logger
	done   chan struct{}
}

func NewWSConn(conn *websocket.Conn, addr string, opts Options, log *slog.Logger) *WSConn {
	opts = opts.sanitize()
	conn.SetReadLimit(int64(opts.MaxLineSize))

	c := &WSConn{
		conn: conn,
		addr: addr,
		opts: opts,
		log:  log,
		done: make(chan struct{}),
	}
	// Only the reading goroutine may call websocket read methods, so the
	// deadline that unblocks it is set on the raw connection.
	c.outbox = newOutbox(opts.BufferSize, func() {
		_ = conn.NetConn().SetReadDeadline(time.Now())
	})
	go c.writePump()
	return c
}

func (c *WSConn) RemoteAddr() string {
	return c.addr
}

// ReadLine returns the next text message with any trailing newline removed.
// Binary messages are ignored.
func (c *WSConn) ReadLine() (string, error) {
	open := c.outbox.whileOpen(func() {
		if c.opts.IdleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
		}
	})
	if !open {
		return "", errors.ErrPeerDisconnected
	}

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", c.readError(err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (c *WSConn) readError(err error) error {
	switch {
	case c.outbox.isClosed():
		return errors.ErrPeerDisconnected
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		return io.EOF
	default:
		return fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}
}

func (c *WSConn) Send(line string) error {
	return c.outbox.push(domain.Frame(line))
}

func (c *WSConn) Prompt(text string) error {
	return c.outbox.push(text)
}

func (c *WSConn) Close() error {
	c.outbox.close()
	return nil
}

func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

func (c *WSConn) writePump() {
	defer close(c.done)
	defer func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error closing websocket", "addr", c.addr, "error", err)
		}
	}()

	for frame := range c.outbox.queue {
		if c.opts.WriteTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Debug("Websocket write failed", "addr", c.addr, "error", err)
			}
			c.outbox.close()
			for range c.outbox.queue {
			}
			return
		}
	}

	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(closeGracePeriod)); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error writing close message", "addr", c.addr, "error", err)
	}
}
