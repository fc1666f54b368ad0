package transport

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"tchat/domain"
	"tchat/errors"
	"time"
)

// LineConn speaks the newline-terminated text protocol over a stream socket.
type LineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	outbox  *outbox
	opts    Options
	log     *slog.Logger
	done    chan struct{}
}

func NewLineConn(conn net.Conn, opts Options, log *slog.Logger) *LineConn {
	opts = opts.sanitize()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), opts.MaxLineSize)

	c := &LineConn{
		conn:    conn,
		scanner: scanner,
		opts:    opts,
		log:     log,
		done:    make(chan struct{}),
	}
	// An immediate read deadline is what unblocks a victim stuck in ReadLine.
	c.outbox = newOutbox(opts.BufferSize, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	go c.writePump()
	return c
}

func (c *LineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// ReadLine blocks until the next line, end of stream, idle timeout or Close.
func (c *LineConn) ReadLine() (string, error) {
	open := c.outbox.whileOpen(func() {
		if c.opts.IdleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
		}
	})
	if !open {
		return "", errors.ErrPeerDisconnected
	}

	if c.scanner.Scan() {
		return c.scanner.Text(), nil
	}
	err := c.scanner.Err()
	switch {
	case c.outbox.isClosed():
		return "", errors.ErrPeerDisconnected
	case err == nil:
		return "", io.EOF
	default:
		return "", fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}
}

func (c *LineConn) Send(line string) error {
	return c.outbox.push(domain.Frame(line))
}

func (c *LineConn) Prompt(text string) error {
	return c.outbox.push(text)
}

// Close stops the outbox. Pending frames are flushed before the socket closes.
func (c *LineConn) Close() error {
	c.outbox.close()
	return nil
}

// Done is closed once the socket has been released.
func (c *LineConn) Done() <-chan struct{} {
	return c.done
}

func (c *LineConn) writePump() {
	defer close(c.done)
	defer func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error closing connection", "addr", c.RemoteAddr(), "error", err)
		}
	}()

	w := bufio.NewWriter(c.conn)
	for frame := range c.outbox.queue {
		if c.opts.WriteTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		}
		_, _ = w.WriteString(frame)
		// Coalesce whatever is already queued into the same flush.
		for n := len(c.outbox.queue); n > 0; n-- {
			next, ok := <-c.outbox.queue
			if !ok {
				break
			}
			_, _ = w.WriteString(next)
		}
		if err := w.Flush(); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Debug("Write failed", "addr", c.RemoteAddr(), "error", err)
			}
			c.outbox.close()
			for range c.outbox.queue {
			}
			return
		}
	}
}

var _ io.Closer = (*LineConn)(nil)
