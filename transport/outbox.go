// Package transport adapts network connections to contract.Stream.
//
// Every connection owns one bounded, ordered outbox drained by a write pump
// goroutine. Enqueueing never blocks: a full outbox marks the peer as a slow
// consumer and closes it.
package transport

import (
	"sync"
	"tchat/errors"
	"time"
)

const (
	DefaultBufferSize   = 256
	DefaultWriteTimeout = 10 * time.Second
)

// Options tunes a connection. A zero IdleTimeout disables the read deadline;
// writes always have one, or a peer that never reads would pin the write pump.
type Options struct {
	BufferSize   int
	MaxLineSize  int
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o Options) sanitize() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.MaxLineSize <= 0 {
		o.MaxLineSize = 4096
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

type outbox struct {
	mu      sync.RWMutex
	queue   chan string
	closed  bool
	onClose func()
}

func newOutbox(size int, onClose func()) *outbox {
	return &outbox{queue: make(chan string, size), onClose: onClose}
}

func (o *outbox) push(frame string) error {
	o.mu.RLock()
	if o.closed {
		o.mu.RUnlock()
		return errors.ErrPeerDisconnected
	}
	select {
	case o.queue <- frame:
		o.mu.RUnlock()
		return nil
	default:
	}
	o.mu.RUnlock()

	o.close()
	return errors.ErrSlowConsumer
}

// close stops accepting frames and runs onClose exactly once.
// Frames already queued are still drained by the write pump.
func (o *outbox) close() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	o.closed = true
	close(o.queue)
	if o.onClose != nil {
		o.onClose()
	}
	return true
}

// whileOpen runs f unless the outbox is closed, excluding a concurrent close.
func (o *outbox) whileOpen(f func()) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return false
	}
	f()
	return true
}

func (o *outbox) isClosed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}
