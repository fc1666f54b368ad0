package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"tchat/errors"
	"tchat/transport"
	"time"
)

const acceptBackoff = 50 * time.Millisecond

// Listener accepts TCP clients and serves each one on its own goroutine.
type Listener struct {
	log     *slog.Logger
	address string
	handler *Handler
	opts    transport.Options

	mu    sync.RWMutex
	ln    net.Listener
	addr  net.Addr
	ready chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func NewListener(log *slog.Logger, address string, handler *Handler, opts transport.Options) *Listener {
	return &Listener{
		log:     log,
		address: address,
		handler: handler,
		opts:    opts,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the socket is bound.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr is the bound address, nil before Ready.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.addr
}

// Bind opens the socket ahead of Run, so that a busy port fails startup
// instead of being retried by the supervisor.
func (l *Listener) Bind() error {
	ln, err := bind(l.address)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.ln, l.addr = ln, ln.Addr()
	l.mu.Unlock()
	return nil
}

// take hands the bound socket to Run exactly once, binding if Bind was not called.
func (l *Listener) take() (net.Listener, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ln := l.ln; ln != nil {
		l.ln = nil
		return ln, nil
	}
	ln, err := bind(l.address)
	if err != nil {
		return nil, err
	}
	l.addr = ln.Addr()
	return ln, nil
}

func bind(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", errors.ErrBind, address, err)
	}
	return ln, nil
}

// Run accepts until ctx is cancelled, then waits for in-flight connections.
// Accept errors are logged and never stop the loop.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := l.take()
	if err != nil {
		return err
	}
	l.once.Do(func() { close(l.ready) })
	l.log.Info("Chat server listening", "address", ln.Addr().String(), "at", time.Now().UTC())

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.log.Info("Chat server stopped accepting")
				l.wg.Wait()
				return nil
			}
			l.log.Warn("Accept failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(acceptBackoff):
			}
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			stream := transport.NewLineConn(conn, l.opts, l.log)
			l.handler.Serve(ctx, stream, "")
		}()
	}
}
