package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"tchat/domain"
	"tchat/errors"
	"tchat/observability"
	"tchat/transport"
	"time"

	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"
)

// PublicRooms is satisfied by the room directory.
type PublicRooms interface {
	ListPublic() []domain.RoomSummary
}

type StatsProvider interface {
	GetLatest() observability.MonitoringStats
}

// HTTPServer exposes the websocket variant of the chat and a few read-only endpoints.
type HTTPServer struct {
	log             *slog.Logger
	address         string
	handler         *Handler
	rooms           PublicRooms
	stats           StatsProvider
	opts            transport.Options
	shutdownTimeout time.Duration
	upgrader        websocket.Upgrader

	mu    sync.RWMutex
	ln    net.Listener
	addr  net.Addr
	ready chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func NewHTTPServer(
	log *slog.Logger,
	address string,
	handler *Handler,
	rooms PublicRooms,
	stats StatsProvider,
	opts transport.Options,
	shutdownTimeout time.Duration,
) *HTTPServer {
	return &HTTPServer{
		log:             log,
		address:         address,
		handler:         handler,
		rooms:           rooms,
		stats:           stats,
		opts:            opts,
		shutdownTimeout: shutdownTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ready: make(chan struct{}),
	}
}

func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

func (s *HTTPServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Routes builds the mux. Websocket sessions live as long as ctx.
func (s *HTTPServer) Routes(ctx context.Context) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.health)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/rooms", s.roomsHandler)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.websocketHandler(ctx, w, r)
	})
	return mux
}

// Bind opens the socket ahead of Run, see Listener.Bind.
func (s *HTTPServer) Bind() error {
	ln, err := bind(s.address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln, s.addr = ln, ln.Addr()
	s.mu.Unlock()
	return nil
}

func (s *HTTPServer) take() (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ln := s.ln; ln != nil {
		s.ln = nil
		return ln, nil
	}
	ln, err := bind(s.address)
	if err != nil {
		return nil, err
	}
	s.addr = ln.Addr()
	return ln, nil
}

func (s *HTTPServer) Run(ctx context.Context) error {
	ln, err := s.take()
	if err != nil {
		return err
	}
	s.once.Do(func() { close(s.ready) })

	srv := &http.Server{
		Handler:           s.Routes(ctx),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP server shutdown error", "error", err)
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	s.wg.Wait()
	s.log.Info("HTTP server shutdown completed")
	return nil
}

func (s *HTTPServer) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "ok")
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats.GetLatest()); err != nil {
		s.log.Debug("Stats not written", "error", err)
	}
}

func (s *HTTPServer) roomsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Code", "Name", "Members"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, room := range s.rooms.ListPublic() {
		table.Append([]string{string(room.Code), room.Name, strconv.Itoa(room.Members)})
	}
	table.Render()
}

// websocketHandler upgrades the request and serves the chat on it.
// The optional ?name= query parameter is tried as username, a generated one is used otherwise.
func (s *HTTPServer) websocketHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = domain.GenerateName()
	}

	s.wg.Add(1)
	defer s.wg.Done()
	stream := transport.NewWSConn(conn, r.RemoteAddr, s.opts, s.log)
	s.handler.Serve(ctx, stream, name)
}
