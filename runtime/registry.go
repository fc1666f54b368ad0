package runtime

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"tchat/contract"
	"tchat/domain"
	"tchat/errors"
	"time"

	"github.com/google/uuid"
)

// Session is one connected, named client.
type Session struct {
	ID          uuid.UUID
	Name        string
	Addr        string
	ConnectedAt time.Time
	peer        contract.Peer
}

// SessionRegistry owns every Session for its lifetime.
// The map lock is only held for lookups and mutations, never while writing to a peer.
type SessionRegistry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	sessions map[string]*Session // map name -> Session
}

func NewSessionRegistry(log *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Register claims name for peer. Two concurrent claims of the same name
// are serialized by the map lock, so exactly one of them wins.
func (r *SessionRegistry) Register(name string, peer contract.Peer, addr string) (*Session, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[name]; ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrNameInUse, name)
	}
	session := &Session{
		ID:          uuid.New(),
		Name:        name,
		Addr:        addr,
		ConnectedAt: time.Now().UTC(),
		peer:        peer,
	}
	r.sessions[name] = session
	return session, nil
}

// Unregister removes the session if the name still belongs to it.
// A stale cleanup never evicts a newer connection that reused the name.
func (r *SessionRegistry) Unregister(session *Session) bool {
	if session == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[session.Name]
	if !ok || current.ID != session.ID {
		return false
	}
	delete(r.sessions, session.Name)
	return true
}

// Send enqueues line for name. Failures are soft: callers log them and go on.
func (r *SessionRegistry) Send(name, line string) error {
	peer, ok := r.peerOf(name)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrPeerDisconnected, name)
	}
	return peer.Send(line)
}

func (r *SessionRegistry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[name]
	return ok
}

// Disconnect delivers an optional notice and closes the peer. Closing unblocks
// the victim's own read loop, which then runs its cleanup and unregisters.
func (r *SessionRegistry) Disconnect(name, notice string) bool {
	peer, ok := r.peerOf(name)
	if !ok {
		return false
	}
	r.closePeer(name, peer, notice)
	return true
}

// Lookup returns the session currently holding name.
func (r *SessionRegistry) Lookup(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

// DisconnectSession closes this very connection, even if it was already
// unregistered. A newer session that reused the name is left alone.
func (r *SessionRegistry) DisconnectSession(session *Session, notice string) {
	if session == nil {
		return
	}
	r.closePeer(session.Name, session.peer, notice)
}

// CloseAll disconnects every session, used on shutdown.
func (r *SessionRegistry) CloseAll(notice string) int {
	r.mu.RLock()
	peers := make(map[string]contract.Peer, len(r.sessions))
	for name, s := range r.sessions {
		peers[name] = s.peer
	}
	r.mu.RUnlock()

	for name, peer := range peers {
		r.closePeer(name, peer, notice)
	}
	return len(peers)
}

func (r *SessionRegistry) closePeer(name string, peer contract.Peer, notice string) {
	if notice != "" {
		if err := peer.Send(notice); err != nil {
			r.log.Debug("Notice not delivered", "name", name, "error", err)
		}
	}
	if err := peer.Close(); err != nil {
		r.log.Debug("Error while closing peer", "name", name, "error", err)
	}
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *SessionRegistry) peerOf(name string) (contract.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	if !ok {
		return nil, false
	}
	return s.peer, true
}
