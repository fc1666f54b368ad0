// Package server drives client connections through the chat protocol.
//
// A Handler runs one state machine per connection:
// NEGOTIATING_NAME -> MENU -> IN_ROOM -> TERMINATED.
// The Listener feeds it raw TCP connections, the HTTPServer websocket ones.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"tchat/contract"
	"tchat/domain"
	"tchat/errors"
	"tchat/moderation"
	"tchat/observability"
	"tchat/runtime"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
)

type Handler struct {
	log         *slog.Logger
	sessions    *runtime.SessionRegistry
	rooms       *runtime.RoomDirectory
	broadcaster contract.IBroadcaster
	profiles    contract.IProfileStore
	moderator   *moderation.Moderator
	metrics     *observability.MonitoringManager
	rateLimit   RateLimitConfig
	colours     bool
	now         func() time.Time
}

type HandlerOption func(*Handler)

// WithModerator censors chat text before it is broadcast.
func WithModerator(m *moderation.Moderator) HandlerOption {
	return func(h *Handler) { h.moderator = m }
}

func WithMetrics(m *observability.MonitoringManager) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func WithRateLimit(cfg RateLimitConfig) HandlerOption {
	return func(h *Handler) { h.rateLimit = cfg }
}

// WithColours prints the room code line in blue.
func WithColours(enabled bool) HandlerOption {
	return func(h *Handler) { h.colours = enabled }
}

func NewHandler(
	log *slog.Logger,
	sessions *runtime.SessionRegistry,
	rooms *runtime.RoomDirectory,
	broadcaster contract.IBroadcaster,
	profiles contract.IProfileStore,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		log:         log,
		sessions:    sessions,
		rooms:       rooms,
		broadcaster: broadcaster,
		profiles:    profiles,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the protocol on stream until the client leaves, is disconnected
// by an admin or ctx is cancelled. A name supplied by the transport is tried
// before prompting. Serve always closes stream.
func (h *Handler) Serve(ctx context.Context, stream contract.Stream, suggestedName string) {
	c := &connection{
		h:       h,
		stream:  stream,
		limiter: newRateLimiter(h.rateLimit, h.now),
		log:     h.log.With("conn_id", uuid.NewString()[:8], "addr", stream.RemoteAddr()),
	}
	defer c.cleanup()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Connection handler panicked", "panic", r)
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = stream.Send(domain.NoticeShutdown)
		_ = stream.Close()
	})
	defer stop()

	if h.metrics != nil {
		h.metrics.IncrConnections()
	}
	c.log.Debug("Connection accepted")

	if !c.negotiateName(suggestedName) {
		return
	}
	c.enterServer()

	code, ok := c.mainMenu()
	if !ok {
		return
	}
	c.chat(code)
}

// connection is the per-client state owned by one Serve call.
type connection struct {
	h       *Handler
	stream  contract.Stream
	session *runtime.Session
	limiter *rateLimiter
	log     *slog.Logger
	once    sync.Once
}

func (c *connection) name() string {
	return c.session.Name
}

func (c *connection) send(line string) {
	c.deliver(c.stream.Send(line))
}

func (c *connection) prompt(text string) {
	c.deliver(c.stream.Prompt(text))
}

func (c *connection) deliver(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, errors.ErrSlowConsumer) && c.h.metrics != nil {
		c.h.metrics.IncrSlowConsumers()
	}
	c.log.Debug("Delivery failed", "error", err)
}

// read returns the next line trimmed of surrounding blanks. Any error ends the connection.
func (c *connection) read() (string, bool) {
	line, err := c.stream.ReadLine()
	if err != nil {
		c.log.Debug("Read ended", "error", err)
		return "", false
	}
	return strings.TrimSpace(line), true
}

func (c *connection) ask(prompt string) (string, bool) {
	c.prompt(prompt)
	return c.read()
}

func (c *connection) negotiateName(suggested string) bool {
	candidate := strings.TrimSpace(suggested)
	prompted := false
	for {
		if candidate == "" {
			if !prompted {
				c.send(domain.PromptUsername)
				prompted = true
			}
			line, ok := c.read()
			if !ok {
				return false
			}
			candidate = line
		}

		session, err := c.h.sessions.Register(candidate, c.stream, c.stream.RemoteAddr())
		switch {
		case err == nil:
			c.session = session
			c.log = c.log.With("name", session.Name)
			return true
		case errors.Is(err, errors.ErrNameInUse):
			c.send(domain.NoticeNameInUse)
		default:
			c.send(domain.NoticeInvalid)
		}
		candidate = ""
	}
}

func (c *connection) enterServer() {
	profile, err := c.h.profiles.RecordConnect(c.name(), c.h.now())
	if err != nil {
		c.log.Warn("Profile not recorded", "error", err)
	}
	c.h.rooms.EnsureGlobalRoom()
	if err := c.h.rooms.Join(c.name(), domain.GlobalRoomCode); err != nil {
		c.log.Warn("Could not join global room", "error", err)
	}
	c.log.Info("User connected", "first_seen", profile.FirstSeen)
}

// mainMenu loops until the client enters a room or leaves.
func (c *connection) mainMenu() (domain.RoomCode, bool) {
	for {
		c.send(domain.Menu)
		choice, ok := c.read()
		if !ok {
			return "", false
		}

		switch choice {
		case domain.MenuCreate:
			return c.createRoom()
		case domain.MenuJoin:
			code, entered, ok := c.joinRoom()
			if !ok {
				return "", false
			}
			if entered {
				return code, true
			}
		case domain.MenuListPublic:
			c.listPublic()
		default:
			c.send(domain.NoticeBadChoice)
		}
	}
}

func yes(answer string) bool {
	return strings.EqualFold(answer, "y")
}

func (c *connection) createRoom() (domain.RoomCode, bool) {
	admin, ok := c.ask(domain.PromptAdmin)
	if !ok {
		return "", false
	}
	public, ok := c.ask(domain.PromptPublic)
	if !ok {
		return "", false
	}

	code := c.h.rooms.Create(c.name(), yes(public), yes(admin))
	c.leaveGlobal(code)
	c.send(c.roomCodeLine(code))
	return code, true
}

func (c *connection) roomCodeLine(code domain.RoomCode) string {
	line := domain.RoomCodeLine(code)
	if !c.h.colours {
		return line
	}
	// Forced ANSI: the line is rendered by the client's terminal, not ours.
	return fmt.Sprintf(color.FullColorTpl, color.FgBlue.Code(), line)
}

// joinRoom reports whether the room was entered. A missing room or a ban keeps the client in the menu.
func (c *connection) joinRoom() (code domain.RoomCode, entered bool, ok bool) {
	answer, ok := c.ask(domain.PromptRoomCode)
	if !ok {
		return "", false, false
	}
	code = domain.RoomCode(answer)

	err := c.h.rooms.Join(c.name(), code)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrBanned):
		c.log.Info("Banned user refused", "room", code)
		c.send(domain.NoticeBanned)
		return "", false, true
	default:
		c.send(domain.NoticeNotFound)
		return "", false, true
	}

	c.leaveGlobal(code)
	c.h.broadcaster.Broadcast(code, domain.JoinedLine(c.name()), c.name())
	c.log.Info("User joined", "room", code)
	return code, true, true
}

// leaveGlobal drops the lobby membership once the client settled in another room.
func (c *connection) leaveGlobal(code domain.RoomCode) {
	if code != domain.GlobalRoomCode {
		c.h.rooms.Leave(c.name(), domain.GlobalRoomCode)
	}
}

func (c *connection) listPublic() {
	rooms := c.h.rooms.ListPublic()
	if len(rooms) == 0 {
		c.send(domain.NoticeNoRooms)
		return
	}
	c.send(domain.PublicRoomsHead)
	for _, room := range rooms {
		c.send(domain.SummaryLine(room))
	}
}

func (c *connection) chat(code domain.RoomCode) {
	c.log = c.log.With("room", code)
	for {
		line, ok := c.read()
		if !ok {
			return
		}
		if line == "" {
			continue
		}

		command := domain.ParseCommand(line)
		if !c.h.rooms.IsAdmin(code, c.name()) {
			command = domain.AsChat(line)
		}

		switch cmd := command.(type) {
		case domain.Ban:
			c.ban(code, cmd.Target, line)
		case domain.Kick:
			c.kick(code, cmd.Target, line)
		case domain.RemoveRoom:
			if c.removeRoom(code, line) {
				return
			}
		case domain.Chat:
			c.say(code, cmd.Text)
		}
	}
}

func (c *connection) say(code domain.RoomCode, text string) {
	if !c.limiter.allow() {
		if c.h.metrics != nil {
			c.h.metrics.IncrThrottled()
		}
		c.send(domain.NoticeSlowDown)
		return
	}

	if c.h.moderator != nil {
		censored, words := c.h.moderator.Censor(text)
		if len(words) > 0 {
			c.log.Info("Message censored", "words", len(words), "lang", moderation.DetectLanguage(text))
			if c.h.metrics != nil {
				c.h.metrics.IncrCensored()
			}
		}
		text = censored
	}

	c.h.broadcaster.Broadcast(code, domain.ChatLine(c.name(), text), c.name())
	if c.h.metrics != nil {
		c.h.metrics.IncrMessages()
	}
}

// The victim's session is captured before the membership check, so a later
// connection reusing the name is never the one closed.
func (c *connection) ban(code domain.RoomCode, target, raw string) {
	victim, _ := c.h.sessions.Lookup(target)
	err := c.h.rooms.Ban(c.name(), code, target)
	if c.adminFailed(code, err, raw) {
		return
	}
	c.h.sessions.DisconnectSession(victim, domain.NoticeYouBanned)
	c.h.broadcaster.Broadcast(code, domain.BannedLine(target), "")
}

func (c *connection) kick(code domain.RoomCode, target, raw string) {
	victim, _ := c.h.sessions.Lookup(target)
	err := c.h.rooms.Kick(c.name(), code, target)
	if c.adminFailed(code, err, raw) {
		return
	}
	c.h.sessions.DisconnectSession(victim, domain.NoticeYouKicked)
	c.h.broadcaster.Broadcast(code, domain.KickedLine(target), "")
}

// adminFailed maps a refused admin command to its outcome. Only the issuer sees anything.
func (c *connection) adminFailed(code domain.RoomCode, err error, raw string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, errors.ErrTargetNotInRoom):
		c.send(domain.NoticeNoTarget)
	case errors.Is(err, errors.ErrNotAdmin):
		c.say(code, raw)
	default:
		c.log.Warn("Admin command failed", "error", err)
	}
	return true
}

// removeRoom reports whether the room is gone and the admin must leave.
func (c *connection) removeRoom(code domain.RoomCode, raw string) bool {
	inside := make(map[string]*runtime.Session)
	for _, member := range c.h.rooms.Members(code) {
		if session, ok := c.h.sessions.Lookup(member); ok {
			inside[member] = session
		}
	}

	members, err := c.h.rooms.Remove(c.name(), code)
	if err != nil {
		if errors.Is(err, errors.ErrNotAdmin) {
			c.say(code, raw)
			return false
		}
		c.log.Warn("Room removal failed", "error", err)
		return errors.Is(err, errors.ErrRoomNotFound)
	}

	for _, member := range members {
		if member == c.name() {
			continue
		}
		if session, ok := inside[member]; ok {
			c.h.sessions.DisconnectSession(session, domain.NoticeRemoved)
			continue
		}
		// joined after the snapshot
		c.h.sessions.Disconnect(member, domain.NoticeRemoved)
	}
	c.send(domain.NoticeRemovedOK)
	return true
}

// cleanup runs once per connection whatever the exit path.
func (c *connection) cleanup() {
	c.once.Do(func() {
		if c.session != nil {
			left := c.h.rooms.LeaveAll(c.name())
			c.h.sessions.Unregister(c.session)
			if err := c.h.profiles.RecordDisconnect(c.name(), c.h.now()); err != nil {
				c.log.Warn("Profile not updated", "error", err)
			}
			c.log.Info("User disconnected", "rooms_left", len(left))
		}
		if err := c.stream.Close(); err != nil {
			c.log.Debug("Error while closing stream", "error", err)
		}
	})
}
