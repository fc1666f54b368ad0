package e2e

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"tchat/domain"
	"tchat/repositories"
	"tchat/runtime"
	"tchat/server"
	"tchat/transport"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseTCPSuite struct {
	suite.Suite
	Config  Config
	addr    string
	timeout time.Duration
	stop    func()
}

// SetupSuite loads the environment configuration and starts a server unless CHAT_ADDR is set.
func (s *BaseTCPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.timeout, err = time.ParseDuration(s.Config.IOTimeout)
	s.Require().NoError(err)

	if s.Config.ChatAddr != "" {
		s.addr = s.Config.ChatAddr
		s.stop = func() {}
		return
	}
	s.startLocal()
}

func (s *BaseTCPSuite) TearDownSuite() {
	s.stop()
}

func (s *BaseTCPSuite) startLocal() {
	log := logs.GetLoggerFromLevel(slog.LevelWarn)
	db, err := repositories.OpenBadger("")
	s.Require().NoError(err)

	sessions := runtime.NewSessionRegistry(log)
	rooms := runtime.NewRoomDirectory(log)
	rooms.EnsureGlobalRoom()
	handler := server.NewHandler(log, sessions, rooms, runtime.NewBroadcaster(log, sessions, rooms),
		repositories.NewProfileRepository(db, log), server.WithColours(false))
	listener := server.NewListener(log, "127.0.0.1:0", handler, transport.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()
	select {
	case <-listener.Ready():
	case err := <-done:
		s.Require().NoError(err)
	}

	s.addr = listener.Addr().String()
	s.stop = func() {
		cancel()
		<-done
		_ = db.Close()
	}
}

// Client is a scripted line-oriented chat user.
type Client struct {
	s    *BaseTCPSuite
	name string
	conn net.Conn
	r    *bufio.Reader
}

// Connect prints a colorized header, dials the server and negotiates name.
func (s *BaseTCPSuite) Connect(name string) *Client {
	header := fmt.Sprintf("  ====== %s connects ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	conn, err := net.DialTimeout("tcp", s.addr, s.timeout)
	s.Require().NoError(err, "Failed to connect to chat server at "+s.addr)
	c := &Client{s: s, name: name, conn: conn, r: bufio.NewReader(conn)}
	s.T().Cleanup(func() { _ = conn.Close() })

	c.Expect(domain.Frame(domain.PromptUsername))
	c.negotiate()
	return c
}

// negotiate retries while a previous session of the same name is still being cleaned up.
func (c *Client) negotiate() {
	taken := domain.Frame(domain.NoticeNameInUse)
	for attempt := 0; ; attempt++ {
		c.Send(c.name)
		_ = c.conn.SetReadDeadline(time.Now().Add(c.s.timeout))
		head, err := c.r.Peek(len(taken))
		c.s.Require().NoError(err)
		if string(head) != taken {
			c.Expect(domain.Frame(domain.Menu))
			return
		}
		c.s.Require().Less(attempt, 20, "%s stayed in use", c.name)
		c.Expect(taken)
		time.Sleep(50 * time.Millisecond)
	}
}

func (c *Client) Send(line string) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.s.timeout))
	_, err := io.WriteString(c.conn, line+"\n")
	c.s.Require().NoError(err)
	c.s.T().Logf("%s <- %q", c.name, line)
}

// Expect reads exactly the bytes of want, prompts included.
func (c *Client) Expect(want string) {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.s.timeout))
	got := make([]byte, len(want))
	_, err := io.ReadFull(c.r, got)
	c.s.Require().NoError(err, "%s waiting for %q", c.name, want)
	c.s.Require().Equal(want, string(got))
}

// WaitFor skips framed lines until display arrives.
func (c *Client) WaitFor(display string) {
	want := domain.Frame(display)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.s.timeout))
		line, err := c.r.ReadString('\n')
		c.s.Require().NoError(err, "%s waiting for %q", c.name, display)
		if line == want {
			c.s.T().Logf("%s -> %q", c.name, display)
			return
		}
	}
}

// ExpectClosed drains until the server hangs up.
func (c *Client) ExpectClosed() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.s.timeout))
	_, err := io.Copy(io.Discard, c.r)
	c.s.Require().NoError(err, "%s should have been disconnected", c.name)
}

// CreateRoom walks the create dialog and returns the announced code.
func (c *Client) CreateRoom(admin, public bool) domain.RoomCode {
	c.Send(domain.MenuCreate)
	c.Expect(domain.PromptAdmin)
	c.Send(yesNo(admin))
	c.Expect(domain.PromptPublic)
	c.Send(yesNo(public))

	_ = c.conn.SetReadDeadline(time.Now().Add(c.s.timeout))
	line, err := c.r.ReadString('\n')
	c.s.Require().NoError(err)
	prefix := domain.MessagePrefix + "Room Code: "
	c.s.Require().True(strings.HasPrefix(line, prefix), "unexpected line %q", line)
	return domain.RoomCode(strings.TrimPrefix(line, prefix)[:domain.RoomCodeLength])
}

func (c *Client) JoinRoom(code domain.RoomCode) {
	c.Send(domain.MenuJoin)
	c.Expect(domain.PromptRoomCode)
	c.Send(string(code))
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
