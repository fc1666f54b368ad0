package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"tchat/domain"
	"tchat/mocks"
	"tchat/runtime"
	"tchat/transport"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const ioTimeout = 2 * time.Second

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// fixture runs a real Listener on a loopback port.
type fixture struct {
	t        *testing.T
	sessions *runtime.SessionRegistry
	rooms    *runtime.RoomDirectory
	profiles *mocks.MockIProfileStore
	listener *Listener
}

func newFixture(t *testing.T, opts ...HandlerOption) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockIProfileStore(ctrl)
	profiles.EXPECT().RecordConnect(gomock.Any(), gomock.Any()).Return(domain.Profile{}, nil).AnyTimes()
	profiles.EXPECT().RecordDisconnect(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	return newFixtureWithProfiles(t, profiles, opts...)
}

func newFixtureWithProfiles(t *testing.T, profiles *mocks.MockIProfileStore, opts ...HandlerOption) *fixture {
	t.Helper()
	log := testLogger()
	sessions := runtime.NewSessionRegistry(log)
	rooms := runtime.NewRoomDirectory(log)
	broadcaster := runtime.NewBroadcaster(log, sessions, rooms)
	handler := NewHandler(log, sessions, rooms, broadcaster, profiles, opts...)
	listener := NewListener(log, "127.0.0.1:0", handler, transport.Options{WriteTimeout: ioTimeout})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	select {
	case <-listener.Ready():
	case err := <-done:
		t.Fatalf("listener failed: %v", err)
	}

	// Registered after gomock's own cleanup, so it runs first.
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("listener did not stop")
		}
	})

	return &fixture{t: t, sessions: sessions, rooms: rooms, profiles: profiles, listener: listener}
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (f *fixture) dial() *client {
	f.t.Helper()
	conn, err := net.Dial("tcp", f.listener.Addr().String())
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = conn.Close() })
	return &client{t: f.t, conn: conn, r: bufio.NewReader(conn)}
}

// login negotiates name and waits for the main menu.
func (f *fixture) login(name string) *client {
	f.t.Helper()
	c := f.dial()
	c.expect(domain.Frame(domain.PromptUsername))
	c.write(name)
	c.expect(domain.Frame(domain.Menu))
	return c
}

func (c *client) write(line string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

// expect reads exactly len(want) bytes. Used where no broadcast can interleave.
func (c *client) expect(want string) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	got := make([]byte, len(want))
	_, err := io.ReadFull(c.r, got)
	require.NoError(c.t, err, "waiting for %q", want)
	require.Equal(c.t, want, string(got))
}

func (c *client) readLine() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

// waitFor skips lines until the display line shows up.
func (c *client) waitFor(display string) {
	c.t.Helper()
	want := domain.MessagePrefix + display
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
		line, err := c.r.ReadString('\n')
		require.NoError(c.t, err, "waiting for %q", display)
		if strings.TrimSuffix(line, "\n") == want {
			return
		}
	}
}

// expectClosed drains until the server closes the connection.
func (c *client) expectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	_, err := io.Copy(io.Discard, c.r)
	require.NoError(c.t, err, "connection should have been closed by the server")
}

// create opens a room and returns its code.
func (c *client) create(admin, public bool) domain.RoomCode {
	c.t.Helper()
	c.write(domain.MenuCreate)
	c.expect(domain.PromptAdmin)
	c.write(answer(admin))
	c.expect(domain.PromptPublic)
	c.write(answer(public))

	line := c.readLine()
	prefix := domain.MessagePrefix + "Room Code: "
	require.True(c.t, strings.HasPrefix(line, prefix), "unexpected line %q", line)
	code := strings.TrimPrefix(line, prefix)[:domain.RoomCodeLength]
	require.Equal(c.t, domain.MessagePrefix+domain.RoomCodeLine(domain.RoomCode(code)), line)
	return domain.RoomCode(code)
}

func (c *client) join(code domain.RoomCode) {
	c.t.Helper()
	c.write(domain.MenuJoin)
	c.expect(domain.PromptRoomCode)
	c.write(string(code))
}

func answer(b bool) string {
	if b {
		return "Y"
	}
	return "n"
}

func (f *fixture) eventually(cond func() bool, msg string) {
	f.t.Helper()
	require.Eventually(f.t, cond, ioTimeout, 10*time.Millisecond, msg)
}
