package transport

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"tchat/errors"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func newPipe(t *testing.T, opts Options) (*LineConn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	conn := NewLineConn(server, opts, testLogger())
	t.Cleanup(func() {
		_ = conn.Close()
		_ = client.Close()
	})
	return conn, client
}

func TestLineConn_Send_Frames_Display_Lines(t *testing.T) {
	req := require.New(t)
	conn, client := newPipe(t, Options{})
	reader := bufio.NewReader(client)

	// When
	req.NoError(conn.Send("hello"))
	req.NoError(conn.Prompt("Admin? Y/N: "))

	// Then
	line, err := reader.ReadString('\n')
	req.NoError(err)
	req.Equal("MSG:hello\n", line)

	prompt := make([]byte, len("Admin? Y/N: "))
	_, err = io.ReadFull(reader, prompt)
	req.NoError(err)
	req.Equal("Admin? Y/N: ", string(prompt))
}

func TestLineConn_ReadLine_Strips_Line_Endings(t *testing.T) {
	req := require.New(t)
	conn, client := newPipe(t, Options{})

	go func() {
		_, _ = client.Write([]byte("alice\r\nhi there\n"))
	}()

	first, err := conn.ReadLine()
	req.NoError(err)
	req.Equal("alice", first)

	second, err := conn.ReadLine()
	req.NoError(err)
	req.Equal("hi there", second)
}

func TestLineConn_ReadLine_Returns_EOF_When_Client_Leaves(t *testing.T) {
	req := require.New(t)
	conn, client := newPipe(t, Options{})

	req.NoError(client.Close())

	_, err := conn.ReadLine()
	req.ErrorIs(err, io.EOF)
}

func TestLineConn_Close_Unblocks_Pending_Read(t *testing.T) {
	req := require.New(t)
	conn, client := newPipe(t, Options{})
	go func() { _, _ = io.Copy(io.Discard, client) }()

	errs := make(chan error, 1)
	go func() {
		_, err := conn.ReadLine()
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	req.NoError(conn.Close())

	select {
	case err := <-errs:
		req.ErrorIs(err, errors.ErrPeerDisconnected)
	case <-time.After(time.Second):
		req.Fail("read still blocked after close")
	}
}

func TestLineConn_Close_Flushes_Queued_Lines_First(t *testing.T) {
	req := require.New(t)
	conn, client := newPipe(t, Options{})

	// Given
	req.NoError(conn.Send("You were kicked"))
	req.NoError(conn.Close())

	// Then
	data, err := io.ReadAll(client)
	req.NoError(err)
	req.Equal("MSG:You were kicked\n", string(data))

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		req.Fail("write pump did not stop")
	}
}

func TestLineConn_Send_After_Close_Fails(t *testing.T) {
	req := require.New(t)
	conn, client := newPipe(t, Options{})
	go func() { _, _ = io.Copy(io.Discard, client) }()

	req.NoError(conn.Close())
	req.NoError(conn.Close())

	req.ErrorIs(conn.Send("late"), errors.ErrPeerDisconnected)
	_, err := conn.ReadLine()
	req.ErrorIs(err, errors.ErrPeerDisconnected)
}

func TestLineConn_Slow_Consumer_Is_Disconnected(t *testing.T) {
	req := require.New(t)
	conn, _ := newPipe(t, Options{BufferSize: 1, WriteTimeout: 50 * time.Millisecond})

	// When the client never reads
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = conn.Send("flood")
	}

	// Then
	req.ErrorIs(err, errors.ErrSlowConsumer)
	req.ErrorIs(conn.Send("again"), errors.ErrPeerDisconnected)

	// And the write pump gives up on the stuck write and releases the socket
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		req.Fail("write pump still blocked on a peer that never reads")
	}
}

func TestOptions_Sanitize_Always_Bounds_Writes(t *testing.T) {
	req := require.New(t)

	opts := Options{}.sanitize()

	req.Equal(DefaultWriteTimeout, opts.WriteTimeout)
	req.Equal(DefaultBufferSize, opts.BufferSize)
	req.Equal(time.Duration(0), opts.IdleTimeout)
	req.Equal(time.Second, Options{WriteTimeout: time.Second}.sanitize().WriteTimeout)
}

func TestLineConn_Oversized_Line_Is_A_Transport_Error(t *testing.T) {
	req := require.New(t)
	conn, client := newPipe(t, Options{MaxLineSize: 16})

	go func() {
		_, _ = client.Write([]byte(strings.Repeat("x", 64) + "\n"))
	}()

	_, err := conn.ReadLine()
	req.ErrorIs(err, errors.ErrTransport)
}

func TestLineConn_Idle_Timeout_Ends_Read(t *testing.T) {
	req := require.New(t)
	conn, _ := newPipe(t, Options{IdleTimeout: 30 * time.Millisecond})

	_, err := conn.ReadLine()
	req.ErrorIs(err, errors.ErrTransport)
}
