package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

// newTestDispatcher starts a dispatcher and tears it down with the test.
func newTestDispatcher(t *testing.T, maxConnections int) (context.Context, *Dispatcher) {
	t.Helper()
	d := NewDispatcher(maxConnections, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx, d
}

// testClient drives one side of a connection like a real client would:
// line-based sends and receives, under deadlines so a stuck exchange fails
// the test instead of hanging it.
type testClient struct {
	t    *testing.T
	conn net.Conn
	sc   *bufio.Scanner

	sessionDone chan struct{} // closed when the pipe's server session returns; nil over TCP
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	return &testClient{t: t, conn: conn, sc: bufio.NewScanner(conn)}
}

// dial connects a testClient to the dispatcher over an in-memory pipe and
// runs the server side as a live session.
func dial(t *testing.T, ctx context.Context, d *Dispatcher) *testClient {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		d.HandleConnection(ctx, serverSide)
	}()
	t.Cleanup(func() {
		_ = clientSide.Close()
		<-sessionDone
	})
	c := newTestClient(t, clientSide)
	c.sessionDone = sessionDone
	return c
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(testTimeout))
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func (c *testClient) recv() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	require.True(c.t, c.sc.Scan(), "expected a frame, connection ended: %v", c.sc.Err())
	return c.sc.Text()
}

func (c *testClient) expect(frame string) {
	c.t.Helper()
	assert.Equal(c.t, frame, c.recv())
}

func (c *testClient) expectEOF() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	assert.False(c.t, c.sc.Scan(), "expected connection end, got a frame")
}

// close hangs up abruptly, as a crashing client would.
func (c *testClient) close() {
	_ = c.conn.Close()
}

// waitClosed blocks until the server side of the pipe has checked out of
// the dispatcher. A dial that follows cannot race the seat release.
func (c *testClient) waitClosed() {
	<-c.sessionDone
}
