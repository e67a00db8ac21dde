package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTCP runs a dispatcher and a bound server on a loopback port and
// tears both down with the test.
func startTCP(t *testing.T, maxConnections int) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(maxConnections, nil)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		d.Run(ctx)
	}()

	srv := NewServer("127.0.0.1:0", d)
	require.NoError(t, srv.Listen())
	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-serveDone:
			assert.NoError(t, err)
		case <-time.After(testTimeout):
			t.Error("serve did not stop")
		}
		assert.NoError(t, srv.Shutdown(context.Background()))
		select {
		case <-runDone:
		case <-time.After(testTimeout):
			t.Error("dispatcher did not stop")
		}
	})
	return srv
}

func dialTCP(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return newTestClient(t, conn)
}

func TestServer_RoundTripOverTCP(t *testing.T) {
	srv := startTCP(t, 4)

	c := dialTCP(t, srv)
	c.expect("WELCOME|1")
	c.send("PING|7")
	c.expect("PONG|7")
	c.send("CREATE_GAME|tcp game")
	c.expect("CREATED_GAME|1")
	c.send("QUIT")
	c.expectEOF()
}

func TestServer_AddrNilBeforeListen(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewDispatcher(1, nil))
	assert.Nil(t, srv.Addr())
}

func TestServer_ListenRejectsBadAddress(t *testing.T) {
	srv := NewServer("127.0.0.1:999999", NewDispatcher(1, nil))
	assert.Error(t, srv.Listen())
}

// Serve binds on its own when Listen was never called.
func TestServer_ServeBindsLazily(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(1, nil)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		d.Run(ctx)
	}()

	srv := NewServer("127.0.0.1:0", d)
	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-serveDone:
			assert.NoError(t, err)
		case <-time.After(testTimeout):
			t.Error("serve did not stop")
		}
		<-runDone
	})

	require.Eventually(t, func() bool { return srv.Addr() != nil },
		testTimeout, 10*time.Millisecond)

	c := dialTCP(t, srv)
	c.expect("WELCOME|1")
}

func TestServer_ShutdownWaitsForSessions(t *testing.T) {
	srv := startTCP(t, 4)

	c := dialTCP(t, srv)
	c.expect("WELCOME|1")

	// One session is live, so a short deadline gives up on the wait.
	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.Shutdown(short), context.DeadlineExceeded)

	// Once the client hangs up the session drains and Shutdown completes.
	c.close()
	waitCtx, cancelWait := context.WithTimeout(context.Background(), testTimeout)
	defer cancelWait()
	assert.NoError(t, srv.Shutdown(waitCtx))
}
