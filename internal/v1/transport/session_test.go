package transport

import (
	"io"
	"strings"
	"testing"
	"time"
)

// Pipelined requests are answered in order, one reply per frame.
func TestSession_PipelinedRequests(t *testing.T) {
	ctx, d := newTestDispatcher(t, 4)
	c := dial(t, ctx, d)
	c.expect("WELCOME|1")

	c.send("PING|1\nPING|2\nPING|3")
	c.expect("PONG|1")
	c.expect("PONG|2")
	c.expect("PONG|3")
}

func TestSession_EOFBeforeAnyRequest(t *testing.T) {
	ctx, d := newTestDispatcher(t, 1)
	c1 := dial(t, ctx, d)
	c1.expect("WELCOME|1")
	c1.close()
	c1.waitClosed()

	// The seat is released even though the client never spoke, and the
	// departure is queued ahead of the next arrival.
	c2 := dial(t, ctx, d)
	c2.expect("WELCOME|2")
}

// A frame longer than the line cap ends the session instead of buffering
// without bound.
func TestSession_OversizedLineEndsSession(t *testing.T) {
	ctx, d := newTestDispatcher(t, 4)
	c := dial(t, ctx, d)
	c.expect("WELCOME|1")

	big := "SEND|1|" + strings.Repeat("x", maxLineBytes+1)
	_ = c.conn.SetWriteDeadline(time.Now().Add(testTimeout))
	// The write may fail partway once the server hangs up; that is the
	// point of the test.
	_, _ = io.WriteString(c.conn, big)

	c.expectEOF()
}

// The empty line is not a valid frame.
func TestSession_EmptyLineIsInvalid(t *testing.T) {
	ctx, d := newTestDispatcher(t, 4)
	c := dial(t, ctx, d)
	c.expect("WELCOME|1")

	c.send("")
	c.expect("ERROR|Invalid request")
	c.send("PING|1")
	c.expect("PONG|1")
}

// Fields keep leading and trailing spaces; the protocol does not trim.
func TestSession_PayloadSpacesPreserved(t *testing.T) {
	ctx, d := newTestDispatcher(t, 4)
	c := dial(t, ctx, d)
	c.expect("WELCOME|1")

	c.send("CREATE_GAME|  padded data  ")
	c.expect("CREATED_GAME|1")
	c.send("LIST_OPEN_GAMES")
	c.expect("OPEN_GAMES|1|  padded data  ")
}
