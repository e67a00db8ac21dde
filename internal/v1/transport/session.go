package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/incognita-games/lobbyd/internal/v1/logging"
	"github.com/incognita-games/lobbyd/internal/v1/metrics"
	"github.com/incognita-games/lobbyd/internal/v1/protocol"
)

const (
	// writeWait bounds one frame write. A peer that stops draining its
	// socket costs at most this long per frame before the session ends.
	writeWait = 10 * time.Second
	// maxLineBytes caps one inbound frame. Longer lines end the session.
	maxLineBytes = 1 << 20
)

// HandleConnection runs one client session to completion: seat request,
// WELCOME, then the read/write loop. It is the only writer to conn, which
// keeps dispatcher fan-out and session-local error frames from
// interleaving mid-line. It returns when the client hangs up or sends
// QUIT, the server is full, or ctx ends.
func (d *Dispatcher) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ctx = context.WithValue(ctx, logging.CorrelationIDKey, uuid.NewString())

	reply := make(chan joinResult, 1)
	if !d.enqueue(ctx, connected{reply: reply}) {
		return
	}
	var seat joinResult
	select {
	case seat = <-reply:
	case <-ctx.Done():
		return
	}

	if !seat.ok {
		// One parting ERROR frame, then hang up.
		_ = writeLine(conn, protocol.ErrorMessage{Kind: protocol.ErrServerFull})
		return
	}

	user := seat.user
	ctx = context.WithValue(ctx, logging.UserIDKey, uint32(user))
	metrics.IncConnection()
	defer metrics.DecConnection()

	logging.Info(ctx, "client connected", zap.String("remote", conn.RemoteAddr().String()))
	defer logging.Info(ctx, "client disconnected")

	// The reader goroutine is the only reader of conn; it stops on read
	// error or once this session stops listening.
	lines := make(chan string)
	listening := make(chan struct{})
	defer close(listening)
	go readLines(ctx, conn, lines, listening)

	// Always the session's last word to the dispatcher: it fans out the
	// departure and retires this user's queue. WithoutCancel so a
	// cancelled session still checks out while the dispatcher lives.
	defer d.enqueue(context.WithoutCancel(ctx), disconnected{user: user})

	if err := writeLine(conn, protocol.Welcome{User: user}); err != nil {
		logging.Warn(ctx, "write failed", zap.Error(err))
		return
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			req, err := protocol.Parse(line)
			if err != nil {
				metrics.ProtocolErrors.WithLabelValues(protocol.ErrInvalidRequest.Error()).Inc()
				logging.GetLogger().Debug("unparseable frame",
					zap.Uint32("user", uint32(user)),
					zap.String("line", logging.TruncateFrame(line)))
				if err := writeLine(conn, protocol.ErrorMessage{Kind: protocol.ErrInvalidRequest}); err != nil {
					logging.Warn(ctx, "write failed", zap.Error(err))
					return
				}
				continue
			}
			if _, isQuit := req.(protocol.Quit); isQuit {
				return
			}
			if !d.enqueue(ctx, request{user: user, req: req}) {
				return
			}
		case msg, ok := <-seat.out:
			if !ok {
				// Dispatcher shut down; nothing more will come.
				return
			}
			if err := writeLine(conn, msg); err != nil {
				logging.Warn(ctx, "write failed", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLines pumps newline-delimited frames from conn until read error,
// EOF or the session stops listening.
func readLines(ctx context.Context, conn net.Conn, lines chan<- string, listening <-chan struct{}) {
	defer close(lines)
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-listening:
			return
		}
	}
	if err := sc.Err(); err != nil {
		logging.Warn(ctx, "read failed", zap.Error(err))
	}
}

// writeLine writes one frame and its newline under writeWait.
func writeLine(conn net.Conn, msg protocol.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := io.WriteString(conn, msg.Format()+"\n")
	return err
}
