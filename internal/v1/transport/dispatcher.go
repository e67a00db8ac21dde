// Package transport runs the TCP face of the lobby: a listener that
// accepts connections, one session per connection, and the dispatcher
// that serialises every session's events onto the single lobby state.
package transport

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/incognita-games/lobbyd/internal/v1/bus"
	"github.com/incognita-games/lobbyd/internal/v1/lobby"
	"github.com/incognita-games/lobbyd/internal/v1/logging"
	"github.com/incognita-games/lobbyd/internal/v1/metrics"
	"github.com/incognita-games/lobbyd/internal/v1/protocol"
)

const (
	// outboundBuffer is the per-session queue of messages waiting for the
	// socket. When it fills, further messages for that session are
	// dropped rather than stalling the dispatcher.
	outboundBuffer = 256
	// eventBuffer bounds the dispatcher inbox. Sessions block here when
	// the dispatcher falls behind, which throttles their inbound reads.
	eventBuffer = 1024
)

// event is one unit of work for the dispatcher.
type event interface{ isEvent() }

// connected asks for a seat. The reply carries the issued id and the
// session's outbound queue, or ok=false when the server is full.
type connected struct {
	reply chan joinResult
}

type joinResult struct {
	user protocol.UserID
	out  <-chan protocol.Message
	ok   bool
}

// request is one parsed frame from a joined session.
type request struct {
	user protocol.UserID
	req  protocol.Request
}

// disconnected reports that a joined session is gone, whatever the cause.
// It is always the session's last event.
type disconnected struct {
	user protocol.UserID
}

func (connected) isEvent()    {}
func (request) isEvent()      {}
func (disconnected) isEvent() {}

// Dispatcher owns the lobby state. It consumes session events one at a
// time, so handling needs no locks and every session observes the lobby
// in the order events left the inbox.
type Dispatcher struct {
	state   *lobby.State
	outs    map[protocol.UserID]chan protocol.Message
	events  chan event
	done    chan struct{}
	bus     *bus.Service
	tracer  trace.Tracer
	running atomic.Bool
}

// NewDispatcher builds a dispatcher seating at most maxConnections
// concurrent users. The bus may be nil.
func NewDispatcher(maxConnections int, b *bus.Service) *Dispatcher {
	return &Dispatcher{
		state:  lobby.NewState(maxConnections),
		outs:   make(map[protocol.UserID]chan protocol.Message),
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
		bus:    b,
		tracer: otel.Tracer("lobbyd/transport"),
	}
}

// Running reports whether the dispatcher loop is consuming events. Health
// checks use it as the readiness signal.
func (d *Dispatcher) Running() bool { return d.running.Load() }

// Run consumes events until ctx is cancelled, then closes every session's
// outbound queue so attached sessions hang up. Call it exactly once.
func (d *Dispatcher) Run(ctx context.Context) {
	d.running.Store(true)
	defer d.running.Store(false)

	logging.Info(ctx, "dispatcher running")
	for {
		select {
		case <-ctx.Done():
			close(d.done)
			for id, out := range d.outs {
				delete(d.outs, id)
				close(out)
			}
			logging.Info(ctx, "dispatcher stopped")
			return
		case ev := <-d.events:
			d.handle(ctx, ev)
		}
	}
}

// enqueue submits an event unless the dispatcher has stopped or the
// caller's context ended first.
func (d *Dispatcher) enqueue(ctx context.Context, ev event) bool {
	select {
	case d.events <- ev:
		return true
	case <-d.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case connected:
		d.handleConnected(ctx, ev)
	case request:
		d.handleRequest(ctx, ev)
	case disconnected:
		d.handleDisconnected(ctx, ev)
	}
}

func (d *Dispatcher) handleConnected(ctx context.Context, ev connected) {
	id, ok := d.state.AddUser()
	if !ok {
		metrics.ConnectionsRejected.Inc()
		logging.Warn(ctx, "connection refused: server full",
			zap.Int("users", d.state.UserCount()))
		ev.reply <- joinResult{}
		return
	}

	out := make(chan protocol.Message, outboundBuffer)
	d.outs[id] = out
	ev.reply <- joinResult{user: id, out: out, ok: true}

	_ = d.bus.Publish(ctx, bus.Event{Kind: bus.EventUserConnected, User: uint32(id)})
}

func (d *Dispatcher) handleRequest(ctx context.Context, ev request) {
	verb := ev.req.Verb()
	roomsBefore := d.state.RoomCount()

	ctx, span := d.tracer.Start(ctx, "lobby.request", trace.WithAttributes(
		attribute.String("verb", verb),
		attribute.Int64("user", int64(ev.user)),
	))
	defer span.End()

	start := time.Now()
	res := d.state.HandleRequest(ev.user, ev.req)
	metrics.RequestDuration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
	metrics.RequestsTotal.WithLabelValues(verb).Inc()

	if msg, isErr := res.Returns.(protocol.ErrorMessage); isErr {
		metrics.ProtocolErrors.WithLabelValues(msg.Kind.Error()).Inc()
		span.SetStatus(codes.Error, msg.Kind.Error())
	}

	if res.Returns != nil {
		d.deliver(ctx, ev.user, res.Returns)
	}
	for _, send := range res.Sends {
		d.deliver(ctx, send.To, send.Msg)
	}

	d.publishRoomChanges(ctx, ev, res, roomsBefore)
	metrics.OpenRooms.Set(float64(d.state.RoomCount()))
}

// publishRoomChanges reports room lifecycle to the bus. Only CREATE_GAME
// opens a room and only an owner's LEAVE_GAME closes one mid-request, so
// a count delta identifies the change.
func (d *Dispatcher) publishRoomChanges(ctx context.Context, ev request, res lobby.Response, roomsBefore int) {
	roomsAfter := d.state.RoomCount()
	switch {
	case roomsAfter > roomsBefore:
		if created, ok := res.Returns.(protocol.RoomCreated); ok {
			_ = d.bus.Publish(ctx, bus.Event{
				Kind: bus.EventRoomCreated,
				User: uint32(ev.user),
				Room: uint32(created.Room),
			})
		}
	case roomsAfter < roomsBefore:
		if leave, ok := ev.req.(protocol.LeaveRoom); ok {
			_ = d.bus.Publish(ctx, bus.Event{
				Kind: bus.EventRoomClosed,
				User: uint32(ev.user),
				Room: uint32(leave.Room),
			})
		}
	}
}

func (d *Dispatcher) handleDisconnected(ctx context.Context, ev disconnected) {
	ownedRoom, owned := d.state.OwnedRoom(ev.user)

	res, err := d.state.RemoveUser(ev.user)
	if err != nil {
		// A disconnect for an id the lobby does not know. Nothing to
		// undo; log it and keep serving.
		logging.Warn(ctx, "disconnect for unknown user",
			zap.Uint32("user", uint32(ev.user)), zap.Error(err))
	} else {
		// Deliver the fallout (PLAYER_LEFT, GAME_OVER) before the
		// leaver's queue is retired.
		for _, send := range res.Sends {
			d.deliver(ctx, send.To, send.Msg)
		}
		if owned {
			_ = d.bus.Publish(ctx, bus.Event{
				Kind: bus.EventRoomClosed,
				User: uint32(ev.user),
				Room: uint32(ownedRoom),
			})
		}
		_ = d.bus.Publish(ctx, bus.Event{Kind: bus.EventUserDisconnected, User: uint32(ev.user)})
	}

	if out, ok := d.outs[ev.user]; ok {
		delete(d.outs, ev.user)
		close(out)
	}
	metrics.OpenRooms.Set(float64(d.state.RoomCount()))
}

// deliver queues one message for a session without ever blocking the
// dispatcher. A full queue drops the message; the lobby state and the
// target session carry on.
func (d *Dispatcher) deliver(ctx context.Context, user protocol.UserID, msg protocol.Message) {
	out, ok := d.outs[user]
	if !ok {
		return
	}
	select {
	case out <- msg:
	default:
		metrics.OutboundDropped.Inc()
		logging.Warn(ctx, "outbound queue full, dropping message",
			zap.Uint32("user", uint32(user)),
			zap.String("message", logging.TruncateFrame(msg.Format())))
	}
}
