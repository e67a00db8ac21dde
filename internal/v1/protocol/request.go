// Package protocol defines the line-oriented wire protocol spoken between
// clients and the lobby server: the request and message vocabulary, the
// parser for inbound frames, and the formatter for outbound frames.
//
// A frame is one UTF-8 line. Fields are separated by '|' and may not
// contain '|' or '\n' themselves; the first field is the verb.
package protocol

import (
	"strconv"
	"strings"
)

// UserID identifies a connected user. The server never issues zero.
type UserID uint32

// RoomID identifies an open room. The server never issues zero.
type RoomID uint32

// Request is one parsed client frame. Verb returns the wire verb that
// produced the request; it doubles as a low-cardinality metrics label.
type Request interface {
	Verb() string
}

// Client verbs.
const (
	verbListRooms  = "LIST_OPEN_GAMES"
	verbPing       = "PING"
	verbCreateRoom = "CREATE_GAME"
	verbSetOwner   = "SET_OWNER"
	verbAskJoin    = "JOIN_GAME"
	verbLeaveRoom  = "LEAVE_GAME"
	verbAcceptJoin = "ACCEPT_JOIN"
	verbRejectJoin = "REJECT_JOIN"
	verbSend       = "SEND"
	verbSendTo     = "SEND_TO"
	verbEchoFrom   = "ECHO_FROM"
	verbQuit       = "QUIT"
)

// ListRooms asks for the current set of open rooms.
type ListRooms struct{}

// Ping asks for a Pong echoing the same sequence number.
type Ping struct {
	Seq uint32
}

// CreateRoom opens a new room described by an opaque data field.
type CreateRoom struct {
	Data string
}

// SetOwner names a member to take over a room. The verb is recognised on
// the wire but has no effect; ownership transfer semantics are unsettled.
type SetOwner struct {
	Room RoomID
	User UserID
}

// AskJoinRoom requests entry to a room, with a greeting for its owner.
type AskJoinRoom struct {
	Room RoomID
	Msg  string
}

// AcceptJoinRoom admits a pending joiner. Owner only.
type AcceptJoinRoom struct {
	Room RoomID
	User UserID
}

// RejectJoinRoom turns a pending joiner away with a reason. Owner only.
type RejectJoinRoom struct {
	Room   RoomID
	User   UserID
	Reason string
}

// LeaveRoom withdraws the sender from a room. When the sender owns the
// room, the room closes.
type LeaveRoom struct {
	Room RoomID
}

// Send routes a payload through a room: members to the owner, the owner
// to every member.
type Send struct {
	Room    RoomID
	Payload string
}

// SendTo delivers a payload to a single member. Owner only.
type SendTo struct {
	Room    RoomID
	User    UserID
	Payload string
}

// EchoFrom broadcasts a payload to every member except the named one.
// Owner only.
type EchoFrom struct {
	Room    RoomID
	User    UserID
	Payload string
}

// Quit ends the connection. Sessions consume it locally.
type Quit struct{}

func (ListRooms) Verb() string      { return verbListRooms }
func (Ping) Verb() string           { return verbPing }
func (CreateRoom) Verb() string     { return verbCreateRoom }
func (SetOwner) Verb() string       { return verbSetOwner }
func (AskJoinRoom) Verb() string    { return verbAskJoin }
func (AcceptJoinRoom) Verb() string { return verbAcceptJoin }
func (RejectJoinRoom) Verb() string { return verbRejectJoin }
func (LeaveRoom) Verb() string      { return verbLeaveRoom }
func (Send) Verb() string           { return verbSend }
func (SendTo) Verb() string         { return verbSendTo }
func (EchoFrom) Verb() string       { return verbEchoFrom }
func (Quit) Verb() string           { return verbQuit }

// Parse decodes one client line. It returns ErrInvalidRequest when the
// verb is unknown, an integer field is not a base-10 unsigned 32-bit
// number, a field is missing, or extra fields trail the declared arity.
func Parse(line string) (Request, error) {
	parts := strings.Split(line, "|")
	verb, args := parts[0], parts[1:]

	switch verb {
	case verbListRooms:
		if len(args) != 0 {
			return nil, ErrInvalidRequest
		}
		return ListRooms{}, nil

	case verbPing:
		if len(args) != 1 {
			return nil, ErrInvalidRequest
		}
		seq, ok := parseU32(args[0])
		if !ok {
			return nil, ErrInvalidRequest
		}
		return Ping{Seq: seq}, nil

	case verbCreateRoom:
		if len(args) != 1 {
			return nil, ErrInvalidRequest
		}
		return CreateRoom{Data: args[0]}, nil

	case verbSetOwner:
		if len(args) != 2 {
			return nil, ErrInvalidRequest
		}
		room, ok1 := parseU32(args[0])
		user, ok2 := parseU32(args[1])
		if !ok1 || !ok2 {
			return nil, ErrInvalidRequest
		}
		return SetOwner{Room: RoomID(room), User: UserID(user)}, nil

	case verbAskJoin:
		if len(args) != 2 {
			return nil, ErrInvalidRequest
		}
		room, ok := parseU32(args[0])
		if !ok {
			return nil, ErrInvalidRequest
		}
		return AskJoinRoom{Room: RoomID(room), Msg: args[1]}, nil

	case verbLeaveRoom:
		if len(args) != 1 {
			return nil, ErrInvalidRequest
		}
		room, ok := parseU32(args[0])
		if !ok {
			return nil, ErrInvalidRequest
		}
		return LeaveRoom{Room: RoomID(room)}, nil

	case verbAcceptJoin:
		if len(args) != 2 {
			return nil, ErrInvalidRequest
		}
		room, ok1 := parseU32(args[0])
		user, ok2 := parseU32(args[1])
		if !ok1 || !ok2 {
			return nil, ErrInvalidRequest
		}
		return AcceptJoinRoom{Room: RoomID(room), User: UserID(user)}, nil

	case verbRejectJoin:
		if len(args) != 3 {
			return nil, ErrInvalidRequest
		}
		room, ok1 := parseU32(args[0])
		user, ok2 := parseU32(args[1])
		if !ok1 || !ok2 {
			return nil, ErrInvalidRequest
		}
		return RejectJoinRoom{Room: RoomID(room), User: UserID(user), Reason: args[2]}, nil

	case verbSend:
		if len(args) != 2 {
			return nil, ErrInvalidRequest
		}
		room, ok := parseU32(args[0])
		if !ok {
			return nil, ErrInvalidRequest
		}
		return Send{Room: RoomID(room), Payload: args[1]}, nil

	case verbSendTo:
		if len(args) != 3 {
			return nil, ErrInvalidRequest
		}
		room, ok1 := parseU32(args[0])
		user, ok2 := parseU32(args[1])
		if !ok1 || !ok2 {
			return nil, ErrInvalidRequest
		}
		return SendTo{Room: RoomID(room), User: UserID(user), Payload: args[2]}, nil

	case verbEchoFrom:
		if len(args) != 3 {
			return nil, ErrInvalidRequest
		}
		room, ok1 := parseU32(args[0])
		user, ok2 := parseU32(args[1])
		if !ok1 || !ok2 {
			return nil, ErrInvalidRequest
		}
		return EchoFrom{Room: RoomID(room), User: UserID(user), Payload: args[2]}, nil

	case verbQuit:
		if len(args) != 0 {
			return nil, ErrInvalidRequest
		}
		return Quit{}, nil

	default:
		return nil, ErrInvalidRequest
	}
}

// FormatRequest encodes a request as one wire line, without the trailing
// newline. It is the client-side counterpart of Parse.
func FormatRequest(r Request) string {
	switch r := r.(type) {
	case ListRooms:
		return verbListRooms
	case Ping:
		return join(verbPing, itoa(r.Seq))
	case CreateRoom:
		return join(verbCreateRoom, r.Data)
	case SetOwner:
		return join(verbSetOwner, itoa(uint32(r.Room)), itoa(uint32(r.User)))
	case AskJoinRoom:
		return join(verbAskJoin, itoa(uint32(r.Room)), r.Msg)
	case LeaveRoom:
		return join(verbLeaveRoom, itoa(uint32(r.Room)))
	case AcceptJoinRoom:
		return join(verbAcceptJoin, itoa(uint32(r.Room)), itoa(uint32(r.User)))
	case RejectJoinRoom:
		return join(verbRejectJoin, itoa(uint32(r.Room)), itoa(uint32(r.User)), r.Reason)
	case Send:
		return join(verbSend, itoa(uint32(r.Room)), r.Payload)
	case SendTo:
		return join(verbSendTo, itoa(uint32(r.Room)), itoa(uint32(r.User)), r.Payload)
	case EchoFrom:
		return join(verbEchoFrom, itoa(uint32(r.Room)), itoa(uint32(r.User)), r.Payload)
	case Quit:
		return verbQuit
	default:
		return ""
	}
}

func parseU32(s string) (uint32, bool) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func itoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func join(fields ...string) string {
	return strings.Join(fields, "|")
}
