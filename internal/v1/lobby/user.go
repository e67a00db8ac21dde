package lobby

import (
	"strconv"

	"github.com/incognita-games/lobbyd/internal/v1/protocol"
)

// UserID and RoomID are shared with the wire layer so the core and the
// protocol never disagree about identifier width.
type (
	UserID = protocol.UserID
	RoomID = protocol.RoomID
)

type stateKind uint8

const (
	stateNowhere stateKind = iota
	stateRoomOwner
	stateInRoom
	stateRequestedJoin
)

// UserState is where a user currently stands in the lobby: nowhere, owning
// a room, a member of a room, or waiting on a join request. Values are
// comparable; construct them with Nowhere, RoomOwner, InRoom and
// RequestedJoin.
type UserState struct {
	kind stateKind
	room RoomID
}

// Nowhere is the initial state of every user.
func Nowhere() UserState { return UserState{} }

// RoomOwner marks a user as the owner of room r.
func RoomOwner(r RoomID) UserState { return UserState{kind: stateRoomOwner, room: r} }

// InRoom marks a user as an accepted member of room r.
func InRoom(r RoomID) UserState { return UserState{kind: stateInRoom, room: r} }

// RequestedJoin marks a user as waiting for admission to room r.
func RequestedJoin(r RoomID) UserState { return UserState{kind: stateRequestedJoin, room: r} }

func (s UserState) String() string {
	room := strconv.FormatUint(uint64(s.room), 10)
	switch s.kind {
	case stateRoomOwner:
		return "RoomOwner(" + room + ")"
	case stateInRoom:
		return "InRoom(" + room + ")"
	case stateRequestedJoin:
		return "RequestedJoin(" + room + ")"
	default:
		return "Nowhere"
	}
}

// User is one connected client.
type User struct {
	ID    UserID
	State UserState
}

func newUser(id UserID) *User {
	return &User{ID: id, State: Nowhere()}
}

// expectNowhere guards operations that demand a user with no room ties.
func (u *User) expectNowhere() error {
	switch u.State.kind {
	case stateRoomOwner, stateInRoom:
		return protocol.ErrAlreadyInARoom
	case stateRequestedJoin:
		return protocol.ErrAlreadyRequestedJoin
	}
	return nil
}

// createRoom builds a room owned by u. Only a user that is nowhere may
// create one.
func (u *User) createRoom(roomID RoomID, data string) (*Room, error) {
	if err := u.expectNowhere(); err != nil {
		return nil, err
	}
	room := newRoom(roomID, u.ID, data)
	u.State = RoomOwner(roomID)
	return room, nil
}

// requestJoin files a join request for u in the room. Only a user that is
// nowhere may ask to join.
func (u *User) requestJoin(room *Room) error {
	if err := u.expectNowhere(); err != nil {
		return err
	}
	u.State = RequestedJoin(room.ID)
	room.JoinRequests = append(room.JoinRequests, u.ID)
	return nil
}

// leaveRoom withdraws u from the room, whether member or pending joiner.
// Room owners cannot leave this way; closing their room is handled above
// this level.
func (u *User) leaveRoom(room *Room) error {
	switch u.State.kind {
	case stateRoomOwner:
		return protocol.ErrIsRoomOwner
	case stateInRoom:
		if u.State.room != room.ID {
			return protocol.ErrNotInThatRoom
		}
		if err := room.removeMember(u.ID); err != nil {
			return err
		}
		u.State = Nowhere()
		return nil
	case stateRequestedJoin:
		if u.State.room != room.ID {
			return protocol.ErrNotInThatRoom
		}
		return room.cancelJoinRequest(u)
	default:
		return protocol.ErrNotInThatRoom
	}
}
