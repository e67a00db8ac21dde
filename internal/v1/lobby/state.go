// Package lobby implements the session core of the server: the single-owner
// state machine that holds every connected user and open room, and turns one
// parsed request into one Response.
//
// A State performs no I/O, owns no locks and spawns no goroutines. Exactly
// one dispatcher goroutine may touch it; that serialisation is what makes
// every mutation race-free by construction. Users and rooms live in two
// independent maps keyed by numeric id, and all cross-references are ids
// resolved through the owning map, never pointers.
package lobby

import (
	"slices"

	"github.com/incognita-games/lobbyd/internal/v1/protocol"
)

// State holds all users and rooms plus the identifier allocators.
type State struct {
	maxConnections int

	lastUserID UserID
	users      map[UserID]*User

	lastRoomID RoomID
	rooms      map[RoomID]*Room

	// roomOrder tracks creation order; Go map iteration is randomised and
	// listings and fan-outs must be deterministic for a given history.
	roomOrder []RoomID
}

// NewState returns an empty state that will admit at most maxConnections
// concurrent users.
func NewState(maxConnections int) *State {
	return &State{
		maxConnections: maxConnections,
		users:          make(map[UserID]*User),
		rooms:          make(map[RoomID]*Room),
	}
}

// nextID scans forward from the last issued identifier, wrapping at the
// 32-bit boundary, until it finds one that is not live. Zero is reserved as
// "never issued" and skipped. The caller guarantees the map is not full.
func nextID[K ~uint32, V any](last K, live map[K]V) K {
	id := last
	for {
		id++
		if id == 0 {
			continue
		}
		if _, ok := live[id]; !ok {
			return id
		}
	}
}

// UserCount returns the number of connected users.
func (s *State) UserCount() int { return len(s.users) }

// RoomCount returns the number of open rooms.
func (s *State) RoomCount() int { return len(s.rooms) }

// OwnedRoom reports the room the user currently owns, if any. Callers use
// it to attribute the room closure a disconnect is about to cause.
func (s *State) OwnedRoom(userID UserID) (RoomID, bool) {
	u, ok := s.users[userID]
	if !ok || u.State.kind != stateRoomOwner {
		return 0, false
	}
	return u.State.room, true
}

// AddUser allocates a slot for a new connection. It reports false when the
// server is at capacity; otherwise it returns a fresh UserID never equal to
// any live one.
func (s *State) AddUser() (UserID, bool) {
	if len(s.users) >= s.maxConnections {
		return 0, false
	}
	id := nextID(s.lastUserID, s.users)
	s.users[id] = newUser(id)
	s.lastUserID = id
	return id, true
}

// RemoveUser destroys a user record at disconnect time and unwinds whatever
// the user was doing: owners take their room down with them, members and
// pending joiners are struck from the room and its owner is told.
func (s *State) RemoveUser(userID UserID) (Response, error) {
	user, ok := s.users[userID]
	if !ok {
		return Response{}, protocol.ErrNoSuchUser
	}
	delete(s.users, userID)

	switch user.State.kind {
	case stateRoomOwner:
		return s.closeRoom(user.State.room)
	case stateInRoom:
		room, ok := s.rooms[user.State.room]
		if !ok {
			return Response{}, protocol.ErrNoSuchRoom
		}
		if err := room.removeMember(userID); err != nil {
			return Response{}, err
		}
		return sendsTo(room.OwnerID, protocol.PlayerLeft{Room: room.ID, User: userID}), nil
	case stateRequestedJoin:
		room, ok := s.rooms[user.State.room]
		if !ok {
			return Response{}, protocol.ErrNoSuchRoom
		}
		if err := room.cancelJoinRequest(user); err != nil {
			return Response{}, err
		}
		return sendsTo(room.OwnerID, protocol.PlayerLeft{Room: room.ID, User: userID}), nil
	default:
		return Response{}, nil
	}
}

// HandleRequest applies one parsed request for userID. Protocol failures
// never escape: they come back as an ERROR message addressed to the
// requester.
func (s *State) HandleRequest(userID UserID, req protocol.Request) Response {
	switch req := req.(type) {
	case protocol.ListRooms:
		return s.listRooms()
	case protocol.Ping:
		return returns(protocol.Pong{Seq: req.Seq})
	case protocol.CreateRoom:
		return respond(s.createRoom(userID, req.Data))
	case protocol.AskJoinRoom:
		return respond(s.askJoin(userID, req.Room, req.Msg))
	case protocol.AcceptJoinRoom:
		return respond(s.acceptJoin(userID, req.Room, req.User))
	case protocol.RejectJoinRoom:
		return respond(s.rejectJoin(userID, req.Room, req.User, req.Reason))
	case protocol.LeaveRoom:
		return respond(s.leaveRoom(userID, req.Room))
	case protocol.Send:
		return respond(s.send(userID, req.Room, req.Payload))
	case protocol.SendTo:
		return respond(s.sendTo(userID, req.Room, req.User, req.Payload))
	case protocol.EchoFrom:
		return respond(s.echoFrom(userID, req.Room, req.User, req.Payload))
	default:
		// Quit is consumed by sessions before it gets here, and SET_OWNER
		// is parsed but deliberately has no core behaviour yet. Both fall
		// through to an empty response.
		return Response{}
	}
}

func (s *State) user(userID UserID) (*User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, protocol.ErrNoSuchUser
	}
	return user, nil
}

func (s *State) room(roomID RoomID) (*Room, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, protocol.ErrNoSuchRoom
	}
	return room, nil
}

// userRoom resolves a user and a room together. The user is checked first;
// the distinction is observable through which error reaches the client.
func (s *State) userRoom(userID UserID, roomID RoomID) (*User, *Room, error) {
	user, err := s.user(userID)
	if err != nil {
		return nil, nil, err
	}
	room, err := s.room(roomID)
	if err != nil {
		return nil, nil, err
	}
	return user, room, nil
}

func (s *State) listRooms() Response {
	rooms := make([]protocol.RoomSummary, 0, len(s.roomOrder))
	for _, id := range s.roomOrder {
		rooms = append(rooms, protocol.RoomSummary{ID: id, Data: s.rooms[id].Data})
	}
	return returns(protocol.RoomList{Rooms: rooms})
}

func (s *State) createRoom(userID UserID, data string) (Response, error) {
	roomID := nextID(s.lastRoomID, s.rooms)
	user, err := s.user(userID)
	if err != nil {
		return Response{}, err
	}
	room, err := user.createRoom(roomID, data)
	if err != nil {
		return Response{}, err
	}
	s.rooms[roomID] = room
	s.roomOrder = append(s.roomOrder, roomID)
	s.lastRoomID = roomID
	return returns(protocol.RoomCreated{Room: roomID}), nil
}

func (s *State) askJoin(userID UserID, roomID RoomID, msg string) (Response, error) {
	user, room, err := s.userRoom(userID, roomID)
	if err != nil {
		return Response{}, err
	}
	if err := user.requestJoin(room); err != nil {
		return Response{}, err
	}
	return sendsTo(room.OwnerID, protocol.JoinRequested{Room: roomID, User: userID, Msg: msg}), nil
}

func (s *State) acceptJoin(userID UserID, roomID RoomID, otherID UserID) (Response, error) {
	other, room, err := s.userRoom(otherID, roomID)
	if err != nil {
		return Response{}, err
	}
	if err := room.expectOwner(userID); err != nil {
		return Response{}, err
	}
	if err := room.acceptJoinRequest(other); err != nil {
		return Response{}, err
	}
	return sendsTo(otherID, protocol.RoomJoined{Room: roomID}), nil
}

func (s *State) rejectJoin(userID UserID, roomID RoomID, otherID UserID, reason string) (Response, error) {
	other, room, err := s.userRoom(otherID, roomID)
	if err != nil {
		return Response{}, err
	}
	if err := room.expectOwner(userID); err != nil {
		return Response{}, err
	}
	if err := room.cancelJoinRequest(other); err != nil {
		return Response{}, err
	}
	return sendsTo(otherID, protocol.RoomRejected{Room: roomID, Reason: reason}), nil
}

func (s *State) leaveRoom(userID UserID, roomID RoomID) (Response, error) {
	user, room, err := s.userRoom(userID, roomID)
	if err != nil {
		return Response{}, err
	}
	if room.OwnerID == userID {
		return s.closeRoom(roomID)
	}
	if err := user.leaveRoom(room); err != nil {
		return Response{}, err
	}
	return sendsTo(room.OwnerID, protocol.PlayerLeft{Room: roomID, User: userID}), nil
}

// closeRoom removes the room, resets everyone it held to Nowhere and
// announces the closure to every member and pending joiner. The owner gets
// no message: closure only ever happens on the owner's way out.
func (s *State) closeRoom(roomID RoomID) (Response, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return Response{}, protocol.ErrNoSuchRoom
	}
	delete(s.rooms, roomID)
	if i := slices.Index(s.roomOrder, roomID); i >= 0 {
		s.roomOrder = slices.Delete(s.roomOrder, i, i+1)
	}

	if owner, ok := s.users[room.OwnerID]; ok {
		owner.State = Nowhere()
	}

	sends := make([]Addressed, 0, len(room.Members)+len(room.JoinRequests))
	for _, userID := range slices.Concat(room.Members, room.JoinRequests) {
		user, err := s.user(userID)
		if err != nil {
			return Response{}, err
		}
		user.State = Nowhere()
		sends = append(sends, Addressed{To: userID, Msg: protocol.RoomClosed{Room: roomID}})
	}
	return Response{Sends: sends}, nil
}

func (s *State) send(fromID UserID, roomID RoomID, payload string) (Response, error) {
	room, err := s.room(roomID)
	if err != nil {
		return Response{}, err
	}
	// Members route to the owner; anyone who is not the owner counts as a
	// member for routing purposes, the owner decides what to ignore.
	if fromID != room.OwnerID {
		return sendsTo(room.OwnerID, protocol.ReceivedFrom{Room: roomID, User: fromID, Payload: payload}), nil
	}
	sends := make([]Addressed, 0, len(room.Members))
	for _, memberID := range room.Members {
		sends = append(sends, Addressed{To: memberID, Msg: protocol.ReceivedBroadcast{Room: roomID, Payload: payload}})
	}
	return Response{Sends: sends}, nil
}

func (s *State) sendTo(fromID UserID, roomID RoomID, toID UserID, payload string) (Response, error) {
	room, err := s.room(roomID)
	if err != nil {
		return Response{}, err
	}
	if err := room.expectOwner(fromID); err != nil {
		return Response{}, err
	}
	if err := room.expectMember(toID); err != nil {
		return Response{}, err
	}
	return sendsTo(toID, protocol.ReceivedIndividual{Room: roomID, Payload: payload}), nil
}

func (s *State) echoFrom(userID UserID, roomID RoomID, fromID UserID, payload string) (Response, error) {
	room, err := s.room(roomID)
	if err != nil {
		return Response{}, err
	}
	if err := room.expectOwner(userID); err != nil {
		return Response{}, err
	}
	if err := room.expectMember(fromID); err != nil {
		return Response{}, err
	}
	sends := make([]Addressed, 0, len(room.Members)-1)
	for _, memberID := range room.Members {
		if memberID == fromID {
			continue
		}
		sends = append(sends, Addressed{To: memberID, Msg: protocol.ReceivedBroadcast{Room: roomID, Payload: payload}})
	}
	return Response{Sends: sends}, nil
}
