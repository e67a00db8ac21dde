package lobby

import (
	"fmt"

	"k8s.io/utils/set"
)

// Validate checks the structural invariants that must hold between every
// pair of requests: user states agree with room membership, owners stay out
// of their own member and join-request lists, the two lists never overlap,
// all cross-references resolve, and the connection cap is respected. It
// exists for tests and debugging; request handling never needs it.
func (s *State) Validate() error {
	if len(s.users) > s.maxConnections {
		return fmt.Errorf("%d users connected, cap is %d", len(s.users), s.maxConnections)
	}

	if len(s.roomOrder) != len(s.rooms) {
		return fmt.Errorf("room order tracks %d rooms, map holds %d", len(s.roomOrder), len(s.rooms))
	}
	ordered := set.New(s.roomOrder...)
	for id := range s.rooms {
		if !ordered.Has(id) {
			return fmt.Errorf("room %d missing from creation order", id)
		}
	}

	// Where each user is mentioned, derived from the rooms themselves.
	owners := map[UserID]RoomID{}
	members := map[UserID]RoomID{}
	requesters := map[UserID]RoomID{}
	for id, room := range s.rooms {
		if room.ID != id {
			return fmt.Errorf("room %d stored under key %d", room.ID, id)
		}
		if _, ok := s.users[room.OwnerID]; !ok {
			return fmt.Errorf("room %d owned by unknown user %d", id, room.OwnerID)
		}
		if other, dup := owners[room.OwnerID]; dup {
			return fmt.Errorf("user %d owns rooms %d and %d", room.OwnerID, other, id)
		}
		owners[room.OwnerID] = id

		memberSet := set.New(room.Members...)
		requestSet := set.New(room.JoinRequests...)
		if memberSet.Len() != len(room.Members) {
			return fmt.Errorf("room %d lists a member twice", id)
		}
		if requestSet.Len() != len(room.JoinRequests) {
			return fmt.Errorf("room %d lists a join request twice", id)
		}
		if overlap := memberSet.Intersection(requestSet); overlap.Len() > 0 {
			return fmt.Errorf("room %d holds %v as both member and join request", id, overlap.SortedList())
		}
		if memberSet.Has(room.OwnerID) || requestSet.Has(room.OwnerID) {
			return fmt.Errorf("room %d lists its owner %d as member or join request", id, room.OwnerID)
		}

		for _, userID := range room.Members {
			if _, ok := s.users[userID]; !ok {
				return fmt.Errorf("room %d lists unknown member %d", id, userID)
			}
			if other, dup := members[userID]; dup {
				return fmt.Errorf("user %d is a member of rooms %d and %d", userID, other, id)
			}
			members[userID] = id
		}
		for _, userID := range room.JoinRequests {
			if _, ok := s.users[userID]; !ok {
				return fmt.Errorf("room %d lists unknown join request %d", id, userID)
			}
			if other, dup := requesters[userID]; dup {
				return fmt.Errorf("user %d requested to join rooms %d and %d", userID, other, id)
			}
			requesters[userID] = id
		}
	}

	for id, user := range s.users {
		if user.ID != id {
			return fmt.Errorf("user %d stored under key %d", user.ID, id)
		}
		if err := s.validateUserState(user, owners, members, requesters); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) validateUserState(user *User, owners, members, requesters map[UserID]RoomID) error {
	mentions := 0
	if _, ok := owners[user.ID]; ok {
		mentions++
	}
	if _, ok := members[user.ID]; ok {
		mentions++
	}
	if _, ok := requesters[user.ID]; ok {
		mentions++
	}
	if mentions > 1 {
		return fmt.Errorf("user %d appears in more than one room role", user.ID)
	}

	switch user.State.kind {
	case stateNowhere:
		if mentions != 0 {
			return fmt.Errorf("user %d is Nowhere but referenced by a room", user.ID)
		}
	case stateRoomOwner:
		if room, ok := owners[user.ID]; !ok || room != user.State.room {
			return fmt.Errorf("user %d claims to own room %d", user.ID, user.State.room)
		}
	case stateInRoom:
		if room, ok := members[user.ID]; !ok || room != user.State.room {
			return fmt.Errorf("user %d claims membership of room %d", user.ID, user.State.room)
		}
	case stateRequestedJoin:
		if room, ok := requesters[user.ID]; !ok || room != user.State.room {
			return fmt.Errorf("user %d claims a join request in room %d", user.ID, user.State.room)
		}
	}
	return nil
}
