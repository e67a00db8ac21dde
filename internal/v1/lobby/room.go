package lobby

import (
	"slices"

	"github.com/incognita-games/lobbyd/internal/v1/protocol"
)

// Room is one open lobby: an owner, the opaque descriptor it was created
// with, its accepted members and its pending join requests. Members and
// join requests keep insertion order so fan-out and listings stay
// deterministic for a given request history.
//
// Data is never mutated after creation; Go strings share their backing
// bytes, so attaching it to any number of fan-out messages costs nothing.
type Room struct {
	ID           RoomID
	OwnerID      UserID
	Data         string
	Members      []UserID
	JoinRequests []UserID
}

func newRoom(id RoomID, ownerID UserID, data string) *Room {
	return &Room{ID: id, OwnerID: ownerID, Data: data}
}

// expectOwner guards owner-only operations.
func (r *Room) expectOwner(userID UserID) error {
	if r.OwnerID != userID {
		return protocol.ErrNotRoomOwner
	}
	return nil
}

// expectMember guards operations addressed at an accepted member.
func (r *Room) expectMember(userID UserID) error {
	if !slices.Contains(r.Members, userID) {
		return protocol.ErrNoSuchUser
	}
	return nil
}

// cancelJoinRequest drops the user's pending request and resets their
// state. Shared by rejection and voluntary withdrawal.
func (r *Room) cancelJoinRequest(user *User) error {
	i := slices.Index(r.JoinRequests, user.ID)
	if i < 0 {
		return protocol.ErrNoSuchJoinRequest
	}
	r.JoinRequests = slices.Delete(r.JoinRequests, i, i+1)
	user.State = Nowhere()
	return nil
}

// acceptJoinRequest promotes a pending joiner to member.
func (r *Room) acceptJoinRequest(user *User) error {
	if err := r.cancelJoinRequest(user); err != nil {
		return err
	}
	r.Members = append(r.Members, user.ID)
	user.State = InRoom(r.ID)
	return nil
}

// removeMember drops a member from the room. The owner is not a member
// and cannot be removed this way.
func (r *Room) removeMember(userID UserID) error {
	if userID == r.OwnerID {
		return protocol.ErrIsRoomOwner
	}
	i := slices.Index(r.Members, userID)
	if i < 0 {
		return protocol.ErrNoSuchUser
	}
	r.Members = slices.Delete(r.Members, i, i+1)
	return nil
}

// SetOwner swaps ownership with an accepted member: the member becomes the
// owner and the previous owner takes the member's slot. No protocol request
// currently reaches this primitive; the SET_OWNER verb is parsed but has no
// core handling until its transfer semantics are settled.
func (r *Room) SetOwner(user *User) error {
	i := slices.Index(r.Members, user.ID)
	if i < 0 {
		return protocol.ErrNoSuchUser
	}
	r.Members[i], r.OwnerID = r.OwnerID, r.Members[i]
	user.State = RoomOwner(r.ID)
	return nil
}
