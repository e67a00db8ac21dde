package lobby

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/incognita-games/lobbyd/internal/v1/protocol"
)

// step drives one request through the state and validates the books
// afterwards.
func step(t *testing.T, s *State, user UserID, req protocol.Request) Response {
	t.Helper()
	res := s.HandleRequest(user, req)
	require.NoError(t, s.Validate(), "after %s from user %d", protocol.FormatRequest(req), user)
	return res
}

func TestInvariants_ScriptedLifecycle(t *testing.T) {
	s := NewState(8)
	require.NoError(t, s.Validate())

	for i := 1; i <= 5; i++ {
		id, ok := s.AddUser()
		require.True(t, ok)
		require.Equal(t, UserID(i), id)
		require.NoError(t, s.Validate())
	}

	step(t, s, 1, protocol.CreateRoom{Data: "alpha"})
	step(t, s, 2, protocol.CreateRoom{Data: "beta"})
	step(t, s, 3, protocol.AskJoinRoom{Room: 1, Msg: "hi"})
	step(t, s, 4, protocol.AskJoinRoom{Room: 1, Msg: "hi"})
	step(t, s, 5, protocol.AskJoinRoom{Room: 2, Msg: "hi"})
	step(t, s, 1, protocol.AcceptJoinRoom{Room: 1, User: 3})
	step(t, s, 1, protocol.RejectJoinRoom{Room: 1, User: 4, Reason: "full"})
	step(t, s, 2, protocol.AcceptJoinRoom{Room: 2, User: 5})
	step(t, s, 4, protocol.AskJoinRoom{Room: 2, Msg: "hi again"})
	step(t, s, 1, protocol.Send{Room: 1, Payload: "x"})
	step(t, s, 3, protocol.LeaveRoom{Room: 1})

	// Disconnects in every role: member, pending joiner, then an owner,
	// which closes the room behind them.
	for _, id := range []UserID{5, 4, 2} {
		_, err := s.RemoveUser(id)
		require.NoError(t, err)
		require.NoError(t, s.Validate())
	}

	require.Equal(t, 1, s.RoomCount())
	require.Equal(t, 2, s.UserCount())
}

// A seeded walk over every operation, validating the books after each
// step. Roughly one in ten picks is a bogus id so lookup failures get
// exercised alongside the happy paths.
func TestInvariants_RandomWalk(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 7))
	s := NewState(16)
	var live []UserID

	pickUser := func() UserID {
		if len(live) == 0 || rng.IntN(10) == 0 {
			return UserID(900 + rng.IntN(3))
		}
		return live[rng.IntN(len(live))]
	}
	pickRoom := func() RoomID {
		if len(s.roomOrder) == 0 || rng.IntN(10) == 0 {
			return RoomID(900 + rng.IntN(3))
		}
		return s.roomOrder[rng.IntN(len(s.roomOrder))]
	}

	for i := 0; i < 4000; i++ {
		switch rng.IntN(10) {
		case 0:
			if id, ok := s.AddUser(); ok {
				require.NotContains(t, live, id, "live id reissued")
				live = append(live, id)
			} else {
				require.Len(t, live, 16)
			}
		case 1:
			u := pickUser()
			if _, err := s.RemoveUser(u); err == nil {
				at := slices.Index(live, u)
				require.GreaterOrEqual(t, at, 0)
				live = slices.Delete(live, at, at+1)
			}
		case 2:
			s.HandleRequest(pickUser(), protocol.CreateRoom{Data: "d"})
		case 3:
			s.HandleRequest(pickUser(), protocol.AskJoinRoom{Room: pickRoom(), Msg: "m"})
		case 4:
			s.HandleRequest(pickUser(), protocol.AcceptJoinRoom{Room: pickRoom(), User: pickUser()})
		case 5:
			s.HandleRequest(pickUser(), protocol.RejectJoinRoom{Room: pickRoom(), User: pickUser(), Reason: "r"})
		case 6:
			s.HandleRequest(pickUser(), protocol.LeaveRoom{Room: pickRoom()})
		case 7:
			s.HandleRequest(pickUser(), protocol.Send{Room: pickRoom(), Payload: "p"})
		case 8:
			s.HandleRequest(pickUser(), protocol.SendTo{Room: pickRoom(), User: pickUser(), Payload: "p"})
		case 9:
			s.HandleRequest(pickUser(), protocol.EchoFrom{Room: pickRoom(), User: pickUser(), Payload: "p"})
		}
		require.NoError(t, s.Validate(), "op %d", i)
		require.Equal(t, len(live), s.UserCount())
	}
}
