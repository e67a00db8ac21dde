package protocol

// ErrorKind enumerates every protocol-level failure a request can produce.
// Each kind maps to one exact human-readable reason carried on the wire as
// ERROR|<reason>. Protocol errors never terminate a connection.
type ErrorKind uint8

const (
	ErrServerFull ErrorKind = iota
	ErrInvalidRequest
	ErrAlreadyInARoom
	ErrAlreadyRequestedJoin
	ErrNotRoomOwner
	ErrIsRoomOwner
	ErrNotInThatRoom
	ErrNoSuchUser
	ErrNoSuchRoom
	ErrNoSuchJoinRequest
)

// Error implements the error interface with the exact wire reason, so error
// kinds can flow through ordinary Go error returns inside the lobby core and
// still format correctly at the protocol boundary.
func (e ErrorKind) Error() string {
	switch e {
	case ErrServerFull:
		return "Server is full"
	case ErrInvalidRequest:
		return "Invalid request"
	case ErrAlreadyInARoom:
		return "Already in a game"
	case ErrAlreadyRequestedJoin:
		return "Already requested to join a game"
	case ErrNotRoomOwner:
		return "You are not the game owner"
	case ErrIsRoomOwner:
		return "You are the game owner"
	case ErrNotInThatRoom:
		return "You are not in that game"
	case ErrNoSuchUser:
		return "No such user"
	case ErrNoSuchRoom:
		return "No such game"
	case ErrNoSuchJoinRequest:
		return "No such join request"
	default:
		return "Invalid request"
	}
}
