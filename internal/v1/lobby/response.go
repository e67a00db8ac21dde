package lobby

import (
	"errors"

	"github.com/incognita-games/lobbyd/internal/v1/protocol"
)

// Addressed pairs a fan-out message with the user it must reach.
type Addressed struct {
	To  UserID
	Msg protocol.Message
}

// Response is the outcome of one request against the state: an optional
// message back to the requester plus an ordered list of addressed fan-out
// messages. The dispatcher delivers it; the core never touches a socket.
type Response struct {
	Returns protocol.Message
	Sends   []Addressed
}

// Empty reports whether the response carries nothing to deliver.
func (r Response) Empty() bool {
	return r.Returns == nil && len(r.Sends) == 0
}

func returns(msg protocol.Message) Response {
	return Response{Returns: msg}
}

func sendsTo(userID UserID, msg protocol.Message) Response {
	return Response{Sends: []Addressed{{To: userID, Msg: msg}}}
}

func errorResponse(kind protocol.ErrorKind) Response {
	return returns(protocol.ErrorMessage{Kind: kind})
}

// respond packages a core result for the dispatcher. Core failures always
// carry a protocol error kind; anything else is reported as an invalid
// request rather than escaping the core.
func respond(res Response, err error) Response {
	if err == nil {
		return res
	}
	var kind protocol.ErrorKind
	if !errors.As(err, &kind) {
		kind = protocol.ErrInvalidRequest
	}
	return errorResponse(kind)
}
