package protocol

// Message is one server-to-client frame. Format renders it as a single wire
// line without the trailing newline.
type Message interface {
	Format() string
}

// Server verbs.
const (
	verbWelcome     = "WELCOME"
	verbPong        = "PONG"
	verbNoOpenRooms = "NO_OPEN_GAMES"
	verbOpenRooms   = "OPEN_GAMES"
	verbRoomCreated = "CREATED_GAME"
	verbRoomJoined  = "JOINED"
	verbRoomClosed  = "GAME_OVER"
	verbRejected    = "REJECTED"
	verbJoined      = "PLAYER_JOINED"
	verbLeft        = "PLAYER_LEFT"
	verbReceived    = "RECEIVED"
	verbError       = "ERROR"
)

// Welcome greets a freshly accepted connection with its assigned UserID.
type Welcome struct {
	User UserID
}

// Pong answers a Ping with the same sequence number.
type Pong struct {
	Seq uint32
}

// RoomSummary is one entry of a room listing.
type RoomSummary struct {
	ID   RoomID
	Data string
}

// RoomList carries the current set of open rooms in creation order.
type RoomList struct {
	Rooms []RoomSummary
}

// RoomCreated confirms room creation to the new owner.
type RoomCreated struct {
	Room RoomID
}

// RoomJoined tells a pending joiner their request was accepted.
type RoomJoined struct {
	Room RoomID
}

// RoomClosed tells members and pending joiners that a room is gone.
type RoomClosed struct {
	Room RoomID
}

// RoomRejected tells a pending joiner their request was turned down.
type RoomRejected struct {
	Room   RoomID
	Reason string
}

// JoinRequested tells a room owner that a user wants in.
type JoinRequested struct {
	Room RoomID
	User UserID
	Msg  string
}

// PlayerLeft tells a room owner that a member or pending joiner is gone.
type PlayerLeft struct {
	Room RoomID
	User UserID
}

// ReceivedFrom delivers a member's payload to the room owner.
type ReceivedFrom struct {
	Room    RoomID
	User    UserID
	Payload string
}

// ReceivedBroadcast delivers an owner's payload to a member.
type ReceivedBroadcast struct {
	Room    RoomID
	Payload string
}

// ReceivedIndividual delivers an owner's payload to a single member.
type ReceivedIndividual struct {
	Room    RoomID
	Payload string
}

// ErrorMessage reports a protocol failure back to the requester.
type ErrorMessage struct {
	Kind ErrorKind
}

func (m Welcome) Format() string {
	return join(verbWelcome, itoa(uint32(m.User)))
}

func (m Pong) Format() string {
	return join(verbPong, itoa(m.Seq))
}

// Format renders NO_OPEN_GAMES for an empty listing, otherwise OPEN_GAMES
// followed by strictly paired id|data fields.
func (m RoomList) Format() string {
	if len(m.Rooms) == 0 {
		return verbNoOpenRooms
	}
	fields := make([]string, 0, 1+2*len(m.Rooms))
	fields = append(fields, verbOpenRooms)
	for _, r := range m.Rooms {
		fields = append(fields, itoa(uint32(r.ID)), r.Data)
	}
	return join(fields...)
}

func (m RoomCreated) Format() string {
	return join(verbRoomCreated, itoa(uint32(m.Room)))
}

func (m RoomJoined) Format() string {
	return join(verbRoomJoined, itoa(uint32(m.Room)))
}

func (m RoomClosed) Format() string {
	return join(verbRoomClosed, itoa(uint32(m.Room)))
}

func (m RoomRejected) Format() string {
	return join(verbRejected, itoa(uint32(m.Room)), m.Reason)
}

func (m JoinRequested) Format() string {
	return join(verbJoined, itoa(uint32(m.Room)), itoa(uint32(m.User)), m.Msg)
}

func (m PlayerLeft) Format() string {
	return join(verbLeft, itoa(uint32(m.Room)), itoa(uint32(m.User)))
}

func (m ReceivedFrom) Format() string {
	return join(verbReceived, itoa(uint32(m.Room)), itoa(uint32(m.User)), m.Payload)
}

func (m ReceivedBroadcast) Format() string {
	return join(verbReceived, itoa(uint32(m.Room)), m.Payload)
}

func (m ReceivedIndividual) Format() string {
	return join(verbReceived, itoa(uint32(m.Room)), m.Payload)
}

func (m ErrorMessage) Format() string {
	return join(verbError, m.Kind.Error())
}
