// Package wire implements the typed, length-framed binary message family
// exchanged between a chatline server and its clients: a 7-byte header
// (type, len, from, to) followed by a type-specific payload.
package wire

import "errors"

// Type identifies the payload carried by a Message.
type Type uint8

const (
	// Ping carries an opaque timestamp stamped by the sender.
	Ping Type = iota
	// UserSetName requests (client -> server) or confirms (server -> all)
	// a rename of the user identified by ID.
	UserSetName
	// UserConnect announces a newly active user.
	UserConnect
	// UserDisconnect announces a user leaving the roster.
	UserDisconnect
	// ActiveUsers carries a full roster snapshot, as a request or a reply.
	ActiveUsers
	// Chat carries a line of text, destined for a single user or the room.
	Chat
	// Error carries a human-readable failure message for the recipient.
	Error
)

func (t Type) String() string {
	switch t {
	case Ping:
		return "PING"
	case UserSetName:
		return "USER_SETNAME"
	case UserConnect:
		return "USER_CONNECT"
	case UserDisconnect:
		return "USER_DISCONNECT"
	case ActiveUsers:
		return "ACTIVE_USERS"
	case Chat:
		return "CHAT"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Server is the reserved identifier for the server itself: as a "from" it
// marks server-originated broadcasts, and as a "to" it marks a broadcast
// addressed to the whole room.
const Server uint16 = 0

// FirstClientID is the identifier handed to the first accepted client;
// subsequent clients receive monotonically increasing values.
const FirstClientID uint16 = 1000

const (
	// HeaderLen is the size in bytes of the fixed message header.
	HeaderLen = 7
	// MaxUsernameLen is the maximum encoded length of a username, not
	// counting the terminating NUL.
	MaxUsernameLen = 16
	// MaxChatLen is the maximum encoded length of chat and error text, not
	// counting the terminating NUL.
	MaxChatLen = 255
	// MaxActiveUsers is the largest roster snapshot a single ActiveUsers
	// message can carry.
	MaxActiveUsers = 255
	// MaxMessageLen is the largest total (header + payload) size permitted
	// for any message, matching the transport's frame payload ceiling.
	MaxMessageLen = 65535
)

// ErrMalformed reports that a byte slice could not be decoded into a valid
// Message: truncation, an overlong declared length, a length mismatch, a
// missing string terminator, trailing bytes, or an unknown type all surface
// as this error, wrapped with a descriptive message.
var ErrMalformed = errors.New("wire: malformed message")

// Header is the fixed 7-byte preamble shared by every Message.
type Header struct {
	Type Type
	Len  uint16
	From uint16
	To   uint16
}

// ActiveUser is one entry in an ActiveUsers snapshot.
type ActiveUser struct {
	ID   uint16
	Name string
}

// Message is a decoded typed message. Exactly one of the payload fields is
// populated, matching Header.Type; callers should use the constructors
// below rather than building a Message by hand.
type Message struct {
	Header Header

	// Ping is populated when Header.Type == Ping.
	Ping *PingPayload
	// User is populated when Header.Type is UserSetName, UserConnect, or
	// UserDisconnect.
	User *UserPayload
	// Users is populated when Header.Type == ActiveUsers.
	Users *ActiveUsersPayload
	// Text is populated when Header.Type is Chat or Error.
	Text *TextPayload
}

// PingPayload is the payload of a Ping message.
type PingPayload struct {
	Time uint32
}

// UserPayload is the shared payload of UserSetName, UserConnect, and
// UserDisconnect messages.
type UserPayload struct {
	ID   uint16
	Name string
}

// ActiveUsersPayload is the payload of an ActiveUsers message.
type ActiveUsersPayload struct {
	Users []ActiveUser
}

// TextPayload is the shared payload of Chat and Error messages.
type TextPayload struct {
	Text string
}

func header(t Type, from, to uint16) Header {
	return Header{Type: t, From: from, To: to}
}

// NewPing builds a Ping message.
func NewPing(from, to uint16, t uint32) *Message {
	return &Message{Header: header(Ping, from, to), Ping: &PingPayload{Time: t}}
}

// NewUserSetName builds a USER_SETNAME message.
func NewUserSetName(from, to, id uint16, name string) *Message {
	return &Message{Header: header(UserSetName, from, to), User: &UserPayload{ID: id, Name: name}}
}

// NewUserConnect builds a USER_CONNECT message.
func NewUserConnect(from, to, id uint16, name string) *Message {
	return &Message{Header: header(UserConnect, from, to), User: &UserPayload{ID: id, Name: name}}
}

// NewUserDisconnect builds a USER_DISCONNECT message.
func NewUserDisconnect(from, to, id uint16, name string) *Message {
	return &Message{Header: header(UserDisconnect, from, to), User: &UserPayload{ID: id, Name: name}}
}

// NewActiveUsers builds an ACTIVE_USERS message (snapshot request or reply).
func NewActiveUsers(from, to uint16, users []ActiveUser) *Message {
	return &Message{Header: header(ActiveUsers, from, to), Users: &ActiveUsersPayload{Users: users}}
}

// NewChat builds a CHAT message.
func NewChat(from, to uint16, text string) *Message {
	return &Message{Header: header(Chat, from, to), Text: &TextPayload{Text: text}}
}

// NewError builds an ERROR message.
func NewError(from, to uint16, text string) *Message {
	return &Message{Header: header(Error, from, to), Text: &TextPayload{Text: text}}
}
