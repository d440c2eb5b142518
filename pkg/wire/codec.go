package wire

import "fmt"

// upperBound returns the largest possible encoded size for messages of the
// given type, used to size the scratch buffer before encoding.
func upperBound(t Type) (int, error) {
	switch t {
	case Ping:
		return HeaderLen + 4, nil
	case UserSetName, UserConnect, UserDisconnect:
		return HeaderLen + 2 + MaxUsernameLen + 1, nil
	case ActiveUsers:
		return HeaderLen + 1 + MaxActiveUsers*(2+MaxUsernameLen+1), nil
	case Chat, Error:
		return HeaderLen + MaxChatLen + 1, nil
	default:
		return 0, fmt.Errorf("%w: unknown message type %d", ErrMalformed, t)
	}
}

// Encode serializes m into the exact byte sequence that belongs on the wire:
// a 7-byte header followed by the type-specific payload. The header's Len
// field (both in the output and in m.Header.Len) is populated with the
// total size actually written.
func Encode(m *Message) ([]byte, error) {
	cap, err := upperBound(m.Header.Type)
	if err != nil {
		return nil, err
	}
	w := newWriter(cap)
	w.off = HeaderLen // Reserve space for the header, filled in last.

	switch m.Header.Type {
	case Ping:
		if m.Ping == nil {
			return nil, fmt.Errorf("%w: PING message missing its payload", ErrMalformed)
		}
		w.putUint32(m.Ping.Time)
	case UserSetName, UserConnect, UserDisconnect:
		if m.User == nil {
			return nil, fmt.Errorf("%w: %s message missing its payload", ErrMalformed, m.Header.Type)
		}
		w.putUint16(m.User.ID)
		if err := w.putCString(m.User.Name, MaxUsernameLen); err != nil {
			return nil, err
		}
	case ActiveUsers:
		if m.Users == nil {
			return nil, fmt.Errorf("%w: ACTIVE_USERS message missing its payload", ErrMalformed)
		}
		if len(m.Users.Users) > MaxActiveUsers {
			return nil, fmt.Errorf("%w: ACTIVE_USERS roster of %d exceeds maximum %d", ErrMalformed, len(m.Users.Users), MaxActiveUsers)
		}
		w.putUint8(uint8(len(m.Users.Users)))
		for _, u := range m.Users.Users {
			w.putUint16(u.ID)
		}
		for _, u := range m.Users.Users {
			if err := w.putCString(u.Name, MaxUsernameLen); err != nil {
				return nil, err
			}
		}
	case Chat, Error:
		if m.Text == nil {
			return nil, fmt.Errorf("%w: %s message missing its payload", ErrMalformed, m.Header.Type)
		}
		if err := w.putCString(m.Text.Text, MaxChatLen); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrMalformed, m.Header.Type)
	}

	b := w.bytes()
	b[0] = byte(m.Header.Type)
	length := len(b)
	b[1] = byte(length >> 8)
	b[2] = byte(length)
	b[3] = byte(m.Header.From >> 8)
	b[4] = byte(m.Header.From)
	b[5] = byte(m.Header.To >> 8)
	b[6] = byte(m.Header.To)
	m.Header.Len = uint16(length)
	return b, nil
}

// Decode parses exactly one Message from b. The slice's length must equal
// the header's declared Len; any truncation, length mismatch, unknown type,
// malformed string, or trailing byte yields ErrMalformed.
func Decode(b []byte) (*Message, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d-byte header", ErrMalformed, len(b), HeaderLen)
	}
	hdr := Header{
		Type: Type(b[0]),
		Len:  uint16(b[1])<<8 | uint16(b[2]),
		From: uint16(b[3])<<8 | uint16(b[4]),
		To:   uint16(b[5])<<8 | uint16(b[6]),
	}
	if int(hdr.Len) != len(b) {
		return nil, fmt.Errorf("%w: header declares len %d but slice has %d bytes", ErrMalformed, hdr.Len, len(b))
	}

	r := newReader(b)
	r.off = HeaderLen
	m := &Message{Header: hdr}

	switch hdr.Type {
	case Ping:
		t, err := r.getUint32()
		if err != nil {
			return nil, err
		}
		m.Ping = &PingPayload{Time: t}
	case UserSetName, UserConnect, UserDisconnect:
		id, err := r.getUint16()
		if err != nil {
			return nil, err
		}
		name, err := r.getCString(MaxUsernameLen)
		if err != nil {
			return nil, err
		}
		m.User = &UserPayload{ID: id, Name: name}
	case ActiveUsers:
		n, err := r.getUint8()
		if err != nil {
			return nil, err
		}
		ids := make([]uint16, n)
		for i := range ids {
			ids[i], err = r.getUint16()
			if err != nil {
				return nil, err
			}
		}
		var users []ActiveUser // Stays nil for an empty snapshot.
		if n > 0 {
			users = make([]ActiveUser, n)
		}
		for i := range users {
			name, err := r.getCString(MaxUsernameLen)
			if err != nil {
				return nil, err
			}
			users[i] = ActiveUser{ID: ids[i], Name: name}
		}
		m.Users = &ActiveUsersPayload{Users: users}
	case Chat, Error:
		text, err := r.getCString(MaxChatLen)
		if err != nil {
			return nil, err
		}
		m.Text = &TextPayload{Text: text}
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrMalformed, hdr.Type)
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after payload", ErrMalformed, r.remaining())
	}
	return m, nil
}
