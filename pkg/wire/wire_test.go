package wire_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wiretalk/chatline/pkg/wire"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		desc string
		msg  *wire.Message
	}{
		{"ping", wire.NewPing(1000, 0, 123456)},
		{"setname", wire.NewUserSetName(1000, 0, 1000, "alice")},
		{"connect", wire.NewUserConnect(0, 0, 1000, "")},
		{"disconnect", wire.NewUserDisconnect(0, 0, 1000, "alice")},
		{"empty roster", wire.NewActiveUsers(0, 1000, nil)},
		{"roster", wire.NewActiveUsers(0, 1000, []wire.ActiveUser{
			{ID: 1000, Name: "alice"},
			{ID: 1001, Name: ""},
		})},
		{"chat", wire.NewChat(1000, 0, "hi")},
		{"empty chat", wire.NewChat(1000, 0, "")},
		{"error", wire.NewError(0, 1001, "Username already taken.")},
		{"max username", wire.NewUserSetName(1000, 0, 1000, strings.Repeat("a", wire.MaxUsernameLen))},
		{"max chat", wire.NewChat(1000, 0, strings.Repeat("x", wire.MaxChatLen))},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			b, err := wire.Encode(tc.msg)
			if err != nil {
				t.Fatalf("Encode(%+v); got unexpected error: %v", tc.msg, err)
			}
			if got, want := b[0], byte(tc.msg.Header.Type); got != want {
				t.Errorf("b[0] = %d, want %d", got, want)
			}
			if got, want := int(uint16(b[1])<<8|uint16(b[2])), len(b); got != want {
				t.Errorf("declared len = %d, want %d", got, want)
			}
			if got, want := uint16(b[3])<<8|uint16(b[4]), tc.msg.Header.From; got != want {
				t.Errorf("from = %d, want %d", got, want)
			}
			if got, want := uint16(b[5])<<8|uint16(b[6]), tc.msg.Header.To; got != want {
				t.Errorf("to = %d, want %d", got, want)
			}

			got, err := wire.Decode(b)
			if err != nil {
				t.Fatalf("Decode(Encode(%+v)); got unexpected error: %v", tc.msg, err)
			}
			if diff := cmp.Diff(tc.msg, got); diff != "" {
				t.Errorf("Decode(Encode(m)) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestActiveUsersZeroLength(t *testing.T) {
	b, err := wire.Encode(wire.NewActiveUsers(0, 1000, nil))
	if err != nil {
		t.Fatalf("Encode(...); got unexpected error: %v", err)
	}
	if got, want := len(b), wire.HeaderLen+1; got != want {
		t.Errorf("len(b) = %d, want %d", got, want)
	}
	if got, want := b[wire.HeaderLen], byte(0); got != want {
		t.Errorf("b[HeaderLen] = %d, want %d", got, want)
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		desc string
		msg  *wire.Message
	}{
		{"name too long", wire.NewUserSetName(1000, 0, 1000, strings.Repeat("a", wire.MaxUsernameLen+1))},
		{"chat too long", wire.NewChat(1000, 0, strings.Repeat("x", wire.MaxChatLen+1))},
		{"unknown type", &wire.Message{Header: wire.Header{Type: wire.Type(99)}}},
		{"embedded NUL", wire.NewChat(1000, 0, "a\x00b")},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := wire.Encode(tc.msg)
			if !errors.Is(err, wire.ErrMalformed) {
				t.Errorf("Encode(%+v); got %v, want %v", tc.msg, err, wire.ErrMalformed)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, err := wire.Encode(wire.NewChat(1000, 0, "hello"))
	if err != nil {
		t.Fatalf("Encode(...); got unexpected error: %v", err)
	}

	tests := []struct {
		desc string
		b    []byte
	}{
		{"too short", []byte{0, 0, 3}},
		{"unknown type", func() []byte {
			b := append([]byte{}, valid...)
			b[0] = 99
			return b
		}()},
		{"len mismatch", func() []byte {
			b := append([]byte{}, valid...)
			b[2] = b[2] + 1
			return b
		}()},
		{"missing NUL", func() []byte {
			b := append([]byte{}, valid...)
			b[len(b)-1] = 'x'
			return b
		}()},
		{"trailing bytes", append(append([]byte{}, valid...), 0xff)},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := wire.Decode(tc.b)
			if !errors.Is(err, wire.ErrMalformed) {
				t.Errorf("Decode(%v); got %v, want %v", tc.b, err, wire.ErrMalformed)
			}
		})
	}
}

func TestDecodeNeverReadsPastSlice(t *testing.T) {
	// A truncated ACTIVE_USERS body: the payload's count byte declares 3
	// ids but only bytes for part of the first one follow.
	b := []byte{byte(wire.ActiveUsers), 0, 10, 0, 0, 0, 0, 3, 0x03}
	b[1] = byte(len(b) >> 8)
	b[2] = byte(len(b))
	_, err := wire.Decode(b)
	if !errors.Is(err, wire.ErrMalformed) {
		t.Errorf("Decode(%v); got %v, want %v", b, err, wire.ErrMalformed)
	}
}
