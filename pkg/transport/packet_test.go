package transport

import (
	"testing"

	"github.com/wiretalk/chatline/pkg/wire"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := newQueue()
	for i := uint16(0); i < 3; i++ {
		q.push(&Packet{Sender: i, Msg: wire.NewChat(i, 0, "")})
	}
	for i := uint16(0); i < 3; i++ {
		p, ok := q.pop()
		if !ok {
			t.Fatalf("pop() at i=%d; got ok = false, want true", i)
		}
		if p.Sender != i {
			t.Errorf("pop() at i=%d; Sender = %d, want %d", i, p.Sender, i)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("pop() on empty queue; got ok = true, want false")
	}
}
