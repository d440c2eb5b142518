package transport

import (
	"sync"

	"github.com/wiretalk/chatline/pkg/wire"
)

// Packet is an in-memory envelope around one decoded message, annotated
// with the id of the peer that sent it (0 for messages a client receives
// from the server).
type Packet struct {
	Sender uint16
	Msg    *wire.Message

	next *Packet
}

// queue is a singly-linked FIFO of received packets. Pop transfers
// ownership of the popped Packet to the caller, matching the transport's
// contract that consumers release what they pop.
type queue struct {
	mu         sync.Mutex
	head, tail *Packet
	len        int
	signal     chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(p *Packet) {
	q.mu.Lock()
	p.next = nil
	if q.tail == nil {
		q.head, q.tail = p, p
	} else {
		q.tail.next = p
		q.tail = p
	}
	q.len++
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop removes and returns the packet at the head of the queue, or reports
// ok == false if the queue is empty.
func (q *queue) pop() (p *Packet, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == nil {
		return nil, false
	}
	p = q.head
	q.head = p.next
	if q.head == nil {
		q.tail = nil
	}
	q.len--
	p.next = nil
	return p, true
}

func (q *queue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}
