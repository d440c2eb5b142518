// Package chatserver implements the server-side chat state machine:
// roster reconciliation against the transport's active-client set, name
// uniqueness enforcement, and message routing (unicast or room broadcast).
package chatserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wiretalk/chatline/pkg/transport"
	"github.com/wiretalk/chatline/pkg/wire"
)

// TickInterval is the poll timeout used by Run between ticks, matching the
// "poll(1s)" cadence described for the server's main loop.
const TickInterval = 1 * time.Second

// ErrFatal is returned by Run when the transport reports a condition the
// server cannot recover from (a poll/accept failure on the listener).
var ErrFatal = errors.New("chatserver: fatal transport failure")

type user struct {
	ID   uint16
	Name string
}

// Server holds the roster mirrored from the transport's active-client set
// and drives the request/response/broadcast logic described by the wire
// protocol.
type Server struct {
	transport *transport.Transport

	mu    sync.Mutex
	users []*user

	messagesHandled uint64
}

// RosterSize reports how many users are currently on the roster, for
// metrics and diagnostics.
func (s *Server) RosterSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// MessagesHandled reports how many packets have been dispatched by handle
// since the server started, for metrics.
func (s *Server) MessagesHandled() uint64 {
	return atomic.LoadUint64(&s.messagesHandled)
}

// NewServer starts a transport server bound to addr ("host:port").
func NewServer(addr string) (*Server, error) {
	t, err := transport.NewServerTransport(addr)
	if err != nil {
		return nil, err
	}
	return &Server{transport: t}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	a := s.transport.ListenerAddr()
	if a == nil {
		return ""
	}
	return a.String()
}

// Shutdown tears down the underlying transport.
func (s *Server) Shutdown() error {
	return s.transport.Shutdown()
}

// Run drives the server loop until ctx is canceled or a fatal transport
// failure occurs. Each tick polls the transport, reconciles the roster,
// and drains the packet queue.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.Shutdown()
		default:
		}

		if err := s.step(TickInterval); err != nil {
			return err
		}
	}
}

// TickOnce runs a single poll/reconcile/dispatch cycle with a short
// timeout. It is meant for tests that drive the server loop by hand.
func (s *Server) TickOnce() error {
	return s.step(50 * time.Millisecond)
}

func (s *Server) step(timeout time.Duration) error {
	if err := s.transport.Tick(timeout); err != nil {
		if errors.Is(err, transport.ErrPollFailure) {
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
	}

	s.syncUsers()

	for {
		p, ok := s.transport.PopPacket()
		if !ok {
			break
		}
		s.handle(p)
	}
	return nil
}

// syncUsers reconciles the roster against the transport's active-client
// set: newly active transport clients are welcomed, and roster entries no
// longer active are removed and announced.
func (s *Server) syncUsers() {
	active := s.transport.ActiveClients()
	activeSet := make(map[uint16]bool, len(active))
	for _, id := range active {
		activeSet[id] = true
	}

	s.mu.Lock()
	known := make(map[uint16]bool, len(s.users))
	for _, u := range s.users {
		known[u.ID] = true
	}
	s.mu.Unlock()

	for _, id := range active {
		if !known[id] {
			s.welcome(id)
		}
	}

	s.mu.Lock()
	kept := s.users[:0]
	var departed []uint16
	for _, u := range s.users {
		if activeSet[u.ID] {
			kept = append(kept, u)
		} else {
			departed = append(departed, u.ID)
		}
	}
	s.users = kept
	s.mu.Unlock()

	for _, id := range departed {
		s.broadcast(wire.NewUserDisconnect(wire.Server, wire.Server, id, ""))
	}

	s.transport.FlushInactive()
}

// welcome adds a new transport client to the roster. The new client must
// see ACTIVE_USERS as its very first message, since that is how it learns
// its own id; USER_CONNECT is announced to the rest of the room only and is
// never sent to the newcomer itself.
func (s *Server) welcome(id uint16) {
	s.mu.Lock()
	others := make([]uint16, len(s.users))
	for i, u := range s.users {
		others[i] = u.ID
	}
	s.users = append(s.users, &user{ID: id})
	s.mu.Unlock()

	s.sendSnapshot(id)

	notice := wire.NewUserConnect(wire.Server, wire.Server, id, "")
	for _, other := range others {
		if err := s.transport.Send(other, notice); err != nil {
			log.Printf("chatserver: failed to broadcast %s to %d: %v", notice.Header.Type, other, err)
		}
	}
}

func (s *Server) snapshot() []wire.ActiveUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]wire.ActiveUser, len(s.users))
	for i, u := range s.users {
		users[i] = wire.ActiveUser{ID: u.ID, Name: u.Name}
	}
	return users
}

func (s *Server) sendSnapshot(to uint16) {
	msg := wire.NewActiveUsers(wire.Server, to, s.snapshot())
	if err := s.transport.Send(to, msg); err != nil {
		log.Printf("chatserver: failed to send roster snapshot to %d: %v", to, err)
	}
}

// broadcast sends msg to every user currently on the roster.
func (s *Server) broadcast(msg *wire.Message) {
	s.mu.Lock()
	ids := make([]uint16, len(s.users))
	for i, u := range s.users {
		ids[i] = u.ID
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.transport.Send(id, msg); err != nil {
			log.Printf("chatserver: failed to broadcast %s to %d: %v", msg.Header.Type, id, err)
		}
	}
}

// handle dispatches one decoded packet by message type.
func (s *Server) handle(p *transport.Packet) {
	atomic.AddUint64(&s.messagesHandled, 1)
	m := p.Msg
	switch m.Header.Type {
	case wire.Ping:
		reply := wire.NewPing(wire.Server, p.Sender, m.Ping.Time)
		if err := s.transport.Send(p.Sender, reply); err != nil {
			log.Printf("chatserver: failed to echo PING to %d: %v", p.Sender, err)
		}
	case wire.UserSetName:
		s.handleSetName(p.Sender, m.User.Name)
	case wire.ActiveUsers:
		s.sendSnapshot(p.Sender)
	case wire.Chat:
		s.handleChat(p.Sender, m)
	default:
		log.Printf("chatserver: dropping unsupported message type %s from %d", m.Header.Type, p.Sender)
	}
}

func (s *Server) handleSetName(sender uint16, name string) {
	s.mu.Lock()
	var self *user
	taken := false
	for _, u := range s.users {
		if u.ID == sender {
			self = u
		}
		if name != "" && u.Name == name {
			taken = true
		}
	}
	if self == nil {
		s.mu.Unlock()
		return // Unknown sender: ignore.
	}
	if taken {
		s.mu.Unlock()
		if err := s.transport.Send(sender, wire.NewError(wire.Server, sender, "Username already taken.")); err != nil {
			log.Printf("chatserver: failed to send name-collision error to %d: %v", sender, err)
		}
		return
	}
	self.Name = name
	s.mu.Unlock()

	s.broadcast(wire.NewUserSetName(wire.Server, wire.Server, sender, name))
}

func (s *Server) handleChat(sender uint16, m *wire.Message) {
	if m.Header.To == wire.Server {
		s.broadcast(m)
		return
	}
	if err := s.transport.Send(m.Header.To, m); err != nil {
		log.Printf("chatserver: failed to forward CHAT from %d to %d: %v", sender, m.Header.To, err)
	}
}
