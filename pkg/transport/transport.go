// Package transport implements the framed socket layer: a process-wide
// connection multiplexer that accepts clients (server role) or dials one
// (client role), demultiplexes length-prefixed frames into a shared packet
// queue, and tolerates partial failures such as slow or disconnecting
// peers.
//
// The original implementation drove everything from a single poll(2) loop
// on one thread. Idiomatic Go favors one goroutine blocked in a read per
// connection instead of a manual readiness multiplexer; this package keeps
// the original's external contract (role-gated operations, a bounded
// roster, a FIFO packet queue, a cooperative Tick in place of poll) while
// moving the actual I/O onto per-connection goroutines that feed the queue.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/wiretalk/chatline/pkg/wire"
	"golang.org/x/sys/unix"
)

// MaxClients is the bounded roster capacity on the server side.
const MaxClients = 255

// Role identifies what a Transport value has been started as.
type Role int

const (
	RoleUninitialized Role = iota
	RoleServer
	RoleClient
)

// ClientRecord is the transport's view of one connected client: its
// assigned id, its framed connection, and whether it is still active.
type ClientRecord struct {
	ID     uint16
	Conn   *Conn
	Active bool
}

// Transport is a process-wide handle for either a server or a client
// connection. At most one role is legal per Transport value, and
// operations invalid for the current role return ErrInvalidCommand.
type Transport struct {
	mu     sync.Mutex
	role   Role
	closed bool

	// Server state.
	listener     net.Listener
	nextID       uint16
	clients      []*ClientRecord
	pendingConns chan net.Conn
	serverErr    chan error

	// Client state.
	serverConn *Conn
	clientErr  chan error

	queue *queue
}

// NewServerTransport binds addr ("host:port", host may be empty for all
// interfaces), enables SO_REUSEADDR, and starts accepting connections in
// the background. It fails if addr cannot be bound.
func NewServerTransport(addr string) (*Transport, error) {
	lc := net.ListenConfig{Control: setReuseAddr}
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerStartFailure, err)
	}
	t := &Transport{
		role:         RoleServer,
		listener:     listener,
		nextID:       wire.FirstClientID,
		pendingConns: make(chan net.Conn, MaxClients),
		serverErr:    make(chan error, 1),
		queue:        newQueue(),
	}
	go t.acceptLoop()
	return t, nil
}

// setReuseAddr enables SO_REUSEADDR on the listening socket before bind, so
// a restarted server can reclaim a port still draining TIME_WAIT sockets.
func setReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// NewClientTransport dials host:port and starts receiving frames from the
// server in the background.
func NewClientTransport(host, port string) (*Transport, error) {
	nc, err := net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientStartFailure, err)
	}
	t := &Transport{
		role:       RoleClient,
		serverConn: NewConn(nc),
		clientErr:  make(chan error, 1),
		queue:      newQueue(),
	}
	go t.clientReadLoop()
	return t, nil
}

func (t *Transport) acceptLoop() {
	for {
		nc, err := t.listener.Accept()
		if err != nil {
			if t.isClosed() {
				return
			}
			select {
			case t.serverErr <- fmt.Errorf("%w: %v", ErrPollFailure, err):
			default:
			}
			return
		}
		t.pendingConns <- nc
	}
}

func (t *Transport) clientReadLoop() {
	for {
		msg, err := t.serverConn.Recv()
		if err != nil {
			if errors.Is(err, ErrDisconnected) || errors.Is(err, ErrMalformedFrame) {
				select {
				case t.clientErr <- ErrDisconnected:
				default:
				}
				return
			}
			// A malformed message: log and drop, connection stays open.
			log.Printf("transport: dropping malformed message from server: %v", err)
			continue
		}
		t.queue.push(&Packet{Sender: 0, Msg: msg})
	}
}

func (t *Transport) readLoop(id uint16, c *Conn) {
	for {
		msg, err := c.Recv()
		if err != nil {
			if errors.Is(err, ErrDisconnected) || errors.Is(err, ErrMalformedFrame) {
				t.markInactive(id)
				return
			}
			log.Printf("transport: dropping malformed message from client %d: %v", id, err)
			continue
		}
		t.queue.push(&Packet{Sender: id, Msg: msg})
	}
}

// AcceptOne drains at most one pending connection, assigning it the next
// id and adding it to the roster as active. It reports ErrNoNewConnections
// if none is pending, and ErrTooManyConnections (after closing the new
// connection) if the roster is already at MaxClients.
func (t *Transport) AcceptOne() (uint16, error) {
	if t.Role() != RoleServer {
		return 0, ErrInvalidCommand
	}
	select {
	case nc := <-t.pendingConns:
		return t.accept(nc)
	default:
		return 0, ErrNoNewConnections
	}
}

func (t *Transport) accept(nc net.Conn) (uint16, error) {
	t.mu.Lock()
	if len(t.clients) >= MaxClients {
		t.mu.Unlock()
		nc.Close()
		return 0, ErrTooManyConnections
	}
	id := t.nextID
	t.nextID++
	rec := &ClientRecord{ID: id, Conn: NewConn(nc), Active: true}
	t.clients = append(t.clients, rec)
	t.mu.Unlock()

	go t.readLoop(id, rec.Conn)
	return id, nil
}

// markInactive flips a roster entry's Active flag to false. The entry
// stays in the roster until FlushInactive removes it.
func (t *Transport) markInactive(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.clients {
		if rec.ID == id {
			rec.Active = false
			return
		}
	}
}

// Disconnect closes the connection for id and marks it inactive. The
// record remains in the roster until FlushInactive.
func (t *Transport) Disconnect(id uint16) error {
	if t.Role() != RoleServer {
		return ErrInvalidCommand
	}
	t.mu.Lock()
	var rec *ClientRecord
	for _, r := range t.clients {
		if r.ID == id {
			rec = r
			break
		}
	}
	t.mu.Unlock()
	if rec == nil {
		return ErrClientNotFound
	}
	rec.Conn.Close()
	t.markInactive(id)
	return nil
}

// FlushInactive compacts the roster, removing inactive records by
// swapping each one with the last entry and truncating.
func (t *Transport) FlushInactive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < len(t.clients); {
		if t.clients[i].Active {
			i++
			continue
		}
		last := len(t.clients) - 1
		t.clients[i] = t.clients[last]
		t.clients[last] = nil
		t.clients = t.clients[:last]
	}
}

// ActiveClients returns the ids currently marked active in the roster, in
// roster order.
func (t *Transport) ActiveClients() []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uint16, 0, len(t.clients))
	for _, rec := range t.clients {
		if rec.Active {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

// Send transmits msg to the client identified by id (server role) or to
// the server (client role, any id is accepted and ignored).
func (t *Transport) Send(id uint16, msg *wire.Message) error {
	switch t.Role() {
	case RoleServer:
		t.mu.Lock()
		var rec *ClientRecord
		for _, r := range t.clients {
			if r.ID == id && r.Active {
				rec = r
				break
			}
		}
		t.mu.Unlock()
		if rec == nil {
			return ErrClientNotFound
		}
		return rec.Conn.Send(msg)
	case RoleClient:
		return t.serverConn.Send(msg)
	default:
		return ErrUninitialized
	}
}

// Tick waits up to timeout for transport activity: on the server, it first
// drains one pending connection accept (mirroring "slot 0 readable" in the
// original poll loop), then waits for a packet to arrive or the timeout to
// elapse. On the client, a server disconnect observed during the wait is
// returned as ErrDisconnected.
func (t *Transport) Tick(timeout time.Duration) error {
	switch t.Role() {
	case RoleServer:
		t.AcceptOne() // Best-effort; ErrNoNewConnections is not fatal.
		select {
		case err := <-t.serverErr:
			return err
		case <-t.queue.signal:
			return nil
		case <-time.After(timeout):
			return nil
		}
	case RoleClient:
		select {
		case err := <-t.clientErr:
			return err
		case <-t.queue.signal:
			return nil
		case <-time.After(timeout):
			return nil
		}
	default:
		return ErrUninitialized
	}
}

// PopPacket removes and returns the packet at the head of the queue.
// Ownership of the returned Packet transfers to the caller.
func (t *Transport) PopPacket() (*Packet, bool) {
	return t.queue.pop()
}

// QueueLen reports how many packets are currently queued, for diagnostics.
func (t *Transport) QueueLen() int {
	return t.queue.count()
}

// ListenerAddr returns the server's bound address, for callers that let
// the OS pick an ephemeral port (tests, primarily).
func (t *Transport) ListenerAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Role reports whether this Transport is uninitialized, a server, or a
// client.
func (t *Transport) Role() Role {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.role
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Shutdown closes every client connection (server role) or the server
// connection (client role), closes the listener if any, and resets the
// transport to RoleUninitialized.
func (t *Transport) Shutdown() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	role := t.role
	listener := t.listener
	clients := t.clients
	serverConn := t.serverConn
	t.clients = nil
	t.role = RoleUninitialized
	t.mu.Unlock()

	switch role {
	case RoleServer:
		for _, rec := range clients {
			rec.Conn.Close()
		}
		if listener != nil {
			return listener.Close()
		}
	case RoleClient:
		if serverConn != nil {
			return serverConn.Close()
		}
	}
	return nil
}
