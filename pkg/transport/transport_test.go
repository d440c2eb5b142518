package transport_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/wiretalk/chatline/pkg/transport"
	"github.com/wiretalk/chatline/pkg/wire"
)

func newServer(t *testing.T) *transport.Transport {
	t.Helper()
	srv, err := transport.NewServerTransport("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServerTransport(...); got unexpected error: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown() })
	return srv
}

func addr(t *testing.T, srv *transport.Transport) (string, string) {
	t.Helper()
	host, port, err := net.SplitHostPort(srv.ListenerAddr().String())
	if err != nil {
		t.Fatalf("net.SplitHostPort(...); got unexpected error: %v", err)
	}
	return host, port
}

func TestAcceptAssignsIncreasingIDs(t *testing.T) {
	srv := newServer(t)
	host, port := addr(t, srv)

	c1, err := transport.NewClientTransport(host, port)
	if err != nil {
		t.Fatalf("NewClientTransport(...); got unexpected error: %v", err)
	}
	defer c1.Shutdown()
	c2, err := transport.NewClientTransport(host, port)
	if err != nil {
		t.Fatalf("NewClientTransport(...); got unexpected error: %v", err)
	}
	defer c2.Shutdown()

	waitFor(t, func() bool { srv.AcceptOne(); return len(srv.ActiveClients()) >= 2 })

	ids := srv.ActiveClients()
	if len(ids) != 2 {
		t.Fatalf("len(ActiveClients()) = %d, want 2", len(ids))
	}
	if ids[0] != wire.FirstClientID || ids[1] != wire.FirstClientID+1 {
		t.Errorf("ActiveClients() = %v, want [%d %d]", ids, wire.FirstClientID, wire.FirstClientID+1)
	}
}

func TestSendRecvThroughTransport(t *testing.T) {
	srv := newServer(t)
	host, port := addr(t, srv)

	cli, err := transport.NewClientTransport(host, port)
	if err != nil {
		t.Fatalf("NewClientTransport(...); got unexpected error: %v", err)
	}
	defer cli.Shutdown()

	waitFor(t, func() bool { srv.AcceptOne(); return len(srv.ActiveClients()) == 1 })
	id := srv.ActiveClients()[0]

	want := wire.NewPing(wire.Server, id, 42)
	if err := srv.Send(id, want); err != nil {
		t.Fatalf("Send(%d, ...); got unexpected error: %v", id, err)
	}

	waitFor(t, func() bool { return cli.QueueLen() > 0 })
	p, ok := cli.PopPacket()
	if !ok {
		t.Fatal("PopPacket(); got ok = false, want true")
	}
	if p.Msg.Header.Type != wire.Ping || p.Msg.Ping.Time != 42 {
		t.Errorf("PopPacket() = %+v, want Ping{Time: 42}", p.Msg)
	}
}

func TestDisconnectDetectedByServer(t *testing.T) {
	srv := newServer(t)
	host, port := addr(t, srv)

	cli, err := transport.NewClientTransport(host, port)
	if err != nil {
		t.Fatalf("NewClientTransport(...); got unexpected error: %v", err)
	}
	waitFor(t, func() bool { srv.AcceptOne(); return len(srv.ActiveClients()) == 1 })

	cli.Shutdown()

	waitFor(t, func() bool { return len(srv.ActiveClients()) == 0 })
}

func TestTickSurfacesClientDisconnect(t *testing.T) {
	srv := newServer(t)
	host, port := addr(t, srv)

	cli, err := transport.NewClientTransport(host, port)
	if err != nil {
		t.Fatalf("NewClientTransport(...); got unexpected error: %v", err)
	}
	waitFor(t, func() bool { srv.AcceptOne(); return len(srv.ActiveClients()) == 1 })
	id := srv.ActiveClients()[0]
	srv.Disconnect(id)

	err = cli.Tick(2 * time.Second)
	if !errors.Is(err, transport.ErrDisconnected) {
		t.Errorf("Tick(...); got %v, want %v", err, transport.ErrDisconnected)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
