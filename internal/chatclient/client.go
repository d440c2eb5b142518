// Package chatclient implements the client-side chat state machine: the
// connect handshake that learns the client's own id from the server's
// first reply, a tick-driven run loop dispatching incoming messages, and
// interpretation of typed user input into outgoing wire messages.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wiretalk/chatline/pkg/transport"
	"github.com/wiretalk/chatline/pkg/wire"
)

// ConnectTimeout bounds how long Start waits for the server's welcome
// ACTIVE_USERS reply before giving up.
const ConnectTimeout = 10 * time.Second

// TickInterval is the poll timeout used between run-loop iterations.
const TickInterval = 1 * time.Second

// ErrConnectFailure reports that the connect handshake did not complete:
// the server never replied, replied with something other than
// ACTIVE_USERS, or the connection dropped mid-handshake.
var ErrConnectFailure = errors.New("chatclient: connect failure")

// RosterEntry is one user known to the client, for UI rendering. A user
// that disconnected is kept Active == false rather than removed, so past
// chat lines can still be attributed by id.
type RosterEntry struct {
	ID     uint16
	Name   string
	Active bool
}

// UI is the display sink a Client reports to. Implementations must not
// block long enough to stall the run loop's one-second tick cadence.
type UI interface {
	// Printf renders a formatted notice or chat line.
	Printf(format string, args ...interface{})
	// UpdateRoster is called whenever the known user list changes.
	UpdateRoster(users []RosterEntry)
}

type knownUser struct {
	Name   string
	Active bool
}

// Client holds one connected session's local view of the roster and
// drives the request/response logic described by the wire protocol.
type Client struct {
	transport *transport.Transport
	ui        UI

	selfID uint16
	users  map[uint16]*knownUser
}

// Start dials host:port, waits for the server's welcome ACTIVE_USERS
// reply, seeds the local roster from it, and adopts the reply's "to"
// field as the client's own id.
func Start(host, port string, ui UI) (*Client, error) {
	t, err := transport.NewClientTransport(host, port)
	if err != nil {
		return nil, err
	}

	c := &Client{transport: t, ui: ui, users: map[uint16]*knownUser{}}
	if err := c.handshake(); err != nil {
		t.Shutdown()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake() error {
	if err := c.transport.Tick(ConnectTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailure, err)
	}
	p, ok := c.transport.PopPacket()
	if !ok {
		return fmt.Errorf("%w: no welcome message received", ErrConnectFailure)
	}
	if p.Msg.Header.Type != wire.ActiveUsers {
		return fmt.Errorf("%w: expected %s, got %s", ErrConnectFailure, wire.ActiveUsers, p.Msg.Header.Type)
	}
	c.selfID = p.Msg.Header.To
	c.seedRoster(p.Msg.Users.Users)
	c.ui.UpdateRoster(c.roster())
	return nil
}

func (c *Client) seedRoster(users []wire.ActiveUser) {
	for _, u := range users {
		c.users[u.ID] = &knownUser{Name: u.Name, Active: true}
	}
}

// SelfID returns the id the server assigned during the connect handshake.
func (c *Client) SelfID() uint16 {
	return c.selfID
}

// Shutdown tears down the underlying connection.
func (c *Client) Shutdown() error {
	return c.transport.Shutdown()
}

// Run drives the client loop until ctx is canceled, lines is closed, or
// the server connection drops. lines carries raw user input, one line per
// send. A server disconnect ends the loop and returns the transport's
// disconnect error.
func (c *Client) Run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c.handleInput(line)
			continue
		default:
		}

		if err := c.transport.Tick(TickInterval); err != nil {
			if errors.Is(err, transport.ErrDisconnected) {
				c.ui.Printf("disconnected from server")
				return err
			}
		}

		for {
			p, ok := c.transport.PopPacket()
			if !ok {
				break
			}
			c.handleMessage(p.Msg)
		}
	}
}

// handleInput interprets one line of raw user input: "/ping" sends a
// PING, "/setname <name>" requests a rename, any other "/..." is dropped
// silently, and anything else is broadcast as a CHAT message.
func (c *Client) handleInput(line string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return
	case trimmed == "/ping":
		c.sendPing()
	case strings.HasPrefix(trimmed, "/setname "):
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, "/setname "))
		c.sendSetName(name)
	case strings.HasPrefix(trimmed, "/"):
		return
	default:
		c.sendChat(trimmed)
	}
}

func (c *Client) sendPing() {
	now := uint32(time.Now().Unix())
	if err := c.transport.Send(wire.Server, wire.NewPing(c.selfID, wire.Server, now)); err != nil {
		c.ui.Printf("ping failed: %v", err)
	}
}

func (c *Client) sendSetName(name string) {
	if len(name) > wire.MaxUsernameLen {
		c.ui.Printf("name too long: max %d characters", wire.MaxUsernameLen)
		return
	}
	msg := wire.NewUserSetName(c.selfID, wire.Server, c.selfID, name)
	if err := c.transport.Send(wire.Server, msg); err != nil {
		c.ui.Printf("setname failed: %v", err)
	}
}

func (c *Client) sendChat(text string) {
	if len(text) > wire.MaxChatLen {
		c.ui.Printf("message too long: max %d characters", wire.MaxChatLen)
		return
	}
	msg := wire.NewChat(c.selfID, wire.Server, text)
	if err := c.transport.Send(wire.Server, msg); err != nil {
		c.ui.Printf("send failed: %v", err)
	}
}

func (c *Client) handleMessage(m *wire.Message) {
	switch m.Header.Type {
	case wire.Ping:
		elapsed := uint32(time.Now().Unix()) - m.Ping.Time
		c.ui.Printf("pong (%ds)", elapsed)
	case wire.UserConnect:
		if _, known := c.users[m.User.ID]; !known {
			c.users[m.User.ID] = &knownUser{Name: m.User.Name, Active: true}
			c.ui.Printf("%s joined", c.displayName(m.User.ID))
			c.ui.UpdateRoster(c.roster())
		}
	case wire.UserDisconnect:
		if u, known := c.users[m.User.ID]; known {
			u.Active = false
			c.ui.Printf("%s left", c.displayName(m.User.ID))
			c.ui.UpdateRoster(c.roster())
		}
	case wire.UserSetName:
		old := c.displayName(m.User.ID)
		if u, known := c.users[m.User.ID]; known {
			u.Name = m.User.Name
		} else {
			c.users[m.User.ID] = &knownUser{Name: m.User.Name, Active: true}
		}
		if m.User.ID == c.selfID {
			c.ui.Printf("you are now known as %s", m.User.Name)
		} else {
			c.ui.Printf("%s is now known as %s", old, m.User.Name)
		}
		c.ui.UpdateRoster(c.roster())
	case wire.ActiveUsers:
		seen := make(map[uint16]bool, len(m.Users.Users))
		for _, u := range m.Users.Users {
			seen[u.ID] = true
			if existing, ok := c.users[u.ID]; ok {
				existing.Name, existing.Active = u.Name, true
			} else {
				c.users[u.ID] = &knownUser{Name: u.Name, Active: true}
			}
		}
		for id := range c.users {
			if !seen[id] {
				delete(c.users, id)
			}
		}
		c.ui.UpdateRoster(c.roster())
	case wire.Chat:
		if _, known := c.users[m.Header.From]; !known {
			c.ui.Printf("[ERROR] message from unknown user")
			return
		}
		if m.Header.To == wire.Server {
			c.ui.Printf("%s: %s", c.displayName(m.Header.From), m.Text.Text)
		} else {
			c.ui.Printf("[%s -> you]: %s", c.displayName(m.Header.From), m.Text.Text)
		}
	case wire.Error:
		c.ui.Printf("error: %s", m.Text.Text)
	}
}

func (c *Client) displayName(id uint16) string {
	if u, ok := c.users[id]; ok && u.Name != "" {
		return u.Name
	}
	return fmt.Sprintf("user%d", id)
}

func (c *Client) roster() []RosterEntry {
	entries := make([]RosterEntry, 0, len(c.users))
	for id, u := range c.users {
		entries = append(entries, RosterEntry{ID: id, Name: u.Name, Active: u.Active})
	}
	return entries
}
