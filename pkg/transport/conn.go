package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/wiretalk/chatline/pkg/wire"
)

// Conn wraps one TCP connection (either direction) with the length-prefixed
// message framing described in the protocol: each frame is a 2-byte
// big-endian length followed by exactly that many payload bytes, where the
// payload is itself one encoded wire.Message.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader

	wmu sync.Mutex // Serializes writes; see the send failure note below.
}

// NewConn wraps an already-established net.Conn for framed messaging.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, r: bufio.NewReaderSize(nc, wire.MaxMessageLen)}
}

// RemoteAddr returns the address of the peer, used only for logging.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Send encodes msg and writes it as one length-prefixed frame.
//
// A single net.Conn.Write call either writes the full frame or returns an
// error; TCP writes through the standard library do not silently short-write
// the way the original C implementation's single send(2) call could. This
// method still checks the returned count and reports ErrSendFailure if it
// ever sees fewer bytes written than requested, matching the protocol's
// documented (if since-hardened) send semantics instead of silently
// retrying a partial write.
func (c *Conn) Send(msg *wire.Message) error {
	payload, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	if len(payload) > wire.MaxMessageLen {
		return fmt.Errorf("%w: payload of %d bytes exceeds frame maximum %d", ErrSendFailure, len(payload), wire.MaxMessageLen)
	}

	frame := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(payload)))
	copy(frame[2:], payload)

	c.wmu.Lock()
	n, err := c.nc.Write(frame)
	c.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrSendFailure, n, len(frame))
	}
	return nil
}

// Recv blocks until one full frame arrives, decodes its payload, and
// returns the resulting message. It reports ErrDisconnected if the peer
// closed the connection cleanly before any bytes of a new frame arrived,
// and ErrMalformedFrame if the length prefix or payload is truncated
// mid-frame (see the design notes on partial reads).
func (c *Conn) Recv() (*wire.Message, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, ErrDisconnected
		}
		return nil, fmt.Errorf("%w: reading length prefix: %v", ErrMalformedFrame, err)
	}
	length := binary.BigEndian.Uint16(lenBuf[:])
	if int(length) > wire.MaxMessageLen {
		return nil, fmt.Errorf("%w: declared frame length %d exceeds maximum %d", ErrMalformedFrame, length, wire.MaxMessageLen)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, fmt.Errorf("%w: reading %d-byte payload: %v", ErrMalformedFrame, length, err)
	}

	msg, err := wire.Decode(payload)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
