package transport

import "errors"

// Sentinel errors surfaced by the transport layer. Names mirror the
// semantic error kinds the protocol distinguishes; compare with
// errors.Is, not string matching.
var (
	// ErrNoData reports that a non-blocking read found nothing pending.
	ErrNoData = errors.New("transport: no data available")
	// ErrDisconnected reports that the peer closed its side of the
	// connection (a clean EOF on the length prefix).
	ErrDisconnected = errors.New("transport: socket disconnected")
	// ErrNoNewConnections reports that a non-blocking accept found no
	// pending connection.
	ErrNoNewConnections = errors.New("transport: no new connections")
	// ErrTooManyConnections reports that the roster is at capacity; the
	// triggering connection has already been closed.
	ErrTooManyConnections = errors.New("transport: too many connections")
	// ErrMalformedFrame reports that the connection ended or failed partway
	// through a frame's length prefix or payload, or that the declared
	// length exceeds the maximum. Reads block until a frame is complete, so
	// a frame split across several TCP segments is not an error.
	ErrMalformedFrame = errors.New("transport: malformed frame")
	// ErrSendFailure reports that a send wrote fewer bytes than the framed
	// message required.
	ErrSendFailure = errors.New("transport: send failure")
	// ErrPollFailure reports that waiting for transport readiness failed.
	ErrPollFailure = errors.New("transport: poll failure")
	// ErrServerStartFailure reports that a server transport failed to bind
	// or listen.
	ErrServerStartFailure = errors.New("transport: server start failure")
	// ErrClientStartFailure reports that a client transport failed to
	// connect.
	ErrClientStartFailure = errors.New("transport: client start failure")
	// ErrUninitialized reports an operation attempted before the
	// transport's role was established.
	ErrUninitialized = errors.New("transport: uninitialized")
	// ErrAlreadyInitialized reports a second attempt to start a transport
	// that already has a role.
	ErrAlreadyInitialized = errors.New("transport: already initialized")
	// ErrInvalidCommand reports an operation that is not legal for the
	// transport's current role.
	ErrInvalidCommand = errors.New("transport: invalid command for current role")
	// ErrClientNotFound reports an operation addressed to an id absent
	// from the roster.
	ErrClientNotFound = errors.New("transport: client not found")
)
