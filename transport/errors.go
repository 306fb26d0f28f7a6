package transport

import "errors"

// Errors surfaced by a ClientTransport. Use errors.Is to test for them; the
// returned errors wrap the underlying cause.
var (
	// ErrConnect is returned when the socket to the bulb cannot be established.
	ErrConnect = errors.New("transport: connect failed")

	// ErrIO is returned when writing to an open socket fails. The connection
	// is closed afterwards.
	ErrIO = errors.New("transport: i/o failure")

	// ErrDisconnected is delivered to every pending call once the connection
	// closes, and returned immediately for calls attempted afterwards.
	ErrDisconnected = errors.New("transport: disconnected")

	// ErrTimeout is returned when the caller's context ends before the
	// response arrives.
	ErrTimeout = errors.New("transport: call abandoned")

	// ErrDuplicateID is returned by Tracker.Register for an id that is
	// already outstanding.
	ErrDuplicateID = errors.New("transport: duplicate correlation id")

	// ErrSubscriptionClosed is returned when closing a subscription twice.
	ErrSubscriptionClosed = errors.New("transport: subscription closed")

	errClosedByClient = errors.New("closed by client")
)
