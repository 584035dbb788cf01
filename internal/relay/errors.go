package relay

import "errors"

var (
	ErrTooManyConnections = errors.New("too many connections")
	ErrServerClosed       = errors.New("relay server closed")

	// errPeerClosed is the reader's exit cause when the peer sent a close frame.
	errPeerClosed = errors.New("peer closed connection")
	// errHandleClosed is the forwarder's exit cause once the delivery handle
	// has been closed.
	errHandleClosed = errors.New("delivery handle closed")
	errRouterPanic  = errors.New("panic while routing frame")
)
