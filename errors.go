package synthvid

import "errors"

// Operation outcomes surfaced to callers. Every failure is scoped to the
// operation that triggered it, prior state (negotiated version, committed
// geometry) stays intact.
var (
	// ErrBadArgument covers argument validation failures, rejected before
	// any message is sent.
	ErrBadArgument = errors.New("bad argument")

	// ErrCapacity means the required byte footprint exceeds the current
	// VRAM length. Distinct from ErrBadArgument so callers can tell "will
	// never fit this session" from "bad input".
	ErrCapacity = errors.New("insufficient video memory")

	// ErrUnsupported is returned when the remote explicitly rejects a
	// proposed protocol version.
	ErrUnsupported = errors.New("unsupported")

	// ErrProtocol marks a protocol consistency failure, such as an ack
	// whose echoed token does not match what was sent.
	ErrProtocol = errors.New("protocol consistency error")

	// ErrNoResources is a resource allocation failure.
	ErrNoResources = errors.New("no resources")

	ErrChannelClosed = errors.New("channel closed")

	ErrRequestTimeout = errors.New("request timed out")

	// ErrTransactionPending is a caller logic error, at most one
	// transaction per id may be outstanding at a time.
	ErrTransactionPending = errors.New("transaction already pending for id")
)
