package playback

import "github.com/cockroachdb/errors"

// Errors
var (
	// ErrCommandRejected means the backend does not support the
	// operation. Surfaced to the caller immediately, never retried.
	ErrCommandRejected = errors.New("command not supported by backend")
	// ErrTransportUnavailable means the network or channel is down.
	// Commands fail fast; the adapter keeps its last-known state and
	// resynchronizes after reconnect.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrMalformedDelta means a push payload failed shape checks. The
	// delta is dropped and prior state retained.
	ErrMalformedDelta = errors.New("malformed delta")
	// ErrNoBackend means the facade has no adapter bound.
	ErrNoBackend = errors.New("no playback backend selected")
)
