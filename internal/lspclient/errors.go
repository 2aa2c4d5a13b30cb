package lspclient

import "errors"

// ErrTimeout is returned when a request's deadline elapses before the
// server responds. The client remains usable after a timeout: only the
// individual call is abandoned.
var ErrTimeout = errors.New("lspclient: request timed out")

// ErrProtocol is returned when a frame cannot be decoded, or the
// connection drops unexpectedly. A client that returns ErrProtocol is
// marked dead and must not be reused.
var ErrProtocol = errors.New("lspclient: protocol error")

// ErrDead is returned by any call made against a client that has already
// been marked dead by a prior ErrProtocol or process exit.
var ErrDead = errors.New("lspclient: client is dead")
