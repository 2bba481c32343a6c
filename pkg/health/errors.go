package health

import "errors"

// ErrTransport marks listener or TLS setup failures; they are fatal at start.
var ErrTransport = errors.New("health: transport error")
