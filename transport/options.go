package transport

import (
	"go.uber.org/zap"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on. 0 picks a free port, see TCP.Addr.
	Port int

	// Reuseport controls setting SO_REUSEPORT, which lets NumListeners
	// accept loops share the port.
	Reuseport bool

	// NumListeners is ignored unless Reuseport is set. It defaults to the
	// number of CPUs.
	NumListeners int

	// Handler serves every accepted connection.
	Handler Handler

	Log *zap.Logger
}
