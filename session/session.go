// Package session implements the server side of a linehash connection: the
// fixed-count hash protocol and the message-of-the-day command loop.
package session

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Mode selects which protocol a server speaks.
type Mode string

const (
	ModeHash    Mode = "hash"
	ModeCommand Mode = "command"
)

var (
	ErrUnknownMode = errors.New("Unknown server mode")

	// ErrIncomplete is returned when the client disconnects before sending
	// every line it declared in the handshake.
	ErrIncomplete = errors.New("Client sent fewer lines than it declared")
)

var Modes = []Mode{ModeHash, ModeCommand}

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == strings.ToLower(strings.TrimSpace(s)) {
			return m, nil
		}
	}

	return "", fmt.Errorf("%w %q, expected one of %v", ErrUnknownMode, s, Modes)
}

// Options are shared by every session handler.
type Options struct {
	// ReadTimeout bounds how long a session waits for the client's next
	// message. Zero waits forever.
	ReadTimeout time.Duration

	Log *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}

	return o.Log
}

func armReadDeadline(conn net.Conn, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}

	return conn.SetReadDeadline(time.Now().Add(timeout))
}

func remoteAddr(conn net.Conn) zap.Field {
	if addr := conn.RemoteAddr(); addr != nil {
		return zap.String("remoteAddr", addr.String())
	}

	return zap.Skip()
}
