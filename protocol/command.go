package protocol

import "strings"

// Command is a client instruction in the command variant of the protocol.
type Command string

const (
	MSGGET   Command = "MSGGET"
	MSGSTORE Command = "MSGSTORE"
	QUIT     Command = "QUIT"
	SHUTDOWN Command = "SHUTDOWN"
)

// Commands lists every command the server understands.
var Commands = []Command{MSGGET, MSGSTORE, QUIT, SHUTDOWN}

// ParseCommand matches s, ignoring surrounding whitespace, against the known
// commands. Command names are case sensitive.
func ParseCommand(s string) (Command, bool) {
	s = strings.TrimSpace(s)

	for _, c := range Commands {
		if string(c) == s {
			return c, true
		}
	}

	return "", false
}

// HasArgument reports whether the command is followed by one extra line: the
// new message for MSGSTORE and the password for SHUTDOWN.
func (c Command) HasArgument() bool {
	return c == MSGSTORE || c == SHUTDOWN
}

type Status int

const (
	StatusOK                  Status = 200
	StatusUnauthorized        Status = 401
	StatusUnprocessableEntity Status = 422
)

func (s Status) Text() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusUnauthorized:
		return "Unauthorized"
	case StatusUnprocessableEntity:
		return "Unprocessable Entity"
	default:
		return "Unknown"
	}
}

// ResponseType is the "Type: N" tag of a response block.
type ResponseType int

const (
	TypeNone ResponseType = iota

	// TypeInit and TypeData are never sent on the wire. The server logs them
	// when the handshake completes and when a line is received.
	TypeInit
	TypeAck
	TypeData
	TypeHash
)
