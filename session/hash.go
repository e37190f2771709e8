package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/linehash/digest"
	"github.com/luma/linehash/protocol"
)

// State is a step of the hash protocol.
type State int

const (
	AwaitCount State = iota
	AckSent
	AwaitLine
	LineAnswered
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitCount:
		return "AWAIT_COUNT"
	case AckSent:
		return "ACK_SENT"
	case AwaitLine:
		return "AWAIT_LINE"
	case LineAnswered:
		return "LINE_ANSWERED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// LineTooLongError ends a session when a line exceeds digest.MaxLineLength.
type LineTooLongError struct {
	// LineNumber is 1-based.
	LineNumber int
}

func (e *LineTooLongError) Error() string {
	return fmt.Sprintf("line %d has more than %d chars", e.LineNumber, digest.MaxLineLength)
}

func (e *LineTooLongError) Unwrap() error {
	return digest.ErrLineTooLong
}

// HashHandler serves the fixed-count hash protocol. It keeps no state between
// connections.
type HashHandler struct {
	readTimeout time.Duration
	log         *zap.Logger
}

func NewHashHandler(options Options) *HashHandler {
	return &HashHandler{
		readTimeout: options.ReadTimeout,
		log:         options.logger().Named("hash"),
	}
}

func (h *HashHandler) Serve(ctx context.Context, conn net.Conn) error {
	s := NewHashSession(conn, h.readTimeout, h.log.With(remoteAddr(conn)))
	return s.Run(ctx)
}

// HashSession is the state of one hash protocol connection. It is owned by
// the goroutine calling Run.
type HashSession struct {
	conn        net.Conn
	r           *bufio.Reader
	readTimeout time.Duration

	state    State
	expected int
	index    int

	log *zap.Logger
}

func NewHashSession(conn net.Conn, readTimeout time.Duration, log *zap.Logger) *HashSession {
	return &HashSession{
		conn:        conn,
		r:           protocol.NewReader(conn),
		readTimeout: readTimeout,
		state:       AwaitCount,
		log:         log,
	}
}

func (s *HashSession) State() State {
	return s.state
}

// Answered is the number of lines answered so far.
func (s *HashSession) Answered() int {
	return s.index
}

// Run drives the session until every declared line is answered, the client
// misbehaves, or the connection fails. The caller closes the connection.
func (s *HashSession) Run(ctx context.Context) (err error) {
	defer func() {
		s.state = Closed
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch s.state {
		case AwaitCount:
			err = s.awaitCount()

		case AckSent, LineAnswered:
			if s.index == s.expected {
				s.log.Info("All requests answered", zap.Int("requests", s.expected))
				return nil
			}

			s.state = AwaitLine

		case AwaitLine:
			err = s.awaitLine()

		default:
			return nil
		}

		if err != nil {
			return err
		}
	}
}

func (s *HashSession) awaitCount() error {
	if err := armReadDeadline(s.conn, s.readTimeout); err != nil {
		return err
	}

	n, err := protocol.ReadCount(s.r)
	if err != nil {
		var countErr *protocol.CountError
		if errors.As(err, &countErr) {
			s.log.Warn("Rejecting handshake", zap.String("count", countErr.Raw))
			return multierr.Append(err, protocol.WriteCountRejected(s.conn, countErr))
		}

		return fmt.Errorf("Failed to read request count: %w", err)
	}

	s.expected = n

	s.log.Info("Initialization complete",
		zap.Int("type", int(protocol.TypeInit)),
		zap.Int("requests", n))

	if err := protocol.WriteAck(s.conn, n); err != nil {
		return fmt.Errorf("Failed to acknowledge: %w", err)
	}

	s.state = AckSent
	return nil
}

func (s *HashSession) awaitLine() error {
	if err := armReadDeadline(s.conn, s.readTimeout); err != nil {
		return err
	}

	req, err := protocol.ReadLineRequest(s.r)
	switch {
	case errors.Is(err, protocol.ErrMessageTooLarge):
		return s.rejectLine()

	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: received %d of %d", ErrIncomplete, s.index, s.expected)

	case err != nil:
		return fmt.Errorf("Failed to read line %d: %w", s.index+1, err)
	}

	if len(req.Line) > digest.MaxLineLength {
		return s.rejectLine()
	}

	s.log.Debug("Data",
		zap.Int("type", int(protocol.TypeData)),
		zap.Int("index", s.index),
		zap.String("line", req.Line))

	d, err := digest.Encode(req.Line)
	if err != nil {
		return err
	}

	if err := protocol.WriteHash(s.conn, s.index, d, req); err != nil {
		return fmt.Errorf("Failed to reply to line %d: %w", s.index+1, err)
	}

	s.index++
	s.state = LineAnswered

	return nil
}

func (s *HashSession) rejectLine() error {
	lineErr := &LineTooLongError{LineNumber: s.index + 1}
	s.log.Warn("Rejecting line", zap.Error(lineErr))

	return multierr.Append(lineErr, protocol.WriteLineTooLong(s.conn, lineErr.LineNumber))
}
