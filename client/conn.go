package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luma/linehash/protocol"
)

var (
	ErrNotConnected      = errors.New("Client is not connected")
	ErrShutdownRejected  = errors.New("Server rejected the shutdown password")
	ErrInvalidMessage    = errors.New("Message of the day must be a single line")
	ErrUnexpectedReplyTo = errors.New("Server sent an unexpected reply to")
)

// Conn is a client connection to a linehash server. It is safe for
// concurrent use: each request and its reply form one exchange, and exchanges
// never interleave.
type Conn struct {
	// mu is held from the first byte of a request until its reply has been
	// read
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader

	log *zap.Logger
}

func New(log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}

	return &Conn{
		log: log,
	}
}

func (c *Conn) Connect(ctx context.Context, addr string) error {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.r = protocol.NewReader(conn)
	c.mu.Unlock()

	c.log.Debug("Connected", zap.String("addr", addr))

	return nil
}

// Disconnect closes the connection. Exchanges in flight fail.
func (c *Conn) Disconnect() error {
	conn := c.conn
	if conn == nil {
		return ErrNotConnected
	}

	return conn.Close()
}

// RoundTrip writes one request with write and reads the server's reply while
// holding the connection. The exchange is interrupted once ctx is done,
// otherwise it waits as long as the server does.
func (c *Conn) RoundTrip(ctx context.Context, write func(w io.Writer) error) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		// Unblocks the read below
		_ = c.conn.SetDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			// Clear the deadline set by the interrupt
			_ = c.conn.SetDeadline(time.Time{})
		}
	}()

	resp, err := c.roundTrip(write)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
	}

	return resp, err
}

func (c *Conn) roundTrip(write func(w io.Writer) error) (*protocol.Response, error) {
	if err := write(c.conn); err != nil {
		return nil, fmt.Errorf("Failed to send request: %w", err)
	}

	resp, err := protocol.ReadResponse(c.r)
	if err != nil {
		return nil, fmt.Errorf("Failed to read response: %w", err)
	}

	return resp, nil
}

// Handshake declares how many lines will follow.
func (c *Conn) Handshake(ctx context.Context, numRequests int) (*protocol.Response, error) {
	resp, err := c.RoundTrip(ctx, func(w io.Writer) error {
		return protocol.WriteCount(w, numRequests)
	})
	if err != nil {
		return nil, err
	}

	if err := resp.AsStatusError(); err != nil {
		return resp, err
	}

	if resp.Type != protocol.TypeAck {
		return resp, fmt.Errorf("%w handshake: %q", ErrUnexpectedReplyTo, resp.String())
	}

	return resp, nil
}

// Hash sends one line and returns the server's reply. When the server answers
// with an error the response is returned alongside it.
func (c *Conn) Hash(ctx context.Context, req protocol.LineRequest) (*protocol.Response, error) {
	resp, err := c.RoundTrip(ctx, func(w io.Writer) error {
		return protocol.WriteLineRequest(w, req)
	})
	if err != nil {
		return nil, err
	}

	if err := resp.AsStatusError(); err != nil {
		return resp, err
	}

	if resp.Type != protocol.TypeHash {
		return resp, fmt.Errorf("%w line %q: %q", ErrUnexpectedReplyTo, req.Line, resp.String())
	}

	return resp, nil
}

// Command sends a command-mode instruction and its argument, if it takes one.
func (c *Conn) Command(ctx context.Context, cmd protocol.Command, arg string) (*protocol.Response, error) {
	if cmd.HasArgument() && strings.ContainsAny(arg, "\r\n") {
		return nil, ErrInvalidMessage
	}

	return c.RoundTrip(ctx, func(w io.Writer) error {
		return protocol.WriteCommand(w, cmd, arg)
	})
}

// MessageOfTheDay fetches the server's current message.
func (c *Conn) MessageOfTheDay(ctx context.Context) (string, error) {
	resp, err := c.Command(ctx, protocol.MSGGET, "")
	if err != nil {
		return "", err
	}

	if err := resp.AsStatusError(); err != nil {
		return "", err
	}

	return strings.Join(resp.Lines[1:], "\n"), nil
}

// StoreMessageOfTheDay replaces the server's message for every client.
func (c *Conn) StoreMessageOfTheDay(ctx context.Context, message string) error {
	resp, err := c.Command(ctx, protocol.MSGSTORE, message)
	if err != nil {
		return err
	}

	return resp.AsStatusError()
}

// Quit asks the server to close the connection.
func (c *Conn) Quit(ctx context.Context) error {
	resp, err := c.Command(ctx, protocol.QUIT, "")
	if err != nil {
		return err
	}

	return resp.AsStatusError()
}

// Shutdown asks the server to stop listening. A wrong password returns
// ErrShutdownRejected and leaves the connection usable.
func (c *Conn) Shutdown(ctx context.Context, password string) error {
	resp, err := c.Command(ctx, protocol.SHUTDOWN, password)
	if err != nil {
		return err
	}

	if resp.Status == protocol.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrShutdownRejected, resp.AsStatusError())
	}

	return resp.AsStatusError()
}
