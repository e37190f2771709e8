package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// TCPConn owns one accepted connection for the lifetime of its session.
type TCPConn struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn    net.Conn
	handler Handler

	closeOnce sync.Once
	closeErr  error

	log *zap.Logger
}

func NewTCPConn(
	parentCtx context.Context,
	conn net.Conn,
	handler Handler,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:     ctx,
		cancel:  cancel,
		conn:    conn,
		handler: handler,
		log:     log.With(zap.String("remoteAddr", conn.RemoteAddr().String())),
	}
}

// Start runs the handler and closes the connection when it returns. A failing
// session is logged and never affects other connections.
func (t *TCPConn) Start() {
	t.log.Info("Server connected to client")

	defer func() {
		if r := recover(); r != nil {
			t.log.Error("Session panicked", zap.Any("panic", r), zap.Stack("stack"))
		}

		if err := t.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.log.Warn("Connection did not close cleanly", zap.Error(err))
		}

		t.log.Info("Client disconnected")
	}()

	if t.handler == nil {
		t.log.Error("No handler configured, dropping connection")
		return
	}

	err := t.handler.Serve(t.ctx, t.conn)

	switch {
	case err == nil:
		t.log.Debug("Session finished")

	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed) && t.ctx.Err() != nil:
		t.log.Info("Session ended by disconnect", zap.Error(err))

	default:
		t.log.Warn("Session ended with error", zap.Error(err))
	}
}

// Close closes the underlying connection. It is safe to call more than once
// and from any goroutine; a blocked Serve returns once its reads fail.
func (t *TCPConn) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.closeErr = t.conn.Close()
	})

	return t.closeErr
}
