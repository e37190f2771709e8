package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Handler serves a single accepted connection. The connection is closed by
// the transport once Serve returns, whatever the outcome.
type Handler interface {
	Serve(ctx context.Context, conn net.Conn) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, conn net.Conn) error

func (f HandlerFunc) Serve(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

var ErrAlreadyStarted = errors.New("TCP server already started")

type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool

	numListeners int
	listeners    []*TCPListener

	handler Handler

	mu       sync.Mutex
	doneChan chan struct{}

	log *zap.Logger
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if !options.Reuseport {
		// Without SO_REUSEPORT only one socket can bind the port
		numListeners = 1
	} else if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		handler:      options.Handler,
		doneChan:     make(chan struct{}),
		log:          log,
	}
}

// Start binds every listener and then runs their accept loops in the
// background. It returns an error, after releasing anything already bound, if
// any listener cannot bind.
func (w *TCP) Start(parentCtx context.Context) error {
	if w.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	addr := w.addr
	for i := 0; i < w.numListeners; i++ {
		listener, err := w.bind(ctx, addr, i)
		if err != nil {
			cancel()
			return multierr.Append(
				fmt.Errorf("Failed to listen on %s: %w", addr, err),
				w.closeListeners(),
			)
		}

		// Later listeners must share the port the first one bound, which
		// matters when Port is 0
		addr = listener.Addr().String()
	}

	for _, listener := range w.listeners {
		w.stopWaiter.Add(1)

		go func(listener *TCPListener) {
			defer w.stopWaiter.Done()

			if err := listener.Serve(); err != nil {
				w.log.Error("Listener stopped accepting", zap.Error(err))
			}
		}(listener)
	}

	return nil
}

func (w *TCP) bind(ctx context.Context, addr string, index int) (*TCPListener, error) {
	var (
		ln  net.Listener
		err error
	)

	if w.reuseport {
		ln, err = reuseport.Listen("tcp", addr)
	} else {
		ln, err = net.Listen("tcp", addr)
	}

	if err != nil {
		return nil, err
	}

	listener := NewTCPListener(
		ctx,
		ln,
		w.handler,
		w.log.Named("listener").With(zap.Int("listener", index)),
	)

	w.listeners = append(w.listeners, listener)

	return listener, nil
}

// Addr returns the address the server is listening on, or nil before Start.
func (w *TCP) Addr() net.Addr {
	if len(w.listeners) == 0 {
		return nil
	}

	return w.listeners[0].Addr()
}

// Done is closed once the server stops accepting connections.
func (w *TCP) Done() <-chan struct{} {
	return w.doneChan
}

// StopAccepting closes every listener but leaves established sessions
// running. It is safe to call from inside a Handler.
func (w *TCP) StopAccepting() error {
	w.closeDoneChan()

	var err error
	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.StopAccepting())
	}

	return err
}

// Shutdown stops accepting connections, waits for active sessions to finish
// until ctx is done, then closes whatever is left.
//
// Shutdown must not be called from inside a Handler as it waits for that
// handler to return. Use StopAccepting there instead.
func (w *TCP) Shutdown(ctx context.Context) error {
	w.log.Info("Shutting down TCP server")

	err := w.StopAccepting()

	drained := make(chan struct{})
	go func() {
		w.stopWaiter.Wait()
		for _, listener := range w.listeners {
			listener.Wait()
		}
		close(drained)
	}()

	select {
	case <-drained:
		w.log.Info("All sessions finished")

	case <-ctx.Done():
		w.log.Warn("Sessions still active, forcing them closed", zap.Error(ctx.Err()))
	}

	return multierr.Append(err, w.Close())
}

// Close immediately closes all active listeners and connections.
//
// For a graceful shutdown, use Shutdown()
func (w *TCP) Close() error {
	w.log.Info("Stopping TCP server")

	if w.cancel != nil {
		w.cancel()
	}

	w.closeDoneChan()
	err := w.closeListeners()

	w.stopWaiter.Wait()
	for _, listener := range w.listeners {
		listener.Wait()
	}

	w.log.Info("TCP server stopped")

	return err
}

func (w *TCP) closeListeners() (err error) {
	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.Close())
	}

	return err
}

func (w *TCP) closeDoneChan() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.doneChan:
		// Already closed.
	default:
		close(w.doneChan)
	}
}

type TCPListener struct {
	ctx context.Context

	listener  net.Listener
	closeOnce sync.Once
	closeErr  error

	handler Handler
	log     *zap.Logger

	mu          sync.Mutex
	closed      bool
	activeConns map[*TCPConn]struct{}
	connWaiter  sync.WaitGroup
}

func NewTCPListener(
	ctx context.Context,
	listener net.Listener,
	handler Handler,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		listener:    listener,
		activeConns: make(map[*TCPConn]struct{}),
		handler:     handler,
		log:         log,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// StopAccepting closes the listening socket. Established connections are
// unaffected.
func (t *TCPListener) StopAccepting() error {
	t.closeOnce.Do(func() {
		t.log.Info("Closing listener")
		t.closeErr = t.listener.Close()
	})

	return t.closeErr
}

// Close stops accepting and closes every active connection.
func (t *TCPListener) Close() error {
	err := t.StopAccepting()

	t.mu.Lock()
	t.closed = true
	conns := make([]*TCPConn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	return err
}

// Wait blocks until every connection accepted by this listener has finished.
// Only call it once Serve has returned.
func (t *TCPListener) Wait() {
	t.connWaiter.Wait()
}

// Serve accepts connections until the listener is closed, serving each one on
// its own goroutine.
func (t *TCPListener) Serve() error {
	var backoff time.Duration

	t.log.Info("Listening", zap.Stringer("addr", t.listener.Addr()))

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				t.log.Info("Stopped accepting new connections")
				return nil
			}

			// Per-connection failures (e.g. the peer reset before accept
			// finished) must not stop the listener
			backoff = nextBackoff(backoff)
			t.log.Warn("Accept failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			time.Sleep(backoff)
			continue
		}

		backoff = 0

		tcpConn := NewTCPConn(t.ctx, conn, t.handler, t.log.Named("conn"))
		if !t.addConn(tcpConn) {
			_ = tcpConn.Close()
			continue
		}

		t.connWaiter.Add(1)
		go func() {
			defer t.connWaiter.Done()
			defer t.removeConn(tcpConn)

			tcpConn.Start()
		}()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}

	if d *= 2; d > time.Second {
		d = time.Second
	}

	return d
}

// addConn tracks conn, or returns false if the listener has been closed.
func (t *TCPListener) addConn(conn *TCPConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.activeConns[conn] = struct{}{}
	return true
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}
