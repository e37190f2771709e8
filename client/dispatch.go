package client

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luma/linehash/protocol"
)

// Dispatcher fans line requests out over a single Conn, one goroutine per
// line. The goroutines may run in any order; Conn keeps each request paired
// with its reply.
type Dispatcher struct {
	conn *Conn

	outMu sync.Mutex
	out   io.Writer

	// limit bounds the number of goroutines in flight, 0 means no bound
	limit int

	log *zap.Logger
}

func NewDispatcher(conn *Conn, out io.Writer, limit int, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}

	return &Dispatcher{
		conn:  conn,
		out:   out,
		limit: limit,
		log:   log,
	}
}

// Run sends every request and waits for all of them to finish. A failed
// request does not cancel the others; their errors are combined.
func (d *Dispatcher) Run(ctx context.Context, reqs []protocol.LineRequest) error {
	var (
		g     errgroup.Group
		errMu sync.Mutex
		errs  error
	)

	if d.limit > 0 {
		g.SetLimit(d.limit)
	}

	for _, req := range reqs {
		req := req

		g.Go(func() error {
			resp, err := d.conn.Hash(ctx, req)
			d.report(req, resp, err)

			if err != nil {
				errMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("line %q: %w", req.Line, err))
				errMu.Unlock()
			}

			// Never fail the group, siblings must keep running
			return nil
		})
	}

	_ = g.Wait()

	d.log.Debug("All requests finished",
		zap.Int("requests", len(reqs)),
		zap.Int("failed", len(multierr.Errors(errs))))

	return errs
}

func (d *Dispatcher) report(req protocol.LineRequest, resp *protocol.Response, err error) {
	d.outMu.Lock()
	defer d.outMu.Unlock()

	switch {
	case resp != nil:
		fmt.Fprintf(d.out, "%s\n\n", resp.String())

	case err != nil:
		d.log.Warn("Request failed", zap.String("line", req.Line), zap.Error(err))
		fmt.Fprintf(d.out, "Error: %v\n\n", err)
	}
}
