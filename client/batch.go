package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luma/linehash/protocol"
)

// MaxPayloadSize is the largest per-line payload size a client may declare.
const MaxPayloadSize = 224

var (
	ErrInvalidOptions = errors.New("Invalid client options")
	ErrCountMismatch  = errors.New("Number of requests does not match number of lines in file")
)

// BatchOptions describe one batch run of the hash protocol.
type BatchOptions struct {
	Address string
	Port    int

	// NumRequests must equal the number of non-empty lines in File.
	NumRequests int

	// SizeMin and SizeMax bound the payload size declared for each line.
	SizeMin int
	SizeMax int

	File string

	// Raw sends bare lines without a declared payload size.
	Raw bool

	// Concurrency bounds in-flight requests, 0 means one goroutine per line.
	Concurrency int

	// Timeout bounds the whole run, 0 means no limit.
	Timeout time.Duration
}

func (o BatchOptions) Validate() error {
	switch {
	case o.NumRequests < 0:
		return fmt.Errorf("%w: -n / --num-requests must be greater than or equal to 0", ErrInvalidOptions)

	case o.SizeMin < 1:
		return fmt.Errorf("%w: --size-minimum must be greater than or equal to 1", ErrInvalidOptions)

	case o.SizeMax > MaxPayloadSize:
		return fmt.Errorf("%w: --size-maximum must be less than or equal to %d", ErrInvalidOptions, MaxPayloadSize)

	case o.SizeMin > o.SizeMax:
		return fmt.Errorf("%w: --size-minimum must not be greater than --size-maximum", ErrInvalidOptions)

	case o.Port < 1 || o.Port > 65535:
		return fmt.Errorf("%w: -p / --port must be between 1 and 65535", ErrInvalidOptions)

	case o.Concurrency < 0:
		return fmt.Errorf("%w: --concurrency must not be negative", ErrInvalidOptions)
	}

	return nil
}

func (o BatchOptions) Addr() string {
	return net.JoinHostPort(o.Address, strconv.Itoa(o.Port))
}

// ReadLines returns the trimmed, non-empty lines of r.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

func ReadLinesFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadLines(f)
}

// BuildRequests turns lines into requests. Unless raw is set, each request
// declares a payload size drawn uniformly from [sizeMin, sizeMax].
func BuildRequests(lines []string, raw bool, sizeMin, sizeMax int, rnd *rand.Rand) []protocol.LineRequest {
	reqs := make([]protocol.LineRequest, 0, len(lines))

	for _, line := range lines {
		if raw {
			reqs = append(reqs, protocol.NewLineRequest(line))
			continue
		}

		lBytes := sizeMin + rnd.Intn(sizeMax-sizeMin+1)
		reqs = append(reqs, protocol.NewSizedLineRequest(line, lBytes))
	}

	return reqs
}

// RunBatch validates options and the input file, then connects, performs the
// handshake, and dispatches every line. Nothing is sent if the file does not
// hold exactly NumRequests lines.
func RunBatch(ctx context.Context, opts BatchOptions, out io.Writer, log *zap.Logger) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	if log == nil {
		log = zap.NewNop()
	}

	lines, err := ReadLinesFromFile(opts.File)
	if err != nil {
		return fmt.Errorf("Failed to read %s: %w", opts.File, err)
	}

	if len(lines) != opts.NumRequests {
		return fmt.Errorf("%w: declared %d, found %d", ErrCountMismatch, opts.NumRequests, len(lines))
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	reqs := BuildRequests(lines, opts.Raw, opts.SizeMin, opts.SizeMax, rnd)

	conn := New(log.Named("conn"))
	if err := conn.Connect(ctx, opts.Addr()); err != nil {
		return fmt.Errorf("Failed to connect to %s: %w", opts.Addr(), err)
	}

	defer func() {
		if err := conn.Disconnect(); err != nil {
			log.Warn("Failed to disconnect cleanly", zap.Error(err))
		}
	}()

	ack, err := conn.Handshake(ctx, opts.NumRequests)
	if ack != nil {
		fmt.Fprintln(out, ack.String())
	}

	if err != nil {
		return fmt.Errorf("Handshake failed: %w", err)
	}

	return NewDispatcher(conn, out, opts.Concurrency, log.Named("dispatcher")).Run(ctx, reqs)
}
