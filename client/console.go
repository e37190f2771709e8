package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/luma/linehash/protocol"
)

// DefaultAddrKeyword makes the console connect to its default server.
const DefaultAddrKeyword = "default"

// Console is the interactive client for servers in command mode.
type Console struct {
	in  *bufio.Scanner
	out io.Writer

	defaultAddr string

	log *zap.Logger
}

func NewConsole(in io.Reader, out io.Writer, defaultAddr string, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}

	return &Console{
		in:          bufio.NewScanner(in),
		out:         out,
		defaultAddr: defaultAddr,
		log:         log,
	}
}

// Run asks for a server, then reads commands until QUIT, an accepted
// SHUTDOWN, or the end of input.
func (c *Console) Run(ctx context.Context) error {
	input, ok := c.prompt(`Enter the server IP address (or "default"): `)
	if !ok {
		return c.in.Err()
	}

	addr, err := c.resolveAddr(input)
	if err != nil {
		return err
	}

	conn := New(c.log.Named("conn"))
	if err := conn.Connect(ctx, addr); err != nil {
		return fmt.Errorf("Failed to connect to %s: %w", addr, err)
	}
	defer conn.Disconnect()

	fmt.Fprintf(c.out, "Connected to %s\n", addr)

	for {
		input, ok := c.prompt("Enter a command (MSGGET, MSGSTORE, QUIT, SHUTDOWN): ")
		if !ok {
			// End of input, leave politely
			return conn.Quit(ctx)
		}

		cmd, known := protocol.ParseCommand(input)
		if !known {
			fmt.Fprintf(c.out, "Unknown command %q\n", strings.TrimSpace(input))
			continue
		}

		done, err := c.run(ctx, conn, cmd)
		if err != nil || done {
			return err
		}
	}
}

func (c *Console) run(ctx context.Context, conn *Conn, cmd protocol.Command) (done bool, err error) {
	var arg string

	switch cmd {
	case protocol.MSGSTORE:
		if arg, err = c.requireInput("Enter the new message of the day: "); err != nil {
			return true, err
		}

	case protocol.SHUTDOWN:
		if arg, err = c.requireInput("Enter the shutdown password: "); err != nil {
			return true, err
		}
	}

	resp, err := conn.Command(ctx, cmd, arg)
	if errors.Is(err, ErrInvalidMessage) {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return false, nil
	}

	if err != nil {
		return true, err
	}

	fmt.Fprintln(c.out, resp.String())

	switch cmd {
	case protocol.QUIT:
		return true, nil

	case protocol.SHUTDOWN:
		// A wrong password leaves the session open
		return resp.IsOK(), nil
	}

	return false, nil
}

func (c *Console) prompt(text string) (string, bool) {
	fmt.Fprint(c.out, text)

	if !c.in.Scan() {
		return "", false
	}

	return c.in.Text(), true
}

func (c *Console) requireInput(text string) (string, error) {
	input, ok := c.prompt(text)
	if !ok {
		if err := c.in.Err(); err != nil {
			return "", err
		}

		return "", io.ErrUnexpectedEOF
	}

	return input, nil
}

// resolveAddr expands "default" and adds the default server's port to a bare
// host.
func (c *Console) resolveAddr(input string) (string, error) {
	input = strings.TrimSpace(input)

	if input == "" || strings.EqualFold(input, DefaultAddrKeyword) {
		return c.defaultAddr, nil
	}

	if _, _, err := net.SplitHostPort(input); err == nil {
		return input, nil
	}

	_, port, err := net.SplitHostPort(c.defaultAddr)
	if err != nil {
		return "", fmt.Errorf("Invalid default server %q: %w", c.defaultAddr, err)
	}

	return net.JoinHostPort(input, port), nil
}
