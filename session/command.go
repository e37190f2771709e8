package session

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/luma/linehash/protocol"
	"github.com/luma/linehash/storage"
)

// CommandOptions configure a CommandHandler.
type CommandOptions struct {
	Options

	// Store holds the message of the day shared by every session.
	Store storage.Store

	// Password must follow SHUTDOWN for the server to stop.
	Password string

	// OnShutdown is called after a correct SHUTDOWN has been acknowledged. It
	// must not wait for sessions to finish.
	OnShutdown func()
}

// CommandHandler serves the message-of-the-day command loop.
type CommandHandler struct {
	store       storage.Store
	password    string
	onShutdown  func()
	readTimeout time.Duration
	log         *zap.Logger
}

func NewCommandHandler(options CommandOptions) *CommandHandler {
	return &CommandHandler{
		store:       options.Store,
		password:    options.Password,
		onShutdown:  options.OnShutdown,
		readTimeout: options.ReadTimeout,
		log:         options.logger().Named("command"),
	}
}

func (h *CommandHandler) Serve(ctx context.Context, conn net.Conn) error {
	log := h.log.With(remoteAddr(conn))
	r := protocol.NewReader(conn)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := armReadDeadline(conn, h.readTimeout); err != nil {
			return err
		}

		cmd, err := protocol.ReadCommand(r)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownCommand) {
				log.Info("Ignoring unknown command", zap.Error(err))
				continue
			}

			return err
		}

		log.Debug("Received command", zap.String("command", string(cmd)))

		done, err := h.dispatch(ctx, cmd, r, conn, log)
		if err != nil {
			return fmt.Errorf("Failed to handle %s: %w", cmd, err)
		}

		if done {
			return nil
		}
	}
}

// dispatch runs one command. done is true when the session should end.
func (h *CommandHandler) dispatch(
	ctx context.Context,
	cmd protocol.Command,
	r *bufio.Reader,
	conn net.Conn,
	log *zap.Logger,
) (done bool, err error) {
	switch cmd {
	case protocol.MSGGET:
		motd, err := h.store.Get(ctx, storage.MessageOfTheDayKey)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return true, err
		}

		if motd == "" {
			return false, protocol.WriteOk(conn)
		}

		return false, protocol.WriteOk(conn, motd)

	case protocol.MSGSTORE:
		motd, err := protocol.ReadLine(r)
		if err != nil {
			return true, err
		}

		if err := h.store.Set(ctx, storage.MessageOfTheDayKey, string(motd)); err != nil {
			return true, err
		}

		log.Info("Message of the day updated")
		return false, protocol.WriteOk(conn)

	case protocol.QUIT:
		log.Info("Client QUIT, exiting...")
		return true, protocol.WriteOk(conn)

	case protocol.SHUTDOWN:
		password, err := protocol.ReadLine(r)
		if err != nil {
			return true, err
		}

		if subtle.ConstantTimeCompare(password, []byte(h.password)) != 1 {
			log.Warn("Rejected SHUTDOWN with a wrong password")
			return false, protocol.WriteStatus(conn, protocol.StatusUnauthorized, "password error")
		}

		if err := protocol.WriteOk(conn); err != nil {
			return true, err
		}

		log.Info("SHUTDOWN accepted, stopping listener")
		if h.onShutdown != nil {
			h.onShutdown()
		}

		return true, nil
	}

	return false, nil
}
