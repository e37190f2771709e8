package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/linehash/internal/admin"
	"github.com/luma/linehash/internal/env"
	"github.com/luma/linehash/session"
	"github.com/luma/linehash/storage"
	"github.com/luma/linehash/transport"
)

// ShutdownTimeout is how long active sessions get to finish once the server
// is asked to stop.
const ShutdownTimeout = 5 * time.Second

var serverFlags struct {
	// The host to listen on
	host string

	// The port to listen for tcp clients on
	port int

	// The port to listen for http requests on, empty disables the admin API
	httpPort string

	mode         string
	numListeners int
	reuseport    bool
}

func init() {
	flags := ServerCmd.Flags()

	flags.IntVarP(&serverFlags.port, "port", "p", 0, "The port to listen for client connections on, must be greater than 1024")
	flags.StringVarP(&serverFlags.host, "host", "a", "0.0.0.0", "The host to listen on")
	flags.StringVar(&serverFlags.mode, "mode", string(session.ModeHash), `The protocol to serve, "hash" or "command"`)
	flags.IntVar(&serverFlags.numListeners, "listeners", 1, "The number of accept loops sharing the port, more than 1 implies --reuseport")
	flags.BoolVar(&serverFlags.reuseport, "reuseport", false, "Set SO_REUSEPORT on the listening socket")
	flags.StringVar(&serverFlags.httpPort, "http-port", "", "The port to serve the admin HTTP API on, disabled when empty")

	if err := env.MarkFlagsRequired(flags, "port"); err != nil {
		panic(err)
	}
}

var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start a linehash server",
	Long: `Start a linehash server

In hash mode every client declares a number of lines, then sends them one by
one and receives each line's digest. In command mode clients read and replace
a shared message of the day, and may stop the server with SHUTDOWN.

Usage
	linehash server -p 5000
	linehash server -p 5000 --mode command --http-port 8080

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if err := env.ValidateServerPort(serverFlags.port); err != nil {
			return err
		}

		mode, err := session.ParseMode(serverFlags.mode)
		if err != nil {
			return err
		}

		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync()

		fileLimit, err := setFileLimit()
		if err != nil {
			log.Warn("Could not raise the file limit", zap.Error(err))
		} else {
			log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))
		}

		store := storage.NewInmemoryStore()
		defer store.Close()

		if conf.MessageOfTheDay != "" {
			if err := store.Set(ctx, storage.MessageOfTheDayKey, conf.MessageOfTheDay); err != nil {
				return err
			}
		}

		go logUpdates(store, log.Named("storage"))

		var tcp *transport.TCP

		handler := newHandler(mode, conf, store, func() {
			log.Info("Shutdown requested by client")
			if err := tcp.StopAccepting(); err != nil {
				log.Warn("Failed to stop accepting connections", zap.Error(err))
			}
		}, log.Named("session"))

		tcp = transport.NewTCP(transport.Options{
			Host:         serverFlags.host,
			Port:         serverFlags.port,
			Reuseport:    serverFlags.reuseport || serverFlags.numListeners > 1,
			NumListeners: serverFlags.numListeners,
			Handler:      handler,
			Log:          log.Named("transport"),
		})

		// Sessions get their own context so they can drain after a signal
		if err := tcp.Start(context.Background()); err != nil {
			return err
		}

		var httpServer *http.Server
		if serverFlags.httpPort != "" {
			httpServer = startAdmin(conf, store, tcp, log.Named("http"))
		}

		log.Info("Listening",
			zap.String("mode", string(mode)),
			zap.String("host", serverFlags.host),
			zap.Int("port", serverFlags.port),
			zap.String("httpPort", serverFlags.httpPort))

		select {
		case <-ctx.Done():
			// Restore default behavior on the interrupt signal and notify user of shutdown.
			signalStop()
			log.Info("Shutting down gracefully, press Ctrl+C again to force")

		case <-tcp.Done():
			log.Info("Shutting down")
		}

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if httpServer != nil {
			httpServer.SetKeepAlivesEnabled(false)

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error("Http server forced to shutdown", zap.Error(err))
			}
		}

		if err := tcp.Shutdown(shutdownCtx); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func newHandler(mode session.Mode, conf *env.Config, store storage.Store, onShutdown func(), log *zap.Logger) transport.Handler {
	options := session.Options{
		ReadTimeout: conf.ReadTimeout,
		Log:         log,
	}

	if mode == session.ModeCommand {
		return session.NewCommandHandler(session.CommandOptions{
			Options:    options,
			Store:      store,
			Password:   conf.ShutdownPassword,
			OnShutdown: onShutdown,
		})
	}

	return session.NewHashHandler(options)
}

func startAdmin(conf *env.Config, store storage.Store, tcp *transport.TCP, log *zap.Logger) *http.Server {
	accepting := func() bool {
		select {
		case <-tcp.Done():
			return false
		default:
			return true
		}
	}

	s := &http.Server{
		Addr:              net.JoinHostPort(serverFlags.host, serverFlags.httpPort),
		Handler:           admin.NewRouter(conf.DebugHTTP, log, store, accepting),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Http server errored", zap.Error(err))
		}
	}()

	return s
}

func logUpdates(store storage.Store, log *zap.Logger) {
	for update := range store.ListenToUpdates() {
		log.Info("Message of the day changed", zap.String("key", update.Key), zap.String("value", update.Value))
	}
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
