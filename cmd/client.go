package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/linehash/client"
	"github.com/luma/linehash/internal/env"
)

var clientFlags client.BatchOptions

func init() {
	flags := ClientCmd.Flags()

	flags.StringVarP(&clientFlags.Address, "address", "a", "", "The server address")
	flags.IntVarP(&clientFlags.Port, "port", "p", 0, "The server port")
	flags.IntVarP(&clientFlags.NumRequests, "num-requests", "n", 0, "The number of lines in the file, must match exactly")
	flags.IntVar(&clientFlags.SizeMin, "size-minimum", 0, "The smallest payload size declared for a line, at least 1")
	flags.IntVar(&clientFlags.SizeMax, "size-maximum", 0, "The largest payload size declared for a line, at most 224")
	flags.StringVarP(&clientFlags.File, "file", "f", "", "The file of lines to hash")
	flags.BoolVar(&clientFlags.Raw, "raw", false, "Send bare lines without a declared payload size")
	flags.IntVar(&clientFlags.Concurrency, "concurrency", 0, "The maximum number of lines in flight, 0 for no limit")
	flags.DurationVar(&clientFlags.Timeout, "timeout", 0, "Give up after this long, 0 waits forever")

	if err := env.MarkFlagsRequired(flags, "address", "port", "num-requests", "size-minimum", "size-maximum", "file"); err != nil {
		panic(err)
	}
}

var ClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Hash every line of a file on a linehash server",
	Long: `Hash every line of a file on a linehash server

The file must contain exactly --num-requests non-empty lines of at most 16
characters. Lines are sent concurrently over one connection and each reply is
printed as it arrives.

Usage
	linehash client -a 127.0.0.1 -p 5000 -n 2 --size-minimum 1 --size-maximum 10 -f lines.txt

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := clientFlags.Validate(); err != nil {
			return err
		}

		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		log, err := clientLogger(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		started := time.Now()
		err = client.RunBatch(ctx, clientFlags, cmd.OutOrStdout(), log)

		log.Debug("Batch finished", zap.Duration("took", time.Since(started)), zap.Error(err))

		return err
	},
}

func clientLogger(ctx context.Context) (*zap.Logger, error) {
	conf, err := env.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}

	return env.MakeLogger(conf.LogLevel)
}
