package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luma/linehash/client"
	"github.com/luma/linehash/internal/env"
)

var ConsoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to a linehash server in command mode",
	Long: `Talk to a linehash server in command mode

Prompts for the server address, or "default" for LINEHASH_DEFAULT_SERVER, then
for commands:

	MSGGET    print the message of the day
	MSGSTORE  replace the message of the day
	QUIT      disconnect
	SHUTDOWN  stop the server, asks for its password

Usage
	linehash console

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		console := client.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), conf.DefaultServer, log.Named("console"))
		return console.Run(ctx)
	},
}
