package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/linehash/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "linehash",
	Short: "Hash lines of text over TCP",
	Long: `linehash is a small client/server protocol for hashing short lines of
text over a persistent TCP connection.

Usage
	linehash server -p 5000
	linehash client -a 127.0.0.1 -p 5000 -n 2 --size-minimum 1 --size-maximum 10 -f lines.txt
	linehash console
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.AddCommand(ServerCmd)
	RootCmd.AddCommand(ClientCmd)
	RootCmd.AddCommand(ConsoleCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

// Execute runs the command line and exits with status 1 on any error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
