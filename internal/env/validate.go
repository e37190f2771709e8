package env

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	// MinServerPort is the lowest port a server may listen on, ports at or
	// below it are privileged.
	MinServerPort = 1025
	MaxPort       = 65535
)

var ErrInvalidPort = errors.New("Invalid port")

func ValidateServerPort(port int) error {
	if port < MinServerPort || port > MaxPort {
		return fmt.Errorf("%w: -p / --port must be between %d and %d, got %d", ErrInvalidPort, MinServerPort, MaxPort, port)
	}

	return nil
}

// MarkFlagsRequired marks each named flag in flags as required.
func MarkFlagsRequired(flags *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		if err := cobra.MarkFlagRequired(flags, name); err != nil {
			return err
		}
	}

	return nil
}
