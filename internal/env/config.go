package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// DotEnvFile is loaded, if present, before the environment is read.
const DotEnvFile = ".env.local"

type Config struct {
	LogLevel  string `env:"LINEHASH_LOG_LEVEL,default=info"`
	DebugHTTP bool   `env:"LINEHASH_DEBUG_HTTP"`

	// ShutdownPassword is the secret a command mode client must send with
	// SHUTDOWN.
	ShutdownPassword string `env:"LINEHASH_SHUTDOWN_PASSWORD,default=123!abc"`

	// MessageOfTheDay seeds the message served by MSGGET.
	MessageOfTheDay string `env:"LINEHASH_MOTD"`

	// DefaultServer is where the console connects when asked for "default".
	DefaultServer string `env:"LINEHASH_DEFAULT_SERVER,default=127.0.0.1:5000"`

	// ReadTimeout bounds how long a session waits for the next message, 0
	// waits forever.
	ReadTimeout time.Duration `env:"LINEHASH_READ_TIMEOUT"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return loadConfig(ctx, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}
