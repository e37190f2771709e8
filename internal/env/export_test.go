package env

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

func LoadConfigFrom(ctx context.Context, values map[string]string) (*Config, error) {
	return loadConfig(ctx, envconfig.MapLookuper(values))
}
