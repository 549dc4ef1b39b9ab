// Command api-server runs the storefront HTTP API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	storefront "github.com/xenking/storefront/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := storefront.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		lg.Info("Configuration loaded",
			zap.Bool("redis_dedupe", cfg.Redis.Addr != ""),
			zap.Bool("card_gateway", cfg.Card.SecretKey != ""),
			zap.Bool("crypto_processor", cfg.Crypto.APIKey != ""),
		)
		return storefront.Run(ctx, lg, m, cfg)
	})
}
