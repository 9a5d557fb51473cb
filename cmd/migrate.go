package cmd

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/infra"
	"github.com/Alturino/fitclub/internal/log"
)

func runMigration(c context.Context, cfg *config.Config) {
	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "main runMigration").
		Str(log.KeyProcess, "migrating database").
		Logger()
	c = logger.WithContext(c)

	pool := infra.NewDatabaseClient(c, cfg.Database)
	defer pool.Close()

	logger.Info().Msg("migrating database")
	if err := infra.Migrate(c, pool, cfg.Database); err != nil {
		logger.Fatal().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("migrated database")
}
