package cmd

import (
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/fitclub/club/internal/controller"
	"github.com/Alturino/fitclub/club/internal/feed"
	"github.com/Alturino/fitclub/club/pkg/response"
	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/constants"
	"github.com/Alturino/fitclub/internal/log"
)

func AttachClub(logger zerolog.Logger, router *mux.Router, cache *redis.Client, cfg *config.Config) {
	logger = logger.With().
		Str(log.KeyAppName, constants.APP_CLUB).
		Str(log.KeyProcess, "attaching club controller").
		Logger()

	logger.Info().Msg("attaching club controller")
	videos := feed.NewService(cfg.Youtube, feed.NewRedisCache(cache, cfg.Youtube.CacheTTL))
	controller.AttachClubController(router, videos, response.Config{
		ChannelID:       cfg.Youtube.ChannelID,
		SupabaseURL:     cfg.Supabase.URL,
		SupabaseAnonKey: cfg.Supabase.AnonKey,
	})
	logger.Info().Msg("attached club controller")
}
