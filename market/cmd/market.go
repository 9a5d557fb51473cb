package cmd

import (
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/fitclub/internal/backend"
	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/constants"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/market/internal/cart"
	"github.com/Alturino/fitclub/market/internal/checkout"
	"github.com/Alturino/fitclub/market/internal/controller"
	"github.com/Alturino/fitclub/market/internal/repository"
)

func AttachMarket(
	logger zerolog.Logger,
	router *mux.Router,
	cache *redis.Client,
	pool *pgxpool.Pool,
	auth *backend.AuthClient,
	client *backend.Client,
	sessions *session.Manager,
	cfg *config.Config,
) {
	logger = logger.With().
		Str(log.KeyAppName, constants.APP_MARKET).
		Str(log.KeyProcess, "attaching market controller").
		Logger()

	logger.Info().Msg("attaching market controller")
	carts := cart.NewService(cart.NewRedisStore(cache, cfg.Cart.TTL), cfg.Cart.DefaultCurrency)
	checkouts := checkout.NewService(
		carts,
		client,
		auth,
		sessions,
		repository.New(pool),
		cfg.Session.RefreshInterval,
	)
	controller.AttachMarketController(router, carts, checkouts)
	logger.Info().Msg("attached market controller")
}
