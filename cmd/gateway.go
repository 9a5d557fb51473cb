package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	clubCmd "github.com/Alturino/fitclub/club/cmd"
	"github.com/Alturino/fitclub/internal/backend"
	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/constants"
	"github.com/Alturino/fitclub/internal/infra"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/middleware"
	"github.com/Alturino/fitclub/internal/otel"
	"github.com/Alturino/fitclub/internal/session"
	marketCmd "github.com/Alturino/fitclub/market/cmd"
	userCmd "github.com/Alturino/fitclub/user/cmd"
)

func runGateway(c context.Context, cfg *config.Config) {
	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "main runGateway").
		Logger()
	c = logger.WithContext(c)

	logger = logger.With().Str(log.KeyProcess, "InitOtelSdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	otelShutdowns, err := otel.InitOtelSdk(c, constants.APP_GATEWAY, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(log.KeyProcess, "init infra").Logger()
	logger.Info().Msg("initializing infra")
	cache := infra.NewCacheClient(c, cfg.Cache)
	pool := infra.NewDatabaseClient(c, cfg.Database)
	if err := infra.Migrate(c, pool, cfg.Database); err != nil {
		logger.Fatal().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("initialized infra")

	logger = logger.With().Str(log.KeyProcess, "init session manager").Logger()
	logger.Info().Msg("initializing session manager")
	auth := backend.NewAuthClient(cfg.Backend)
	sessions := session.NewManager(session.NewRedisStore(cache, cfg.Session.TTL), auth)
	client := backend.NewClient(cfg.Backend, sessions)
	logger.Info().Msg("initialized session manager")

	logger = logger.With().Str(log.KeyProcess, "init router").Logger()
	logger.Info().Msg("initializing router")
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	api := router.NewRoute().Subrouter()
	api.Use(
		otelmux.Middleware(constants.APP_GATEWAY),
		middleware.Logging,
		middleware.RecoverPanic,
		middleware.Session(cfg.Session),
	)
	userCmd.AttachUser(logger, api, auth, client, sessions, cfg.Session)
	marketCmd.AttachMarket(logger, api, cache, pool, auth, client, sessions, cfg)
	clubCmd.AttachClub(logger, api, cache, cfg)
	logger.Info().Msg("initialized router")

	server := http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		BaseContext:  func(net.Listener) context.Context { return c },
		Handler:      router,
		ReadTimeout:  45 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	serverLogger := logger.With().Str(log.KeyProcess, "start server").Logger()
	go func() {
		logger := serverLogger
		logger.Info().Msgf("start listening request at %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("failed serving with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
	}()

	<-c.Done()
	logger = logger.With().Str(log.KeyProcess, "shutdown server").Logger()
	logger.Info().Msg("received interruption signal shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(c), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		err = fmt.Errorf("failed shutting down http server with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
	}
	sessions.Close()
	pool.Close()
	if err := cache.Close(); err != nil {
		err = fmt.Errorf("failed closing redis client with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
	}
	if err := otel.ShutdownOtel(shutdownCtx, otelShutdowns); err != nil {
		err = fmt.Errorf("failed shutting down otel with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("shutdown server")
}
