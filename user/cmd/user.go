package cmd

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/fitclub/internal/backend"
	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/constants"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/user/internal/controller"
	"github.com/Alturino/fitclub/user/internal/service"
)

func AttachUser(
	logger zerolog.Logger,
	router *mux.Router,
	auth *backend.AuthClient,
	client *backend.Client,
	sessions *session.Manager,
	cfg config.Session,
) {
	logger = logger.With().
		Str(log.KeyAppName, constants.APP_USER).
		Str(log.KeyProcess, "attaching user controller").
		Logger()

	logger.Info().Msg("attaching user controller")
	userService := service.NewUserService(auth, client, sessions, cfg.RefreshInterval)
	controller.AttachUserController(router, userService)
	logger.Info().Msg("attached user controller")
}
