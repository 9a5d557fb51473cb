package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Alturino/fitclub/internal/config"
	inErrors "github.com/Alturino/fitclub/internal/errors"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/otel"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/user/pkg/request"
)

// AuthClient talks to the unauthenticated auth endpoints. It is the session
// manager's Exchanger.
type AuthClient struct {
	base
}

func NewAuthClient(cfg config.Backend) *AuthClient {
	return newAuthClient(cfg, newOtelTransport())
}

func newAuthClient(cfg config.Backend, transport http.RoundTripper) *AuthClient {
	return &AuthClient{base: newBase("backend-auth", cfg, transport)}
}

func (a *AuthClient) Register(c context.Context, req request.Register) error {
	c, span := otel.Tracer.Start(c, "AuthClient Register")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "AuthClient Register").
		Str(log.KeyEmail, req.Email).
		Str(log.KeyProcess, "registering user").
		Logger()

	logger.Trace().Msg("registering user")
	if err := a.do(logger.WithContext(c), http.MethodPost, "/auth/register", req.Body(), nil); err != nil {
		err = fmt.Errorf("failed registering user with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Msg("registered user")

	return nil
}

func (a *AuthClient) Login(c context.Context, req request.Login) (session.TokenPair, error) {
	c, span := otel.Tracer.Start(c, "AuthClient Login")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "AuthClient Login").
		Str(log.KeyEmail, req.Email).
		Str(log.KeyProcess, "logging in").
		Logger()

	logger.Trace().Msg("logging in")
	pair := session.TokenPair{}
	if err := a.do(logger.WithContext(c), http.MethodPost, "/auth/login", req.Body(), &pair); err != nil {
		err = fmt.Errorf("failed logging in with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return session.TokenPair{}, err
	}
	if !pair.Complete() {
		err := fmt.Errorf("failed logging in with error=%w", session.ErrIncompleteTokenPair)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return session.TokenPair{}, err
	}
	logger.Trace().Msg("logged in")

	return pair, nil
}

// Refresh exchanges a refresh token for a new pair.
func (a *AuthClient) Refresh(c context.Context, refreshToken string) (session.TokenPair, error) {
	c, span := otel.Tracer.Start(c, "AuthClient Refresh")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "AuthClient Refresh").
		Str(log.KeyProcess, "refreshing token pair").
		Logger()

	logger.Trace().Msg("refreshing token pair")
	pair := session.TokenPair{}
	body := request.Refresh{RefreshToken: refreshToken}
	if err := a.do(logger.WithContext(c), http.MethodPost, "/auth/refresh", body, &pair); err != nil {
		err = fmt.Errorf("failed refreshing token pair with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return session.TokenPair{}, err
	}
	logger.Trace().Msg("refreshed token pair")

	return pair, nil
}
