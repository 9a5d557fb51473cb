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
	"github.com/Alturino/fitclub/market/pkg/request"
	"github.com/Alturino/fitclub/market/pkg/response"
	userResponse "github.com/Alturino/fitclub/user/pkg/response"
)

// Client calls the endpoints that need the session's bearer token. The session
// id must be in the request context (session.WithID).
type Client struct {
	base
}

func NewClient(cfg config.Backend, sessions *session.Manager) *Client {
	return newClient(cfg, session.NewTransport(newOtelTransport(), sessions))
}

func newClient(cfg config.Backend, transport http.RoundTripper) *Client {
	return &Client{base: newBase("backend", cfg, transport)}
}

func (cl *Client) Me(c context.Context) (userResponse.User, error) {
	c, span := otel.Tracer.Start(c, "Client Me")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Client Me").
		Str(log.KeyProcess, "fetching current user").
		Logger()

	logger.Trace().Msg("fetching current user")
	user := userResponse.User{}
	if err := cl.do(logger.WithContext(c), http.MethodGet, "/auth/me", nil, &user); err != nil {
		err = fmt.Errorf("failed fetching current user with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return userResponse.User{}, err
	}
	logger.Trace().Msg("fetched current user")

	return user, nil
}

func (cl *Client) Logout(c context.Context) error {
	c, span := otel.Tracer.Start(c, "Client Logout")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Client Logout").
		Str(log.KeyProcess, "logging out").
		Logger()

	logger.Trace().Msg("logging out")
	if err := cl.do(logger.WithContext(c), http.MethodPost, "/auth/logout", nil, nil); err != nil {
		err = fmt.Errorf("failed logging out with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Msg("logged out")

	return nil
}

func (cl *Client) CreateTransaction(
	c context.Context,
	storefront string,
	provider string,
	req request.CreateTransaction,
) (response.CreateTransaction, error) {
	c, span := otel.Tracer.Start(c, "Client CreateTransaction")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Client CreateTransaction").
		Str(log.KeyStorefront, storefront).
		Str(log.KeyProvider, provider).
		Int(log.KeyLineItems, len(req.Items)).
		Bool(log.KeyGuest, req.GuestDetails != nil).
		Str(log.KeyProcess, "creating transaction").
		Logger()

	logger.Trace().Msg("creating transaction")
	res := response.CreateTransaction{}
	endpoint := fmt.Sprintf("/market/%s/%s/create", storefront, provider)
	if err := cl.do(logger.WithContext(c), http.MethodPost, endpoint, req, &res); err != nil {
		err = fmt.Errorf("failed creating transaction with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.CreateTransaction{}, err
	}
	logger.Info().Str(log.KeyCheckoutID, res.OrderID).Msg("created transaction")

	return res, nil
}

func (cl *Client) ValidateTransaction(
	c context.Context,
	storefront string,
	provider string,
	params map[string]string,
) (response.ValidateTransaction, error) {
	c, span := otel.Tracer.Start(c, "Client ValidateTransaction")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Client ValidateTransaction").
		Str(log.KeyStorefront, storefront).
		Str(log.KeyProvider, provider).
		Any(log.KeyCallbackParams, params).
		Str(log.KeyProcess, "validating transaction").
		Logger()

	logger.Trace().Msg("validating transaction")
	res := response.ValidateTransaction{}
	endpoint := fmt.Sprintf("/market/%s/%s/validate", storefront, provider)
	if err := cl.do(logger.WithContext(c), http.MethodPost, endpoint, params, &res); err != nil {
		err = fmt.Errorf("failed validating transaction with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.ValidateTransaction{}, err
	}
	logger.Info().Str(log.KeyOutcome, res.Status).Msg("validated transaction")

	return res, nil
}
