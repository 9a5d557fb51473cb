package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/fitclub/internal/errors"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/otel"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/user/pkg/request"
	"github.com/Alturino/fitclub/user/pkg/response"
)

type Accounts interface {
	Register(c context.Context, req request.Register) error
	Login(c context.Context, req request.Login) (session.TokenPair, error)
}

type Profile interface {
	Me(c context.Context) (response.User, error)
	Logout(c context.Context) error
}

type Sessions interface {
	State(sessionID string) session.State
	Tokens(c context.Context, sessionID string) (session.TokenPair, error)
	Login(c context.Context, sessionID string, pair session.TokenPair) error
	Logout(c context.Context, sessionID string) error
	Refresh(c context.Context, sessionID string) (session.TokenPair, error)
	StartPeriodicRefresh(c context.Context, sessionID string, interval time.Duration) (stop func())
}

type UserService struct {
	accounts        Accounts
	profile         Profile
	sessions        Sessions
	refreshInterval time.Duration
}

func NewUserService(
	accounts Accounts,
	profile Profile,
	sessions Sessions,
	refreshInterval time.Duration,
) *UserService {
	return &UserService{
		accounts:        accounts,
		profile:         profile,
		sessions:        sessions,
		refreshInterval: refreshInterval,
	}
}

// Login exchanges the credentials for a token pair, binds it to the session
// and keeps it fresh until logout or a failed refresh.
func (u *UserService) Login(c context.Context, sessionID string, param request.Login) (response.Session, error) {
	c, span := otel.Tracer.Start(c, "UserService Login")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserService Login").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyEmail, param.Email).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "logging in").Logger()
	logger.Trace().Msg("logging in")
	pair, err := u.accounts.Login(c, param)
	if err != nil {
		err = fmt.Errorf("failed logging in with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Session{}, err
	}
	logger.Trace().Msg("logged in")

	return u.begin(logger.WithContext(c), sessionID, pair)
}

// Register creates the account and logs it in right away.
func (u *UserService) Register(c context.Context, sessionID string, param request.Register) (response.Session, error) {
	c, span := otel.Tracer.Start(c, "UserService Register")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserService Register").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyEmail, param.Email).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "registering user").Logger()
	logger.Trace().Msg("registering user")
	if err := u.accounts.Register(c, param); err != nil {
		err = fmt.Errorf("failed registering user with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Session{}, err
	}
	logger.Info().Msg("registered user")

	logger = logger.With().Str(log.KeyProcess, "logging in").Logger()
	logger.Trace().Msg("logging in")
	pair, err := u.accounts.Login(c, param.Login())
	if err != nil {
		err = fmt.Errorf("failed logging in with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Session{}, err
	}
	logger.Trace().Msg("logged in")

	return u.begin(logger.WithContext(c), sessionID, pair)
}

func (u *UserService) begin(c context.Context, sessionID string, pair session.TokenPair) (response.Session, error) {
	logger := zerolog.Ctx(c).With().Str(log.KeyProcess, "storing session").Logger()

	logger.Trace().Msg("storing session")
	if err := u.sessions.Login(c, sessionID, pair); err != nil {
		err = fmt.Errorf("failed storing session with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return response.Session{}, err
	}
	u.sessions.StartPeriodicRefresh(c, sessionID, u.refreshInterval)
	logger.Info().Msg("stored session")

	return u.describe(sessionID, pair), nil
}

// Logout tells the backend first and always clears the local session, even
// when the backend call fails.
func (u *UserService) Logout(c context.Context, sessionID string) error {
	c, span := otel.Tracer.Start(c, "UserService Logout")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserService Logout").
		Str(log.KeySessionID, sessionID).
		Logger()

	if _, err := u.sessions.Tokens(c, sessionID); err == nil {
		logger = logger.With().Str(log.KeyProcess, "logging out from backend").Logger()
		logger.Trace().Msg("logging out from backend")
		if err := u.profile.Logout(session.WithID(c, sessionID)); err != nil {
			err = fmt.Errorf("failed logging out from backend with error=%w", err)
			span.AddEvent(err.Error())
			logger.Warn().Err(err).Msg(err.Error())
		} else {
			logger.Trace().Msg("logged out from backend")
		}
	}

	logger = logger.With().Str(log.KeyProcess, "clearing session").Logger()
	logger.Trace().Msg("clearing session")
	if err := u.sessions.Logout(c, sessionID); err != nil {
		err = fmt.Errorf("failed clearing session with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("cleared session")

	return nil
}

func (u *UserService) Me(c context.Context, sessionID string) (response.User, error) {
	c, span := otel.Tracer.Start(c, "UserService Me")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserService Me").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyProcess, "fetching current user").
		Logger()

	logger.Trace().Msg("fetching current user")
	user, err := u.profile.Me(session.WithID(c, sessionID))
	if err != nil {
		err = fmt.Errorf("failed fetching current user with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.User{}, err
	}
	logger.Trace().Msg("fetched current user")

	return user, nil
}

func (u *UserService) Refresh(c context.Context, sessionID string) (response.Session, error) {
	c, span := otel.Tracer.Start(c, "UserService Refresh")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserService Refresh").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyProcess, "refreshing session").
		Logger()

	logger.Trace().Msg("refreshing session")
	pair, err := u.sessions.Refresh(c, sessionID)
	if err != nil {
		err = fmt.Errorf("failed refreshing session with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Session{}, err
	}
	logger.Info().Msg("refreshed session")

	return u.describe(sessionID, pair), nil
}

func (u *UserService) Session(c context.Context, sessionID string) (response.Session, error) {
	pair, err := u.sessions.Tokens(c, sessionID)
	if errors.Is(err, session.ErrTokensNotFound) {
		return response.Session{State: session.StateUnauthenticated.String()}, nil
	}
	if err != nil {
		return response.Session{}, fmt.Errorf("failed reading session with error=%w", err)
	}
	return u.describe(sessionID, pair), nil
}

// describe reports the session. State lives in memory, so tokens persisted by
// a previous process still count as authenticated.
func (u *UserService) describe(sessionID string, pair session.TokenPair) response.Session {
	state := u.sessions.State(sessionID)
	if state == session.StateUnauthenticated && pair.Complete() {
		state = session.StateAuthenticated
	}
	res := response.Session{
		Authenticated: pair.Complete(),
		State:         state.String(),
	}
	if expiresAt, ok := session.AccessExpiry(pair); ok {
		res.ExpiresAt = &expiresAt
	}
	return res
}
