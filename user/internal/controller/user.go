package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/Alturino/fitclub/internal/backend"
	"github.com/Alturino/fitclub/internal/constants"
	inErrors "github.com/Alturino/fitclub/internal/errors"
	inHttp "github.com/Alturino/fitclub/internal/http"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/otel"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/user/internal/service"
	"github.com/Alturino/fitclub/user/pkg/request"
)

type UserController struct {
	service  *service.UserService
	validate *validator.Validate
}

func AttachUserController(mux *mux.Router, service *service.UserService) {
	controller := UserController{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	router := mux.PathPrefix("/auth").Subrouter()
	router.HandleFunc("/register", controller.Register).Methods(http.MethodPost)
	router.HandleFunc("/login", controller.Login).Methods(http.MethodPost)
	router.HandleFunc("/logout", controller.Logout).Methods(http.MethodPost)
	router.HandleFunc("/refresh", controller.Refresh).Methods(http.MethodPost)
	router.HandleFunc("/me", controller.Me).Methods(http.MethodGet)
	router.HandleFunc("/session", controller.Session).Methods(http.MethodGet)
}

func statusCode(err error) int {
	var backendErr *backend.Error
	switch {
	case errors.Is(err, inErrors.ErrEmptySession):
		return http.StatusUnauthorized
	case errors.Is(err, inErrors.ErrInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrIncompleteTokenPair):
		return http.StatusBadGateway
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.As(err, &backendErr):
		if backendErr.StatusCode >= 400 && backendErr.StatusCode < 500 {
			return backendErr.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	c := r.Context()
	switch {
	case errors.Is(err, session.ErrSessionTerminated):
		inHttp.WriteRedirect(c, w, http.StatusUnauthorized, "Tu sesión expiró", constants.LOGIN_PATH)
	case errors.Is(err, inErrors.ErrInvalidBody):
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err.Error())
	default:
		inHttp.WriteFailed(c, w, statusCode(err), backend.Message(err))
	}
}

func (u UserController) decode(r *http.Request, body any) error {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		return fmt.Errorf("%w: %w", inErrors.ErrInvalidBody, err)
	}
	if err := u.validate.StructCtx(r.Context(), body); err != nil {
		return fmt.Errorf("%w: %w", inErrors.ErrInvalidBody, err)
	}
	return nil
}

func sessionID(r *http.Request) (string, error) {
	id, ok := session.IDFromContext(r.Context())
	if !ok {
		return "", inErrors.ErrEmptySession
	}
	return id, nil
}

func (u UserController) Register(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Register")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserController Register").
		Str(log.KeyProcess, "decoding request body").
		Logger()

	id, err := sessionID(r)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}

	logger.Trace().Msg("decoding request body")
	reqBody := request.Register{}
	if err := u.decode(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}
	logger = logger.With().Object(log.KeyRequestBody, reqBody).Logger()
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "registering user").Logger()
	logger.Trace().Msg("registering user")
	res, err := u.service.Register(logger.WithContext(c), id, reqBody)
	if err != nil {
		err = fmt.Errorf("failed registering user with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}
	logger.Info().Msg("registered user")

	inHttp.WriteSuccess(c, w, fmt.Sprintf("user with email=%s is registered", reqBody.Email), map[string]interface{}{
		"session": res,
	})
}

func (u UserController) Login(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Login")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserController Login").
		Str(log.KeyProcess, "decoding request body").
		Logger()

	id, err := sessionID(r)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}

	logger.Trace().Msg("decoding request body")
	reqBody := request.Login{}
	if err := u.decode(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}
	logger = logger.With().Object(log.KeyRequestBody, reqBody).Logger()
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "logging in").Logger()
	logger.Trace().Msg("logging in")
	res, err := u.service.Login(logger.WithContext(c), id, reqBody)
	if err != nil {
		err = fmt.Errorf("failed logging in with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}
	logger.Info().Msg("logged in")

	inHttp.WriteSuccess(c, w, "login success", map[string]interface{}{"session": res})
}

func (u UserController) Logout(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Logout")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserController Logout").
		Str(log.KeyProcess, "logging out").
		Logger()

	id, err := sessionID(r)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}

	logger.Trace().Msg("logging out")
	if err := u.service.Logout(logger.WithContext(c), id); err != nil {
		err = fmt.Errorf("failed logging out with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}
	logger.Info().Msg("logged out")

	inHttp.WriteSuccess(c, w, "logout success", map[string]interface{}{"redirect": constants.LOGIN_PATH})
}

func (u UserController) Refresh(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Refresh")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserController Refresh").
		Str(log.KeyProcess, "refreshing session").
		Logger()

	id, err := sessionID(r)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}

	logger.Trace().Msg("refreshing session")
	res, err := u.service.Refresh(logger.WithContext(c), id)
	if err != nil {
		err = fmt.Errorf("failed refreshing session with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}
	logger.Info().Msg("refreshed session")

	inHttp.WriteSuccess(c, w, "session refreshed", map[string]interface{}{"session": res})
}

func (u UserController) Me(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Me")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserController Me").
		Str(log.KeyProcess, "fetching current user").
		Logger()

	id, err := sessionID(r)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}

	logger.Trace().Msg("fetching current user")
	user, err := u.service.Me(logger.WithContext(c), id)
	if err != nil {
		err = fmt.Errorf("failed fetching current user with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}
	logger.Trace().Msg("fetched current user")

	inHttp.WriteSuccess(c, w, "user found", map[string]interface{}{"user": user})
}

func (u UserController) Session(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Session")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "UserController Session").
		Str(log.KeyProcess, "reading session").
		Logger()

	id, err := sessionID(r)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}

	res, err := u.service.Session(logger.WithContext(c), id)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(w, r, err)
		return
	}

	inHttp.WriteSuccess(c, w, "session found", map[string]interface{}{"session": res})
}
