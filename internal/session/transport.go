package session

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	inHttp "github.com/Alturino/fitclub/internal/http"
	"github.com/Alturino/fitclub/internal/log"
)

// Transport attaches the bearer credential of the session found in the request
// context and, on a 401, refreshes the session and replays the request once.
// The replay is never replayed again, so a backend that keeps answering 401
// cannot drive a refresh loop.
type Transport struct {
	Base     http.RoundTripper
	Sessions *Manager
}

func NewTransport(base http.RoundTripper, sessions *Manager) *Transport {
	return &Transport{Base: base, Sessions: sessions}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := req.Context()
	sessionID, ok := IDFromContext(c)
	if !ok {
		return t.base().RoundTrip(req)
	}

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Transport RoundTrip").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyRequestURL, req.URL.String()).
		Logger()

	first := req.Clone(c)
	usedToken := t.Sessions.AttachAuth(c, sessionID, first)
	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if usedToken == "" {
		// nothing to refresh for a request that carried no credential
		return resp, nil
	}
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	logger = logger.With().Str(log.KeyProcess, "handling unauthorized").Logger()
	logger.Info().Msg("received unauthorized, refreshing session")
	pair, err := t.Sessions.HandleUnauthorized(c, sessionID, usedToken)
	if err != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		err = fmt.Errorf("failed refreshing session with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if !replayable {
		// the session is refreshed for the next request
		logger.Warn().Msg("refreshed session but request body cannot be replayed")
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	logger.Info().Msg("refreshed session, retrying request")

	retry := req.Clone(c)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			err = fmt.Errorf("failed replaying request body with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set(inHttp.HeaderAuthorize, inHttp.AuthorizationBearer+pair.AccessToken)
	return t.base().RoundTrip(retry)
}
