package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alturino/fitclub/internal/constants"
	inErrors "github.com/Alturino/fitclub/internal/errors"
	inHttp "github.com/Alturino/fitclub/internal/http"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/metrics"
	"github.com/Alturino/fitclub/internal/otel"
)

var (
	ErrSessionTerminated   = errors.New("session terminated")
	ErrMissingRefreshToken = errors.New("missing refresh token")
	ErrIncompleteTokenPair = errors.New("incomplete token pair")

	errSessionReset = errors.New("session logged in or out during refresh")
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// Exchanger trades a refresh token for a new token pair.
type Exchanger interface {
	Refresh(c context.Context, refreshToken string) (TokenPair, error)
}

// TerminateFunc is called once a session has been cleared after a failed
// refresh. redirect is the path the user has to be sent to.
type TerminateFunc func(c context.Context, sessionID string, redirect string)

type Option func(*Manager)

func WithTerminateFunc(fn TerminateFunc) Option {
	return func(m *Manager) { m.onTerminate = fn }
}

type refreshCall struct {
	done chan struct{}
	pair TokenPair
	err  error
}

type periodic struct {
	cancel context.CancelFunc
}

// Manager keeps the token pair of every session valid. At most one refresh
// exchange runs per session; every caller that needs a refresh while one is in
// flight waits on that call and receives its outcome.
//
// Login and Logout bump the epoch of a session. An exchange started under an
// older epoch never writes to the store.
type Manager struct {
	store       Store
	exchanger   Exchanger
	onTerminate TerminateFunc

	mu     sync.Mutex
	states map[string]State
	calls  map[string]*refreshCall
	issued map[string]TokenPair
	timers map[string]*periodic
	epochs map[string]uint64
	writes map[string]*sync.Mutex
}

func NewManager(store Store, exchanger Exchanger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		exchanger: exchanger,
		states:    map[string]State{},
		calls:     map[string]*refreshCall{},
		issued:    map[string]TokenPair{},
		timers:    map[string]*periodic{},
		epochs:    map[string]uint64{},
		writes:    map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.onTerminate == nil {
		m.onTerminate = func(c context.Context, sessionID string, redirect string) {
			zerolog.Ctx(c).Info().
				Str(log.KeySessionID, sessionID).
				Msgf("session terminated, redirecting to %s", redirect)
		}
	}
	return m
}

func (m *Manager) State(sessionID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[sessionID]
}

func (m *Manager) Tokens(c context.Context, sessionID string) (TokenPair, error) {
	return m.store.Get(c, sessionID)
}

func (m *Manager) Login(c context.Context, sessionID string, pair TokenPair) error {
	c, span := otel.Tracer.Start(c, "Manager Login",
		trace.WithAttributes(attribute.String(log.KeySessionID, sessionID)))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Manager Login").
		Str(log.KeySessionID, sessionID).
		Logger()

	if !pair.Complete() {
		err := fmt.Errorf("failed storing tokens with error=%w", ErrIncompleteTokenPair)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	write := m.writeLock(sessionID)
	write.Lock()
	defer write.Unlock()

	logger = logger.With().Str(log.KeyProcess, "storing tokens").Logger()
	logger.Trace().Msg("storing tokens")
	if err := m.store.Set(c, sessionID, pair); err != nil {
		err = fmt.Errorf("failed storing tokens with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	m.mu.Lock()
	m.epochs[sessionID]++
	m.states[sessionID] = StateAuthenticated
	m.issued[sessionID] = pair
	m.mu.Unlock()
	logger.Info().Msg("stored tokens")

	return nil
}

func (m *Manager) Logout(c context.Context, sessionID string) error {
	c, span := otel.Tracer.Start(c, "Manager Logout",
		trace.WithAttributes(attribute.String(log.KeySessionID, sessionID)))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Manager Logout").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyProcess, "clearing tokens").
		Logger()

	m.StopPeriodicRefresh(sessionID)

	write := m.writeLock(sessionID)
	write.Lock()
	defer write.Unlock()

	logger.Trace().Msg("clearing tokens")
	m.mu.Lock()
	m.epochs[sessionID]++
	m.states[sessionID] = StateUnauthenticated
	delete(m.issued, sessionID)
	m.mu.Unlock()
	if err := m.store.Delete(c, sessionID); err != nil {
		err = fmt.Errorf("failed clearing tokens with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("cleared tokens")

	return nil
}

// AttachAuth sets the bearer credential of the session on req and returns the
// access token it used. Without a token the request goes out unauthenticated.
func (m *Manager) AttachAuth(c context.Context, sessionID string, req *http.Request) string {
	pair, err := m.store.Get(c, sessionID)
	if err != nil {
		if !errors.Is(err, ErrTokensNotFound) {
			zerolog.Ctx(c).Error().
				Err(err).
				Str(log.KeyTag, "Manager AttachAuth").
				Str(log.KeySessionID, sessionID).
				Msgf("failed reading tokens with error=%s", err.Error())
		}
		return ""
	}
	if pair.AccessToken == "" {
		return ""
	}
	req.Header.Set(inHttp.HeaderAuthorize, inHttp.AuthorizationBearer+pair.AccessToken)
	return pair.AccessToken
}

// HandleUnauthorized returns a token pair to retry a request that was rejected
// while carrying usedToken. If another refresh already replaced that token the
// current pair is returned without a new exchange.
func (m *Manager) HandleUnauthorized(
	c context.Context,
	sessionID string,
	usedToken string,
) (TokenPair, error) {
	return m.refresh(c, sessionID, usedToken)
}

// Refresh exchanges the refresh token of the session, joining the exchange in
// flight if there is one.
func (m *Manager) Refresh(c context.Context, sessionID string) (TokenPair, error) {
	return m.refresh(c, sessionID, "")
}

func (m *Manager) refresh(c context.Context, sessionID string, usedToken string) (TokenPair, error) {
	c, span := otel.Tracer.Start(c, "Manager Refresh",
		trace.WithAttributes(attribute.String(log.KeySessionID, sessionID)))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Manager Refresh").
		Str(log.KeySessionID, sessionID).
		Logger()

	m.mu.Lock()
	call, inFlight := m.calls[sessionID]
	if !inFlight {
		if issued, ok := m.issued[sessionID]; ok && usedToken != "" &&
			issued.AccessToken != usedToken {
			m.mu.Unlock()
			logger.Debug().Msg("token already replaced by a previous refresh")
			metrics.SessionRefreshTotal.WithLabelValues("skipped").Inc()
			return issued, nil
		}
		call = &refreshCall{done: make(chan struct{})}
		previous := m.states[sessionID]
		m.calls[sessionID] = call
		m.states[sessionID] = StateRefreshing
		go m.exchange(context.WithoutCancel(c), sessionID, previous, m.epochs[sessionID], call)
	}
	m.mu.Unlock()

	if inFlight {
		logger.Debug().Msg("waiting for refresh in flight")
		metrics.SessionRefreshTotal.WithLabelValues("coalesced").Inc()
	}

	select {
	case <-c.Done():
		err := fmt.Errorf("failed waiting for refresh with error=%w", c.Err())
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return TokenPair{}, err
	case <-call.done:
	}
	if call.err != nil {
		inErrors.HandleError(call.err, span)
		return TokenPair{}, call.err
	}
	return call.pair, nil
}

func (m *Manager) exchange(
	c context.Context,
	sessionID string,
	previous State,
	epoch uint64,
	call *refreshCall,
) {
	c, span := otel.Tracer.Start(c, "Manager exchange",
		trace.WithAttributes(attribute.String(log.KeySessionID, sessionID)))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Manager exchange").
		Str(log.KeySessionID, sessionID).
		Logger()

	pair, err := m.doExchange(c, sessionID, epoch)

	m.mu.Lock()
	reset := errors.Is(err, errSessionReset) || m.epochs[sessionID] != epoch
	switch {
	case reset:
		// Login or Logout owns the state now
		if issued, ok := m.issued[sessionID]; ok {
			pair, err = issued, nil
		} else {
			pair, err = TokenPair{}, fmt.Errorf("%w: %w", ErrSessionTerminated, err)
		}
	case errors.Is(err, ErrSessionTerminated):
		m.states[sessionID] = StateUnauthenticated
		delete(m.issued, sessionID)
	case err != nil:
		m.states[sessionID] = previous
	default:
		m.states[sessionID] = StateAuthenticated
		m.issued[sessionID] = pair
	}
	delete(m.calls, sessionID)
	call.pair, call.err = pair, err
	m.mu.Unlock()
	close(call.done)

	if reset {
		logger.Info().Msg("discarded refresh of a session that was logged in or out")
		metrics.SessionRefreshTotal.WithLabelValues("discarded").Inc()
		return
	}
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		metrics.SessionRefreshTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, ErrSessionTerminated) {
			metrics.SessionTerminatedTotal.Inc()
			m.StopPeriodicRefresh(sessionID)
			m.onTerminate(c, sessionID, constants.LOGIN_PATH)
		}
		return
	}
	metrics.SessionRefreshTotal.WithLabelValues("success").Inc()
	if expiresAt, ok := AccessExpiry(pair); ok {
		logger = logger.With().Time(log.KeyTokenExpiresAt, expiresAt).Logger()
	}
	logger.Info().Msg("refreshed tokens")
}

func (m *Manager) doExchange(c context.Context, sessionID string, epoch uint64) (TokenPair, error) {
	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Manager doExchange").
		Str(log.KeySessionID, sessionID).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "reading refresh token").Logger()
	logger.Trace().Msg("reading refresh token")
	current, err := m.store.Get(c, sessionID)
	if err != nil && !errors.Is(err, ErrTokensNotFound) {
		return TokenPair{}, fmt.Errorf("failed reading refresh token with error=%w", err)
	}
	if current.RefreshToken == "" {
		return TokenPair{}, m.terminate(c, sessionID, epoch, ErrMissingRefreshToken)
	}
	logger.Trace().Msg("read refresh token")

	logger = logger.With().Str(log.KeyProcess, "exchanging refresh token").Logger()
	logger.Trace().Msg("exchanging refresh token")
	pair, err := m.exchanger.Refresh(c, current.RefreshToken)
	if err != nil {
		return TokenPair{}, m.terminate(c, sessionID, epoch, err)
	}
	if !pair.Complete() {
		return TokenPair{}, m.terminate(c, sessionID, epoch, ErrIncompleteTokenPair)
	}
	logger.Trace().Msg("exchanged refresh token")

	logger = logger.With().Str(log.KeyProcess, "storing refreshed tokens").Logger()
	logger.Trace().Msg("storing refreshed tokens")
	err = m.commit(sessionID, epoch, func() error { return m.store.Set(c, sessionID, pair) })
	if errors.Is(err, errSessionReset) {
		return TokenPair{}, err
	}
	if err != nil {
		// the old refresh token is already spent
		return TokenPair{}, m.terminate(c, sessionID, epoch, err)
	}
	logger.Trace().Msg("stored refreshed tokens")

	return pair, nil
}

func (m *Manager) terminate(c context.Context, sessionID string, epoch uint64, cause error) error {
	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Manager terminate").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyProcess, "clearing tokens").
		Logger()

	logger.Trace().Msg("clearing tokens")
	err := m.commit(sessionID, epoch, func() error { return m.store.Delete(c, sessionID) })
	if errors.Is(err, errSessionReset) {
		return err
	}
	if err != nil {
		err = fmt.Errorf("failed clearing tokens with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
	} else {
		logger.Trace().Msg("cleared tokens")
	}
	return fmt.Errorf("%w: refresh failed with error=%w", ErrSessionTerminated, cause)
}

// commit runs write on the store unless the session was logged in or out
// since epoch.
func (m *Manager) commit(sessionID string, epoch uint64, write func() error) error {
	lock := m.writeLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	stale := m.epochs[sessionID] != epoch
	m.mu.Unlock()
	if stale {
		return errSessionReset
	}
	return write()
}

func (m *Manager) writeLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.writes[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.writes[sessionID] = lock
	}
	return lock
}

// StartPeriodicRefresh refreshes the session every interval while it holds both
// tokens. The returned func stops the timer; it is safe to call more than once.
func (m *Manager) StartPeriodicRefresh(
	c context.Context,
	sessionID string,
	interval time.Duration,
) (stop func()) {
	c, cancel := context.WithCancel(context.WithoutCancel(c))
	p := &periodic{cancel: cancel}

	m.mu.Lock()
	if previous, ok := m.timers[sessionID]; ok {
		previous.cancel()
	}
	m.timers[sessionID] = p
	m.mu.Unlock()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			m.mu.Lock()
			if m.timers[sessionID] == p {
				delete(m.timers, sessionID)
			}
			m.mu.Unlock()
		})
	}

	go func() {
		defer stop()

		logger := zerolog.Ctx(c).With().
			Str(log.KeyTag, "Manager periodicRefresh").
			Str(log.KeySessionID, sessionID).
			Dur("interval", interval).
			Logger()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info().Msg("started periodic refresh")
		for {
			select {
			case <-c.Done():
				logger.Info().Msg("stopped periodic refresh")
				return
			case <-ticker.C:
				pair, err := m.store.Get(c, sessionID)
				if errors.Is(err, ErrTokensNotFound) || (err == nil && !pair.Complete()) {
					logger.Info().Msg("session has no tokens, stopping periodic refresh")
					return
				}
				if err != nil {
					logger.Error().Err(err).Msgf("failed reading tokens with error=%s", err.Error())
					continue
				}
				if _, err := m.Refresh(c, sessionID); err != nil {
					if errors.Is(err, ErrSessionTerminated) {
						return
					}
					logger.Error().Err(err).Msgf("failed periodic refresh with error=%s", err.Error())
				}
			}
		}
	}()

	return stop
}

func (m *Manager) StopPeriodicRefresh(sessionID string) {
	m.mu.Lock()
	p, ok := m.timers[sessionID]
	if ok {
		delete(m.timers, sessionID)
	}
	m.mu.Unlock()
	if ok {
		p.cancel()
	}
}

// Close stops every periodic refresh.
func (m *Manager) Close() {
	m.mu.Lock()
	timers := m.timers
	m.timers = map[string]*periodic{}
	m.mu.Unlock()
	for _, p := range timers {
		p.cancel()
	}
}
