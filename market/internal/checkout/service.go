package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	inErrors "github.com/Alturino/fitclub/internal/errors"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/metrics"
	"github.com/Alturino/fitclub/internal/otel"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/market/internal/cart"
	"github.com/Alturino/fitclub/market/internal/repository"
	"github.com/Alturino/fitclub/market/pkg/request"
	"github.com/Alturino/fitclub/market/pkg/response"
	userRequest "github.com/Alturino/fitclub/user/pkg/request"
)

const statusCompleted = "completed"

type Carts interface {
	Get(c context.Context, sessionID string, storefront cart.Storefront) (cart.Cart, error)
	Clear(c context.Context, sessionID string, storefront cart.Storefront) error
}

type Transactions interface {
	CreateTransaction(
		c context.Context,
		storefront string,
		provider string,
		req request.CreateTransaction,
	) (response.CreateTransaction, error)
	ValidateTransaction(
		c context.Context,
		storefront string,
		provider string,
		params map[string]string,
	) (response.ValidateTransaction, error)
}

type Accounts interface {
	Register(c context.Context, req userRequest.Register) error
	Login(c context.Context, req userRequest.Login) (session.TokenPair, error)
}

type Sessions interface {
	Login(c context.Context, sessionID string, pair session.TokenPair) error
	StartPeriodicRefresh(c context.Context, sessionID string, interval time.Duration) (stop func())
}

type Ledger interface {
	InsertCheckout(c context.Context, arg repository.InsertCheckoutParams) (repository.Checkout, error)
	UpdateLatestCheckoutStatus(c context.Context, arg repository.UpdateLatestCheckoutStatusParams) (int64, error)
	FindCheckoutsBySession(c context.Context, arg repository.FindCheckoutsBySessionParams) ([]repository.Checkout, error)
}

type Result struct {
	Provider    Provider                   `json:"provider"`
	Handoff     Handoff                    `json:"handoff"`
	Transaction response.CreateTransaction `json:"transaction"`
	// set when the guest asked for an account and registration or login
	// failed; checkout went on as guest
	RegistrationFailed  bool   `json:"registrationFailed"`
	RegistrationMessage string `json:"registrationMessage,omitempty"`
}

type Outcome struct {
	Status string          `json:"status"`
	Order  json.RawMessage `json:"order,omitempty"`
}

type Service struct {
	carts           Carts
	transactions    Transactions
	accounts        Accounts
	sessions        Sessions
	ledger          Ledger
	refreshInterval time.Duration
}

func NewService(
	carts Carts,
	transactions Transactions,
	accounts Accounts,
	sessions Sessions,
	ledger Ledger,
	refreshInterval time.Duration,
) *Service {
	return &Service{
		carts:           carts,
		transactions:    transactions,
		accounts:        accounts,
		sessions:        sessions,
		ledger:          ledger,
		refreshInterval: refreshInterval,
	}
}

// Checkout creates the provider transaction for the session's cart and returns
// the hand-off. The cart is left as is; it is cleared only once the payment is
// validated.
func (svc *Service) Checkout(
	c context.Context,
	sessionID string,
	storefront cart.Storefront,
	provider Provider,
	guest request.GuestData,
) (result Result, err error) {
	c, span := otel.Tracer.Start(c, "CheckoutService Checkout", trace.WithAttributes(
		attribute.String(log.KeyStorefront, string(storefront)),
		attribute.String(log.KeyProvider, string(provider)),
	))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CheckoutService Checkout").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyStorefront, string(storefront)).
		Str(log.KeyProvider, string(provider)).
		Object(log.KeyGuest, guest).
		Logger()

	defer func() {
		metrics.CheckoutTotal.WithLabelValues(string(storefront), string(provider), outcomeLabel(err)).Inc()
	}()

	strategy := provider.Strategy()
	if strategy == nil {
		err = fmt.Errorf("failed checkout with error=%w", inErrors.ErrUnknownProvider)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Result{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "finding cart").Logger()
	logger.Trace().Msg("finding cart")
	items, err := svc.carts.Get(c, sessionID, storefront)
	if err != nil {
		err = fmt.Errorf("failed finding cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Result{}, err
	}
	if items.Empty() {
		err = fmt.Errorf("failed checkout with error=%w", ErrEmptyCart)
		inErrors.HandleError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return Result{}, err
	}
	logger = logger.With().Object(log.KeyCart, items).Logger()
	logger.Trace().Msg("found cart")

	if guest.CanRegister() {
		logger = logger.With().Str(log.KeyProcess, "registering guest").Logger()
		logger.Trace().Msg("registering guest")
		if err := svc.registerGuest(c, sessionID, guest); err != nil {
			err = fmt.Errorf("failed registering guest, continuing as guest with error=%w", err)
			span.AddEvent(err.Error())
			logger.Warn().Err(err).Msg(err.Error())
			result.RegistrationFailed = true
			result.RegistrationMessage = Message(err)
		} else {
			logger.Info().Msg("registered guest")
		}
	}

	logger = logger.With().Str(log.KeyProcess, "creating transaction").Logger()
	logger.Trace().Msg("creating transaction")
	req := request.CreateTransaction{Items: items.LineItems(), GuestDetails: guest.Details()}
	tx, err := svc.transactions.CreateTransaction(c, string(storefront), string(provider), req)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCreateTransaction, err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Result{}, err
	}
	logger.Trace().Msg("created transaction")

	logger = logger.With().Str(log.KeyProcess, "building hand-off").Logger()
	handoff, err := strategy.Handoff(tx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCreateTransaction, err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Result{}, err
	}
	logger = logger.With().Str(log.KeyHandoff, string(handoff.Kind)).Logger()
	logger.Trace().Msg("built hand-off")

	svc.recordPending(c, sessionID, storefront, provider, tx, items)

	result.Provider = provider
	result.Handoff = handoff
	result.Transaction = tx
	logger.Info().Msg("checkout ready for hand-off")

	return result, nil
}

func (svc *Service) registerGuest(c context.Context, sessionID string, guest request.GuestData) error {
	register := userRequest.Register{
		Name:     guest.Name,
		Email:    guest.Email,
		Password: guest.Password,
		Phone:    guest.Phone,
	}
	if err := svc.accounts.Register(c, register); err != nil {
		return err
	}
	pair, err := svc.accounts.Login(c, register.Login())
	if err != nil {
		return err
	}
	if err := svc.sessions.Login(c, sessionID, pair); err != nil {
		return err
	}
	svc.sessions.StartPeriodicRefresh(c, sessionID, svc.refreshInterval)
	return nil
}

// Validate checks the parameters the provider appended to its callback and
// asks the backend for the final status. Incomplete parameters fail closed
// without a backend call.
func (svc *Service) Validate(
	c context.Context,
	sessionID string,
	storefront cart.Storefront,
	provider Provider,
	query url.Values,
) (outcome Outcome, err error) {
	c, span := otel.Tracer.Start(c, "CheckoutService Validate", trace.WithAttributes(
		attribute.String(log.KeyStorefront, string(storefront)),
		attribute.String(log.KeyProvider, string(provider)),
	))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CheckoutService Validate").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyStorefront, string(storefront)).
		Str(log.KeyProvider, string(provider)).
		Logger()

	defer func() {
		metrics.ValidationTotal.WithLabelValues(string(storefront), string(provider), outcomeLabel(err)).Inc()
		svc.recordOutcome(c, sessionID, storefront, provider, err)
	}()

	strategy := provider.Strategy()
	if strategy == nil {
		err = fmt.Errorf("failed validating payment with error=%w", inErrors.ErrUnknownProvider)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Outcome{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "reading callback parameters").Logger()
	logger.Trace().Msg("reading callback parameters")
	params, err := strategy.CallbackParams(query)
	if err != nil {
		err = fmt.Errorf("failed reading callback parameters with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return Outcome{}, err
	}
	logger = logger.With().Any(log.KeyCallbackParams, params).Logger()
	logger.Trace().Msg("read callback parameters")

	logger = logger.With().Str(log.KeyProcess, "validating transaction").Logger()
	logger.Trace().Msg("validating transaction")
	res, err := svc.transactions.ValidateTransaction(c, string(storefront), string(provider), params)
	if err != nil {
		err = fmt.Errorf("failed validating transaction with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Outcome{}, err
	}
	if res.Status != statusCompleted {
		err = fmt.Errorf("%w: backend status=%s", ErrValidationRejected, res.Status)
		inErrors.HandleError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return Outcome{Status: res.Status, Order: res.Order}, err
	}
	logger.Info().Msg("validated transaction")

	logger = logger.With().Str(log.KeyProcess, "clearing cart").Logger()
	logger.Trace().Msg("clearing cart")
	if err := svc.carts.Clear(c, sessionID, storefront); err != nil {
		err = fmt.Errorf("failed clearing cart after payment with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	} else {
		logger.Trace().Msg("cleared cart")
	}

	return Outcome{Status: res.Status, Order: res.Order}, nil
}

// History lists the ledger rows of the session for a storefront, newest first.
func (svc *Service) History(
	c context.Context,
	sessionID string,
	storefront cart.Storefront,
) ([]response.Checkout, error) {
	c, span := otel.Tracer.Start(c, "CheckoutService History")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CheckoutService History").
		Str(log.KeySessionID, sessionID).
		Str(log.KeyStorefront, string(storefront)).
		Str(log.KeyProcess, "finding checkouts").
		Logger()

	logger.Trace().Msg("finding checkouts")
	rows, err := svc.ledger.FindCheckoutsBySession(c, repository.FindCheckoutsBySessionParams{
		SessionID:  sessionID,
		Storefront: string(storefront),
	})
	if err != nil {
		err = fmt.Errorf("failed finding checkouts with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	checkouts := make([]response.Checkout, 0, len(rows))
	for _, row := range rows {
		checkouts = append(checkouts, row.Response())
	}
	logger.Trace().Int("count", len(checkouts)).Msg("found checkouts")

	return checkouts, nil
}

// the ledger is an audit trail, failing to write it never fails the payment
func (svc *Service) recordPending(
	c context.Context,
	sessionID string,
	storefront cart.Storefront,
	provider Provider,
	tx response.CreateTransaction,
	items cart.Cart,
) {
	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CheckoutService recordPending").
		Str(log.KeyProcess, "inserting checkout").
		Logger()

	reference := tx.OrderID
	if reference == "" {
		reference = tx.Token
	}
	row, err := svc.ledger.InsertCheckout(c, repository.InsertCheckoutParams{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Storefront: string(storefront),
		Provider:   string(provider),
		Reference:  reference,
		Total:      repository.Numeric(items.Total()),
		Currency:   items.Currency,
		Status:     repository.CheckoutStatusPending,
	})
	if err != nil {
		err = fmt.Errorf("failed inserting checkout with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Trace().Str(log.KeyCheckoutID, row.ID.String()).Msg("inserted checkout")
}

func (svc *Service) recordOutcome(
	c context.Context,
	sessionID string,
	storefront cart.Storefront,
	provider Provider,
	outcome error,
) {
	if errors.Is(outcome, inErrors.ErrUnknownProvider) {
		return
	}
	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "CheckoutService recordOutcome").
		Str(log.KeyProcess, "updating checkout status").
		Logger()

	status := repository.CheckoutStatusCompleted
	if outcome != nil {
		status = repository.CheckoutStatusFailed
	}
	affected, err := svc.ledger.UpdateLatestCheckoutStatus(c, repository.UpdateLatestCheckoutStatusParams{
		SessionID:     sessionID,
		Storefront:    string(storefront),
		Provider:      string(provider),
		Status:        status,
		FailureReason: repository.Text(Reason(outcome)),
	})
	if err != nil {
		err = fmt.Errorf("failed updating checkout status with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Trace().Int64("affected", affected).Msg("updated checkout status")
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return Reason(err)
}
