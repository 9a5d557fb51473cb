package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/fitclub/internal/backend"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/market/internal/cart"
	"github.com/Alturino/fitclub/market/internal/repository"
	"github.com/Alturino/fitclub/market/pkg/request"
	"github.com/Alturino/fitclub/market/pkg/response"
	userRequest "github.com/Alturino/fitclub/user/pkg/request"
)

type fakeTransactions struct {
	createCalls   atomic.Int32
	validateCalls atomic.Int32
	created       request.CreateTransaction
	createRes     response.CreateTransaction
	createErr     error
	validated     map[string]string
	validateRes   response.ValidateTransaction
	validateErr   error
}

func (f *fakeTransactions) CreateTransaction(
	_ context.Context,
	_ string,
	_ string,
	req request.CreateTransaction,
) (response.CreateTransaction, error) {
	f.createCalls.Add(1)
	f.created = req
	return f.createRes, f.createErr
}

func (f *fakeTransactions) ValidateTransaction(
	_ context.Context,
	_ string,
	_ string,
	params map[string]string,
) (response.ValidateTransaction, error) {
	f.validateCalls.Add(1)
	f.validated = params
	return f.validateRes, f.validateErr
}

type fakeAccounts struct {
	registerErr error
	registered  []userRequest.Register
}

func (f *fakeAccounts) Register(_ context.Context, req userRequest.Register) error {
	f.registered = append(f.registered, req)
	return f.registerErr
}

func (f *fakeAccounts) Login(_ context.Context, req userRequest.Login) (session.TokenPair, error) {
	return session.TokenPair{AccessToken: "access-" + req.Email, RefreshToken: "refresh"}, nil
}

type fakeSessions struct {
	logins   map[string]session.TokenPair
	periodic []string
}

func (f *fakeSessions) Login(_ context.Context, sessionID string, pair session.TokenPair) error {
	f.logins[sessionID] = pair
	return nil
}

func (f *fakeSessions) StartPeriodicRefresh(_ context.Context, sessionID string, _ time.Duration) func() {
	f.periodic = append(f.periodic, sessionID)
	return func() {}
}

type fakeLedger struct {
	mu   sync.Mutex
	rows []repository.Checkout
	err  error
}

func (f *fakeLedger) InsertCheckout(_ context.Context, arg repository.InsertCheckoutParams) (repository.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.Checkout{}, f.err
	}
	row := repository.Checkout{
		ID:         arg.ID,
		SessionID:  arg.SessionID,
		Storefront: arg.Storefront,
		Provider:   arg.Provider,
		Reference:  arg.Reference,
		Total:      arg.Total,
		Currency:   arg.Currency,
		Status:     arg.Status,
	}
	f.rows = append([]repository.Checkout{row}, f.rows...)
	return row, nil
}

func (f *fakeLedger) UpdateLatestCheckoutStatus(
	_ context.Context,
	arg repository.UpdateLatestCheckoutStatusParams,
) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows {
		if row.SessionID == arg.SessionID && row.Storefront == arg.Storefront &&
			row.Provider == arg.Provider && row.Status == repository.CheckoutStatusPending {
			f.rows[i].Status = arg.Status
			f.rows[i].FailureReason = arg.FailureReason
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeLedger) FindCheckoutsBySession(
	_ context.Context,
	arg repository.FindCheckoutsBySessionParams,
) ([]repository.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := []repository.Checkout{}
	for _, row := range f.rows {
		if row.SessionID == arg.SessionID && row.Storefront == arg.Storefront {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

var membership = cart.Product{
	ID:     "membership",
	Name:   "Membresía mensual",
	Prices: map[string]decimal.Decimal{"CLP": decimal.NewFromInt(25000)},
}

type fixture struct {
	svc          *Service
	carts        *cart.Service
	transactions *fakeTransactions
	accounts     *fakeAccounts
	sessions     *fakeSessions
	ledger       *fakeLedger
}

func newFixture(t *testing.T, withItems bool) fixture {
	t.Helper()
	f := fixture{
		carts:        cart.NewService(cart.NewMemoryStore(), "CLP"),
		transactions: &fakeTransactions{},
		accounts:     &fakeAccounts{},
		sessions:     &fakeSessions{logins: map[string]session.TokenPair{}},
		ledger:       &fakeLedger{},
	}
	f.svc = NewService(f.carts, f.transactions, f.accounts, f.sessions, f.ledger, time.Minute)
	if withItems {
		_, err := f.carts.Add(context.Background(), "session-1", cart.StorefrontGabriel, membership, 2, "")
		require.NoError(t, err)
	}
	return f
}

func (f fixture) cartEmpty(t *testing.T) bool {
	t.Helper()
	current, err := f.carts.Get(context.Background(), "session-1", cart.StorefrontGabriel)
	require.NoError(t, err)
	return current.Empty()
}

func TestCheckoutEmptyCartMakesNoRequest(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.Checkout(context.Background(), "session-1", cart.StorefrontGabriel, ProviderWebpay,
		request.GuestData{Name: "Ana", Email: "ana@fitclub.cl", Password: "secret1", Phone: "+56911112222", ShouldRegister: true})

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, "Tu carrito está vacío", Message(err))
	assert.EqualValues(t, 0, f.transactions.createCalls.Load())
	assert.Empty(t, f.accounts.registered)
	assert.Empty(t, f.ledger.rows)
}

func TestCheckout(t *testing.T) {
	tests := []struct {
		name            string
		provider        Provider
		createRes       response.CreateTransaction
		guest           request.GuestData
		expectedHandoff Handoff
		expectedGuest   *request.GuestDetails
	}{
		{
			name:      "given webpay should hand off with form post of token_ws",
			provider:  ProviderWebpay,
			createRes: response.CreateTransaction{Token: "tk-1", URL: "https://webpay.test/init"},
			guest:     request.GuestData{Name: "Ana", Email: "ana@fitclub.cl"},
			expectedHandoff: Handoff{
				Kind:   HandoffFormPost,
				URL:    "https://webpay.test/init",
				Fields: map[string]string{"token_ws": "tk-1"},
			},
			expectedGuest: &request.GuestDetails{Name: "Ana", Email: "ana@fitclub.cl"},
		},
		{
			name:            "given mercadopago should redirect to init point",
			provider:        ProviderMercadoPago,
			createRes:       response.CreateTransaction{InitPoint: "https://mp.test/checkout"},
			guest:           request.GuestData{Name: "Ana", Email: "ana@fitclub.cl"},
			expectedHandoff: Handoff{Kind: HandoffRedirect, URL: "https://mp.test/checkout"},
			expectedGuest:   &request.GuestDetails{Name: "Ana", Email: "ana@fitclub.cl"},
		},
		{
			name:            "given paypal without guest data should redirect and send no guest details",
			provider:        ProviderPayPal,
			createRes:       response.CreateTransaction{ApprovalURL: "https://paypal.test/approve"},
			expectedHandoff: Handoff{Kind: HandoffRedirect, URL: "https://paypal.test/approve"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.transactions.createRes = test.createRes

			actual, err := f.svc.Checkout(context.Background(), "session-1", cart.StorefrontGabriel, test.provider, test.guest)

			require.NoError(t, err)
			assert.Equal(t, test.expectedHandoff, actual.Handoff)
			assert.False(t, actual.RegistrationFailed)
			assert.Equal(t, []request.LineItem{{ProductID: "membership", Quantity: 2}}, f.transactions.created.Items)
			assert.Equal(t, test.expectedGuest, f.transactions.created.GuestDetails)
			assert.False(t, f.cartEmpty(t), "cart stays until payment is validated")

			require.Len(t, f.ledger.rows, 1)
			assert.Equal(t, repository.CheckoutStatusPending, f.ledger.rows[0].Status)
			assert.Equal(t, string(test.provider), f.ledger.rows[0].Provider)
		})
	}
}

func TestCheckoutRegistersGuest(t *testing.T) {
	f := newFixture(t, true)
	f.transactions.createRes = response.CreateTransaction{InitPoint: "https://mp.test/checkout"}
	guest := request.GuestData{
		Name:           "Ana",
		Email:          "ana@fitclub.cl",
		Password:       "secret1",
		Phone:          "+56911112222",
		ShouldRegister: true,
	}

	actual, err := f.svc.Checkout(context.Background(), "session-1", cart.StorefrontGabriel, ProviderMercadoPago, guest)

	require.NoError(t, err)
	assert.False(t, actual.RegistrationFailed)
	require.Len(t, f.accounts.registered, 1)
	assert.Equal(t, "+56911112222", f.accounts.registered[0].Phone)
	assert.Equal(t, "access-ana@fitclub.cl", f.sessions.logins["session-1"].AccessToken)
	assert.Equal(t, []string{"session-1"}, f.sessions.periodic)
}

func TestCheckoutRegistrationFailureContinuesAsGuest(t *testing.T) {
	f := newFixture(t, true)
	f.accounts.registerErr = &backend.Error{StatusCode: http.StatusConflict, Message: "Email ya registrado"}
	f.transactions.createRes = response.CreateTransaction{Token: "tk-1", URL: "https://webpay.test/init"}
	guest := request.GuestData{
		Name:           "Ana",
		Email:          "ana@fitclub.cl",
		Password:       "secret1",
		Phone:          "+56911112222",
		ShouldRegister: true,
	}

	actual, err := f.svc.Checkout(context.Background(), "session-1", cart.StorefrontGabriel, ProviderWebpay, guest)

	require.NoError(t, err)
	assert.True(t, actual.RegistrationFailed)
	assert.Equal(t, "Email ya registrado", actual.RegistrationMessage)
	assert.Empty(t, f.sessions.logins)
	assert.Equal(t, &request.GuestDetails{Name: "Ana", Email: "ana@fitclub.cl"}, f.transactions.created.GuestDetails)
}

func TestCheckoutRegistrationNeedsPasswordAndPhone(t *testing.T) {
	f := newFixture(t, true)
	f.transactions.createRes = response.CreateTransaction{ApprovalURL: "https://paypal.test/approve"}

	_, err := f.svc.Checkout(context.Background(), "session-1", cart.StorefrontGabriel, ProviderPayPal,
		request.GuestData{Name: "Ana", Email: "ana@fitclub.cl", Password: "secret1", ShouldRegister: true})

	require.NoError(t, err)
	assert.Empty(t, f.accounts.registered)
}

func TestCheckoutCreateTransactionFailure(t *testing.T) {
	tests := []struct {
		name            string
		createRes       response.CreateTransaction
		createErr       error
		expectedMessage string
	}{
		{
			name:            "given backend error should surface its message",
			createErr:       &backend.Error{StatusCode: http.StatusBadRequest, Message: "Producto sin stock"},
			expectedMessage: "Producto sin stock",
		},
		{
			name:            "given network error should surface generic message",
			createErr:       errors.New("connection reset"),
			expectedMessage: "Ocurrió un error, inténtalo nuevamente",
		},
		{
			name:            "given webpay response without token should fail",
			createRes:       response.CreateTransaction{URL: "https://webpay.test/init"},
			expectedMessage: "Ocurrió un error, inténtalo nuevamente",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.transactions.createRes = test.createRes
			f.transactions.createErr = test.createErr

			_, err := f.svc.Checkout(context.Background(), "session-1", cart.StorefrontGabriel, ProviderWebpay, request.GuestData{})

			assert.ErrorIs(t, err, ErrCreateTransaction)
			assert.Equal(t, test.expectedMessage, Message(err))
			assert.False(t, f.cartEmpty(t))
			assert.Empty(t, f.ledger.rows)
		})
	}
}

func TestValidate(t *testing.T) {
	order := json.RawMessage(`{"id":"o-1","total":50000}`)
	tests := []struct {
		name              string
		provider          Provider
		query             url.Values
		validateRes       response.ValidateTransaction
		validateErr       error
		expectedErr       error
		expectedParams    map[string]string
		expectedCalls     int32
		expectedCartEmpty bool
		expectedStatus    repository.CheckoutStatus
		expectedReason    string
	}{
		{
			name:           "given webpay TBK_TOKEN without token_ws should be cancelled without backend call",
			provider:       ProviderWebpay,
			query:          url.Values{"TBK_TOKEN": {"abc"}, "TBK_ORDEN_COMPRA": {"oc-1"}},
			expectedErr:    ErrTransactionCancelled,
			expectedStatus: repository.CheckoutStatusFailed,
			expectedReason: "cancelled",
		},
		{
			name:           "given webpay TBK_ORDEN_COMPRA without token_ws should be expired",
			provider:       ProviderWebpay,
			query:          url.Values{"TBK_ORDEN_COMPRA": {"oc-1"}, "TBK_ID_SESION": {"s-1"}},
			expectedErr:    ErrTransactionExpired,
			expectedStatus: repository.CheckoutStatusFailed,
			expectedReason: "expired",
		},
		{
			name:           "given webpay without parameters should fail closed",
			provider:       ProviderWebpay,
			query:          url.Values{},
			expectedErr:    ErrMissingParameters,
			expectedStatus: repository.CheckoutStatusFailed,
			expectedReason: "missing_parameters",
		},
		{
			name:              "given webpay token_ws and completed status should succeed and clear cart",
			provider:          ProviderWebpay,
			query:             url.Values{"token_ws": {"XYZ"}},
			validateRes:       response.ValidateTransaction{Status: "completed", Order: order},
			expectedParams:    map[string]string{"token_ws": "XYZ"},
			expectedCalls:     1,
			expectedCartEmpty: true,
			expectedStatus:    repository.CheckoutStatusCompleted,
		},
		{
			name:           "given mercadopago without payment_id should fail without backend call",
			provider:       ProviderMercadoPago,
			query:          url.Values{"status": {"approved"}},
			expectedErr:    ErrMissingParameters,
			expectedStatus: repository.CheckoutStatusFailed,
			expectedReason: "missing_parameters",
		},
		{
			name:     "given mercadopago parameters should pass external_reference through",
			provider: ProviderMercadoPago,
			query: url.Values{
				"payment_id":         {"123"},
				"status":             {"approved"},
				"external_reference": {"ref-9"},
				"merchant_order_id":  {"ignored"},
			},
			validateRes: response.ValidateTransaction{Status: "completed", Order: order},
			expectedParams: map[string]string{
				"payment_id":         "123",
				"status":             "approved",
				"external_reference": "ref-9",
			},
			expectedCalls:     1,
			expectedCartEmpty: true,
			expectedStatus:    repository.CheckoutStatusCompleted,
		},
		{
			name:           "given paypal status other than completed should be rejected and keep cart",
			provider:       ProviderPayPal,
			query:          url.Values{"token": {"EC-1"}, "PayerID": {"P-1"}},
			validateRes:    response.ValidateTransaction{Status: "pending"},
			expectedErr:    ErrValidationRejected,
			expectedParams: map[string]string{"token": "EC-1"},
			expectedCalls:  1,
			expectedStatus: repository.CheckoutStatusFailed,
			expectedReason: "rejected",
		},
		{
			name:           "given paypal without token should fail closed",
			provider:       ProviderPayPal,
			query:          url.Values{"PayerID": {"P-1"}},
			expectedErr:    ErrMissingParameters,
			expectedStatus: repository.CheckoutStatusFailed,
			expectedReason: "missing_parameters",
		},
		{
			name:           "given backend failure should keep cart",
			provider:       ProviderPayPal,
			query:          url.Values{"token": {"EC-1"}},
			validateErr:    &backend.Error{StatusCode: http.StatusBadGateway},
			expectedErr:    &backend.Error{},
			expectedParams: map[string]string{"token": "EC-1"},
			expectedCalls:  1,
			expectedStatus: repository.CheckoutStatusFailed,
			expectedReason: "error",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := context.Background()
			f := newFixture(t, true)
			f.transactions.createRes = response.CreateTransaction{
				Token:       "tk",
				URL:         "https://provider.test",
				InitPoint:   "https://provider.test",
				ApprovalURL: "https://provider.test",
			}
			_, err := f.svc.Checkout(c, "session-1", cart.StorefrontGabriel, test.provider, request.GuestData{})
			require.NoError(t, err)
			f.transactions.validateRes = test.validateRes
			f.transactions.validateErr = test.validateErr

			actual, err := f.svc.Validate(c, "session-1", cart.StorefrontGabriel, test.provider, test.query)

			if test.expectedErr != nil {
				var backendErr *backend.Error
				if errors.As(test.expectedErr, &backendErr) {
					assert.ErrorAs(t, err, &backendErr)
				} else {
					assert.ErrorIs(t, err, test.expectedErr)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, "completed", actual.Status)
				assert.JSONEq(t, string(order), string(actual.Order))
			}
			assert.Equal(t, test.expectedCalls, f.transactions.validateCalls.Load())
			assert.Equal(t, test.expectedParams, f.transactions.validated)
			assert.Equal(t, test.expectedCartEmpty, f.cartEmpty(t))

			history, err := f.svc.History(c, "session-1", cart.StorefrontGabriel)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, string(test.expectedStatus), history[0].Status)
			assert.Equal(t, test.expectedReason, history[0].FailureReason)
		})
	}
}

func TestLedgerFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t, true)
	f.ledger.err = errors.New("database down")
	f.transactions.createRes = response.CreateTransaction{ApprovalURL: "https://paypal.test/approve"}

	_, err := f.svc.Checkout(context.Background(), "session-1", cart.StorefrontGabriel, ProviderPayPal, request.GuestData{})

	assert.NoError(t, err)
}
