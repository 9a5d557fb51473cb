package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/fitclub/internal/backend"
	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/middleware"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/market/internal/cart"
	"github.com/Alturino/fitclub/market/internal/checkout"
	"github.com/Alturino/fitclub/market/internal/repository"
)

type memoryLedger struct {
	rows []repository.Checkout
}

func (m *memoryLedger) InsertCheckout(_ context.Context, arg repository.InsertCheckoutParams) (repository.Checkout, error) {
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
	m.rows = append(m.rows, row)
	return row, nil
}

func (m *memoryLedger) UpdateLatestCheckoutStatus(
	_ context.Context,
	arg repository.UpdateLatestCheckoutStatusParams,
) (int64, error) {
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].SessionID == arg.SessionID && m.rows[i].Status == repository.CheckoutStatusPending {
			m.rows[i].Status = arg.Status
			m.rows[i].FailureReason = arg.FailureReason
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memoryLedger) FindCheckoutsBySession(
	_ context.Context,
	arg repository.FindCheckoutsBySessionParams,
) ([]repository.Checkout, error) {
	rows := []repository.Checkout{}
	for _, row := range m.rows {
		if row.SessionID == arg.SessionID && row.Storefront == arg.Storefront {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

type backendStub struct {
	server        *httptest.Server
	createCalls   atomic.Int32
	validateCalls atomic.Int32
	rejectAll     atomic.Bool
}

func newBackendStub(t *testing.T) *backendStub {
	t.Helper()
	stub := &backendStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"refresh token revoked"}`))
	})
	mux.HandleFunc("POST /market/{storefront}/{provider}/create", func(w http.ResponseWriter, r *http.Request) {
		stub.createCalls.Add(1)
		if stub.rejectAll.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.PathValue("provider") {
		case "webpay":
			w.Write([]byte(`{"token":"tk-1","url":"https://webpay.test/init"}`))
		case "mercadopago":
			w.Write([]byte(`{"init_point":"https://mp.test/checkout"}`))
		default:
			w.Write([]byte(`{"approval_url":"https://paypal.test/approve"}`))
		}
	})
	mux.HandleFunc("POST /market/{storefront}/{provider}/validate", func(w http.ResponseWriter, r *http.Request) {
		stub.validateCalls.Add(1)
		w.Write([]byte(`{"status":"completed","order":{"id":"o-1"}}`))
	})
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

type harness struct {
	router   *mux.Router
	stub     *backendStub
	sessions *session.Manager
}

func newHarness(t *testing.T) harness {
	t.Helper()
	return newHarnessWith(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(session.WithID(r.Context(), "session-1")))
		})
	})
}

func newHarnessWith(t *testing.T, middlewares ...mux.MiddlewareFunc) harness {
	t.Helper()
	stub := newBackendStub(t)
	cfg := config.Backend{BaseURL: stub.server.URL, Timeout: time.Second, MaxFailures: 5, OpenTimeout: time.Second}

	auth := backend.NewAuthClient(cfg)
	sessions := session.NewManager(session.NewMemoryStore(), auth)
	t.Cleanup(sessions.Close)
	client := backend.NewClient(cfg, sessions)

	carts := cart.NewService(cart.NewMemoryStore(), "CLP")
	checkouts := checkout.NewService(carts, client, auth, sessions, &memoryLedger{}, time.Minute)

	router := mux.NewRouter()
	router.Use(middlewares...)
	AttachMarketController(router, carts, checkouts)
	return harness{router: router, stub: stub, sessions: sessions}
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Redirect   string          `json:"redirect"`
	Data       json.RawMessage `json:"data"`
}

func (h harness) do(t *testing.T, method string, path string, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	h.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) envelope {
	t.Helper()
	env := envelope{}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&env))
	return env
}

const addMembership = `{
	"product": {"id": "membership", "name": "Membresía", "prices": {"CLP": "25000", "USD": "27.5"}},
	"quantity": 2
}`

func TestCartRoutes(t *testing.T) {
	h := newHarness(t)

	recorder := h.do(t, http.MethodPost, "/market/gabriel/cart/items", addMembership, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	env := decodeEnvelope(t, recorder)
	assert.JSONEq(t, `"50000"`, string(mustField(t, env.Data, "cart", "total")))

	recorder = h.do(t, http.MethodPut, "/market/gabriel/cart/currency", `{"currency":"usd"}`, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	env = decodeEnvelope(t, recorder)
	assert.JSONEq(t, `"55"`, string(mustField(t, env.Data, "cart", "total")))

	recorder = h.do(t, http.MethodPut, "/market/gabriel/cart/items/membership", `{"quantity":0}`, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	env = decodeEnvelope(t, recorder)
	assert.JSONEq(t, `[]`, string(mustField(t, env.Data, "cart", "items")))

	recorder = h.do(t, http.MethodDelete, "/market/gabriel/cart/items/membership", "", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = h.do(t, http.MethodPost, "/market/gabriel/cart/items", `{"product":{"id":"x"},"quantity":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	oversized := strings.Replace(addMembership, `"quantity": 2`, `"quantity": 9223372036854775807`, 1)
	recorder = h.do(t, http.MethodPost, "/market/gabriel/cart/items", oversized, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = h.do(t, http.MethodPost, "/market/gabriel/cart/items", addMembership, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = h.do(t, http.MethodPut, "/market/gabriel/cart/items/membership", `{"quantity":100}`, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = h.do(t, http.MethodGet, "/market/maria/cart", "", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCheckoutRoutes(t *testing.T) {
	t.Run("given empty cart should answer empty cart without backend call", func(t *testing.T) {
		h := newHarness(t)

		recorder := h.do(t, http.MethodPost, "/market/jose/checkout", `{"method":"webpay","guest":{}}`, nil)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Equal(t, "Tu carrito está vacío", decodeEnvelope(t, recorder).Message)
		assert.EqualValues(t, 0, h.stub.createCalls.Load())
	})

	t.Run("given webpay and html accept should render auto-submitting form", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/market/gabriel/cart/items", addMembership, nil).Code)

		recorder := h.do(t, http.MethodPost, "/market/gabriel/checkout",
			`{"method":"webpay","guest":{"name":"Ana","email":"ana@fitclub.cl"}}`,
			map[string]string{"Accept": "text/html"})

		require.Equal(t, http.StatusOK, recorder.Code)
		page := recorder.Body.String()
		assert.Contains(t, page, `action="https://webpay.test/init"`)
		assert.Contains(t, page, `name="token_ws" value="tk-1"`)
	})

	t.Run("given mercadopago should hand off by redirect", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/market/gabriel/cart/items", addMembership, nil).Code)

		recorder := h.do(t, http.MethodPost, "/market/gabriel/checkout", `{"method":"mercadopago","guest":{}}`, nil)
		require.Equal(t, http.StatusOK, recorder.Code)
		env := decodeEnvelope(t, recorder)
		assert.JSONEq(t, `"redirect"`, string(mustField(t, env.Data, "checkout", "handoff", "kind")))

		recorder = h.do(t, http.MethodPost, "/market/gabriel/checkout", `{"method":"mercadopago","guest":{}}`,
			map[string]string{"Accept": "text/html"})
		assert.Equal(t, http.StatusSeeOther, recorder.Code)
		assert.Equal(t, "https://mp.test/checkout", recorder.Header().Get("Location"))
	})

	t.Run("given unknown method should be rejected", func(t *testing.T) {
		h := newHarness(t)
		recorder := h.do(t, http.MethodPost, "/market/gabriel/checkout", `{"method":"stripe"}`, nil)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("given terminated session should redirect to login", func(t *testing.T) {
		h := newHarness(t)
		h.stub.rejectAll.Store(true)
		require.NoError(t, h.sessions.Login(context.Background(), "session-1",
			session.TokenPair{AccessToken: "a", RefreshToken: "r"}))
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/market/gabriel/cart/items", addMembership, nil).Code)

		recorder := h.do(t, http.MethodPost, "/market/gabriel/checkout", `{"method":"paypal","guest":{}}`, nil)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Equal(t, "/login", decodeEnvelope(t, recorder).Redirect)
		assert.Equal(t, session.StateUnauthenticated, h.sessions.State("session-1"))
	})
}

func TestValidateRoute(t *testing.T) {
	t.Run("given webpay cancellation should fail without backend call", func(t *testing.T) {
		h := newHarness(t)

		recorder := h.do(t, http.MethodGet, "/market/gabriel/webpay/validate?TBK_TOKEN=abc", "", nil)

		assert.Equal(t, http.StatusPaymentRequired, recorder.Code)
		env := decodeEnvelope(t, recorder)
		assert.JSONEq(t, `"cancelled"`, string(mustField(t, env.Data, "reason")))
		assert.EqualValues(t, 0, h.stub.validateCalls.Load())
	})

	t.Run("given webpay token posted back should complete and clear cart", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/market/gabriel/cart/items", addMembership, nil).Code)
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/market/gabriel/checkout", `{"method":"webpay","guest":{}}`, nil).Code)

		recorder := h.do(t, http.MethodPost, "/market/gabriel/webpay/validate", "token_ws=XYZ",
			map[string]string{"Content-Type": "application/x-www-form-urlencoded"})

		require.Equal(t, http.StatusOK, recorder.Code)
		env := decodeEnvelope(t, recorder)
		assert.JSONEq(t, `{"id":"o-1"}`, string(mustField(t, env.Data, "outcome", "order")))

		recorder = h.do(t, http.MethodGet, "/market/gabriel/cart", "", nil)
		env = decodeEnvelope(t, recorder)
		assert.JSONEq(t, `[]`, string(mustField(t, env.Data, "cart", "items")))

		recorder = h.do(t, http.MethodGet, "/market/gabriel/checkouts", "", nil)
		env = decodeEnvelope(t, recorder)
		assert.True(t, strings.Contains(string(env.Data), `"status":"completed"`))
	})

	t.Run("given webpay abort posted without cookie should redirect to GET keeping the cookie", func(t *testing.T) {
		cfg := config.Session{CookieName: "fitclub_session", TTL: time.Hour}
		h := newHarnessWith(t, middleware.Session(cfg))

		recorder := h.do(t, http.MethodPost, "/market/gabriel/webpay/validate", "TBK_TOKEN=abc",
			map[string]string{"Content-Type": "application/x-www-form-urlencoded"})

		require.Equal(t, http.StatusSeeOther, recorder.Code)
		assert.Empty(t, recorder.Result().Cookies())
		location := recorder.Header().Get("Location")
		assert.Equal(t, "/market/gabriel/webpay/validate?TBK_TOKEN=abc", location)
		assert.EqualValues(t, 0, h.stub.validateCalls.Load())

		req := httptest.NewRequest(http.MethodGet, location, nil)
		req.AddCookie(&http.Cookie{Name: cfg.CookieName, Value: uuid.NewString()})
		recorder = httptest.NewRecorder()
		h.router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusPaymentRequired, recorder.Code)
		assert.Empty(t, recorder.Result().Cookies())
		env := decodeEnvelope(t, recorder)
		assert.JSONEq(t, `"cancelled"`, string(mustField(t, env.Data, "reason")))
	})

	t.Run("given mercadopago without payment_id should fail without backend call", func(t *testing.T) {
		h := newHarness(t)

		recorder := h.do(t, http.MethodGet, "/market/jose/mercadopago/validate?status=approved", "", nil)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.EqualValues(t, 0, h.stub.validateCalls.Load())
	})
}

func mustField(t *testing.T, data json.RawMessage, path ...string) json.RawMessage {
	t.Helper()
	current := data
	for _, key := range path {
		fields := map[string]json.RawMessage{}
		require.NoError(t, json.Unmarshal(current, &fields), "decoding %s", key)
		value, ok := fields[key]
		require.True(t, ok, "missing field %s", key)
		current = value
	}
	return current
}
