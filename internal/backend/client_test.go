package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/session"
	marketRequest "github.com/Alturino/fitclub/market/pkg/request"
	"github.com/Alturino/fitclub/user/pkg/request"
)

func testConfig(url string) config.Backend {
	return config.Backend{
		BaseURL:     url,
		Timeout:     time.Second,
		MaxFailures: 2,
		OpenTimeout: time.Minute,
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "given backend message should surface it",
			err:      &Error{StatusCode: http.StatusBadRequest, Message: "Stock insuficiente"},
			expected: "Stock insuficiente",
		},
		{
			name:     "given wrapped backend error should surface its message",
			err:      errors.Join(errors.New("outer"), &Error{StatusCode: 422, Message: "Email ya registrado"}),
			expected: "Email ya registrado",
		},
		{
			name:     "given backend error without message should fall back",
			err:      &Error{StatusCode: http.StatusInternalServerError},
			expected: "Ocurrió un error, inténtalo nuevamente",
		},
		{
			name:     "given transport error should fall back",
			err:      errors.New("connection refused"),
			expected: "Ocurrió un error, inténtalo nuevamente",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, Message(test.err))
		})
	}
}

func TestAuthClient(t *testing.T) {
	var received atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{}
		json.NewDecoder(r.Body).Decode(&body)
		received.Store(body)
		assert.Equal(t, "req-1", r.Header.Get("X-Request-Id"))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"Credenciales inválidas"}`))
			return
		}
		w.Write([]byte(`{"accessToken":"a1","refreshToken":"r1"}`))
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["refreshToken"] != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"accessToken":"a2","refreshToken":"r2"}`))
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"Email ya registrado"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newAuthClient(testConfig(server.URL), http.DefaultTransport)
	c := log.AttachRequestIDToContext(context.Background(), "req-1")

	t.Run("given valid credentials should return the pair", func(t *testing.T) {
		pair, err := client.Login(c, request.Login{Email: "ana@fitclub.cl", Password: "secret"})
		require.NoError(t, err)
		assert.Equal(t, session.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, pair)
		body := received.Load().(map[string]string)
		assert.Equal(t, "secret", body["password"])
	})

	t.Run("given invalid credentials should surface backend message", func(t *testing.T) {
		_, err := client.Login(c, request.Login{Email: "ana@fitclub.cl", Password: "wrong"})
		require.Error(t, err)
		backendErr := &Error{}
		require.ErrorAs(t, err, &backendErr)
		assert.Equal(t, http.StatusUnauthorized, backendErr.StatusCode)
		assert.Equal(t, "Credenciales inválidas", Message(err))
	})

	t.Run("given refresh token should exchange it", func(t *testing.T) {
		pair, err := client.Refresh(c, "r1")
		require.NoError(t, err)
		assert.Equal(t, session.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, pair)
	})

	t.Run("given taken email should fail registration", func(t *testing.T) {
		err := client.Register(c, request.Register{Name: "Ana", Email: "ana@fitclub.cl", Password: "secret1"})
		assert.Equal(t, "Email ya registrado", Message(err))
	})
}

func TestClientMarket(t *testing.T) {
	var created atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("POST /market/gabriel/webpay/create", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		created.Store(string(data))
		w.Write([]byte(`{"token":"tk-1","url":"https://webpay.test/init"}`))
	})
	mux.HandleFunc("POST /market/jose/paypal/validate", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{}
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "EC-1", body["token"])
		w.Write([]byte(`{"status":"completed","order":{"id":"o-1"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newClient(testConfig(server.URL), http.DefaultTransport)
	c := context.Background()

	res, err := client.CreateTransaction(c, "gabriel", "webpay", marketRequest.CreateTransaction{
		Items:        []marketRequest.LineItem{{ProductID: "p-1", Quantity: 2}},
		GuestDetails: &marketRequest.GuestDetails{Name: "Ana", Email: "ana@fitclub.cl"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tk-1", res.Token)
	assert.Equal(t, "https://webpay.test/init", res.URL)
	assert.JSONEq(t,
		`{"items":[{"productId":"p-1","quantity":2}],"guestDetails":{"name":"Ana","email":"ana@fitclub.cl"}}`,
		created.Load().(string),
	)

	validated, err := client.ValidateTransaction(c, "jose", "paypal", map[string]string{"token": "EC-1"})
	require.NoError(t, err)
	assert.Equal(t, "completed", validated.Status)
	assert.JSONEq(t, `{"id":"o-1"}`, string(validated.Order))
}

func TestClientNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html><body>Internal Server Error</body></html>"))
	}))
	defer server.Close()

	out := &bytes.Buffer{}
	c := zerolog.New(out).WithContext(context.Background())
	client := newClient(testConfig(server.URL), http.DefaultTransport)

	_, err := client.Me(c)

	backendErr := &Error{}
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusInternalServerError, backendErr.StatusCode)
	assert.Empty(t, backendErr.Message)
	assert.Equal(t, "Ocurrió un error, inténtalo nuevamente", Message(err))
	assert.Contains(t, out.String(), "failed decoding backend error body")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	client := newClient(testConfig(server.URL), http.DefaultTransport)
	c := context.Background()

	for range 3 {
		_, err := client.Me(c)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, client.breaker.State())

	status.Store(http.StatusBadGateway)
	for range 2 {
		_, err := client.Me(c)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.breaker.State())

	before := hits.Load()
	_, err := client.Me(c)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, hits.Load())
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/market/webpay/create", endpointLabel("/market/gabriel/webpay/create"))
	assert.Equal(t, "/auth/me", endpointLabel("/auth/me"))
}
