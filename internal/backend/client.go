package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alturino/fitclub/internal/config"
	inErrors "github.com/Alturino/fitclub/internal/errors"
	inHttp "github.com/Alturino/fitclub/internal/http"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/metrics"
	"github.com/Alturino/fitclub/internal/otel"
	"github.com/Alturino/fitclub/internal/session"
)

// Error is a non-2xx answer of the backend. Message carries the backend's own
// message field when it sent one.
type Error struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with status=%d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded with status=%d message=%s", e.StatusCode, e.Message)
}

// Message returns the text to show the user for err: the backend's message when
// available, else the generic fallback.
func Message(err error) string {
	var backendErr *Error
	if errors.As(err, &backendErr) && backendErr.Message != "" {
		return backendErr.Message
	}
	return inErrors.ErrGenericFailure.Error()
}

type result struct {
	statusCode int
	body       []byte
}

type base struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[result]
}

func newBase(name string, cfg config.Backend, transport http.RoundTripper) base {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return base{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[result](gobreaker.Settings{
			Name:    name,
			Timeout: cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: isSuccessful,
		}),
	}
}

// only transport failures and 5xx count against the breaker
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.StatusCode < http.StatusInternalServerError
	}
	return errors.Is(err, session.ErrSessionTerminated) || errors.Is(err, context.Canceled)
}

func (b base) do(
	c context.Context,
	method string,
	endpoint string,
	body any,
	out any,
) error {
	c, span := otel.Tracer.Start(c, "backend do", trace.WithAttributes(
		attribute.String(log.KeyRequestMethod, method),
		attribute.String(log.KeyEndpoint, endpoint),
	))
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "backend do").
		Str(log.KeyRequestMethod, method).
		Str(log.KeyEndpoint, endpoint).
		Logger()

	var payload []byte
	if body != nil {
		logger = logger.With().Str(log.KeyProcess, "encoding request body").Logger()
		logger.Trace().Msg("encoding request body")
		data, err := json.Marshal(body)
		if err != nil {
			err = fmt.Errorf("failed encoding request body with error=%w", err)
			inErrors.HandleError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		payload = data
		logger.Trace().Msg("encoded request body")
	}

	logger = logger.With().Str(log.KeyProcess, "sending request").Logger()
	logger.Trace().Msg("sending request")
	start := time.Now()
	res, err := b.breaker.Execute(func() (result, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(c, method, b.baseURL+endpoint, reader)
		if err != nil {
			return result{}, err
		}
		req.Header.Set(inHttp.HeaderAccept, inHttp.HeaderValueJson)
		if payload != nil {
			req.Header.Set(inHttp.HeaderContentType, inHttp.HeaderValueJson)
		}
		if requestID := log.RequestIDFromContext(c); requestID != "" {
			req.Header.Set(inHttp.HeaderRequestID, requestID)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return result{}, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, err
		}
		res := result{statusCode: resp.StatusCode, body: data}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			backendErr := &Error{StatusCode: resp.StatusCode}
			if err := json.Unmarshal(data, backendErr); err != nil {
				logger.Warn().
					Err(err).
					Int(log.KeyResponseStatusCode, resp.StatusCode).
					Msgf("failed decoding backend error body with error=%s", err.Error())
			}
			return res, backendErr
		}
		return res, nil
	})
	metrics.BackendRequestDuration.
		WithLabelValues(endpointLabel(endpoint), strconv.Itoa(res.statusCode)).
		Observe(time.Since(start).Seconds())
	if err != nil {
		err = fmt.Errorf("failed requesting %s %s with error=%w", method, endpoint, err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger = logger.With().Int(log.KeyResponseStatusCode, res.statusCode).Logger()
	logger.Trace().Msg("sent request")

	if out == nil || len(res.body) == 0 {
		return nil
	}
	logger = logger.With().Str(log.KeyProcess, "decoding response body").Logger()
	logger.Trace().Msg("decoding response body")
	if err := json.Unmarshal(res.body, out); err != nil {
		err = fmt.Errorf("failed decoding response body with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Msg("decoded response body")

	return nil
}

// endpointLabel drops the creator slug so the metric keeps a bounded label set.
func endpointLabel(endpoint string) string {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	if len(parts) == 4 && parts[0] == "market" {
		return "/market/" + parts[2] + "/" + parts[3]
	}
	return endpoint
}

func newOtelTransport() http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport)
}
