package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/Alturino/fitclub/internal/backend"
	"github.com/Alturino/fitclub/internal/constants"
	inErrors "github.com/Alturino/fitclub/internal/errors"
	inHttp "github.com/Alturino/fitclub/internal/http"
	"github.com/Alturino/fitclub/internal/session"
	"github.com/Alturino/fitclub/market/internal/cart"
	"github.com/Alturino/fitclub/market/internal/checkout"
)

func statusCode(err error) int {
	var backendErr *backend.Error
	switch {
	case errors.Is(err, inErrors.ErrEmptySession):
		return http.StatusUnauthorized
	case errors.Is(err, cart.ErrUnknownStorefront),
		errors.Is(err, inErrors.ErrUnknownProvider),
		errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, inErrors.ErrInvalidBody),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrMissingParameters):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrPriceNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrTransactionCancelled),
		errors.Is(err, checkout.ErrTransactionExpired),
		errors.Is(err, checkout.ErrValidationRejected):
		return http.StatusPaymentRequired
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

func message(err error) string {
	switch {
	case errors.Is(err, cart.ErrUnknownStorefront),
		errors.Is(err, inErrors.ErrUnknownProvider),
		errors.Is(err, inErrors.ErrInvalidBody),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrPriceNotFound):
		return err.Error()
	default:
		return checkout.Message(err)
	}
}

// writeError answers a failed request. A session whose refresh failed is sent
// to the login page.
func writeError(c context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionTerminated) {
		inHttp.WriteRedirect(c, w, http.StatusUnauthorized, "Tu sesión expiró", constants.LOGIN_PATH)
		return
	}
	inHttp.WriteFailed(c, w, statusCode(err), message(err))
}
