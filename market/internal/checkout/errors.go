package checkout

import (
	"errors"

	"github.com/Alturino/fitclub/internal/backend"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrCreateTransaction    = errors.New("failed creating provider transaction")
	ErrInvalidHandoff       = errors.New("provider transaction has no hand-off target")
	ErrMissingParameters    = errors.New("callback is missing required parameters")
	ErrValidationRejected   = errors.New("payment rejected")
	ErrTransactionCancelled = errors.New("transaction cancelled by user")
	ErrTransactionExpired   = errors.New("transaction expired")
)

// Message is the text shown to the buyer for a checkout or validation error.
// Backend messages are surfaced verbatim when the backend sent one.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "Tu carrito está vacío"
	case errors.Is(err, ErrTransactionCancelled):
		return "Cancelaste el pago"
	case errors.Is(err, ErrTransactionExpired):
		return "El tiempo para completar el pago expiró"
	case errors.Is(err, ErrMissingParameters):
		return "No pudimos verificar el pago, faltan parámetros"
	case errors.Is(err, ErrValidationRejected):
		return "El pago fue rechazado"
	default:
		return backend.Message(err)
	}
}

// Reason is the stable code recorded on the ledger and exposed to clients.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrTransactionCancelled):
		return "cancelled"
	case errors.Is(err, ErrTransactionExpired):
		return "expired"
	case errors.Is(err, ErrMissingParameters):
		return "missing_parameters"
	case errors.Is(err, ErrValidationRejected):
		return "rejected"
	case errors.Is(err, ErrCreateTransaction):
		return "create_transaction_failed"
	default:
		return "error"
	}
}
