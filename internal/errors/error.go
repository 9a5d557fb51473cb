package errors

import (
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrEmptySession    = errors.New("missing session")
	ErrInvalidPath     = errors.New("invalid path parameter")
	ErrInvalidBody     = errors.New("invalid request body")
	ErrGenericFailure  = errors.New("Ocurrió un error, inténtalo nuevamente")
	ErrUnknownProvider = errors.New("unknown payment provider")
)

func HandleError(err error, span trace.Span) {
	if err == nil {
		return
	}
	span.AddEvent(err.Error())
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}
