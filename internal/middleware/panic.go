package middleware

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/fitclub/internal/errors"
	inHttp "github.com/Alturino/fitclub/internal/http"
	"github.com/Alturino/fitclub/internal/otel"
)

func RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, span := otel.Tracer.Start(r.Context(), "middleware RecoverPanic")
		defer span.End()

		logger := zerolog.Ctx(c)
		defer func() {
			if recovered := recover(); recovered != nil {
				err, ok := recovered.(error)
				if !ok {
					err = fmt.Errorf("%v", recovered)
				}
				inErrors.HandleError(err, span)
				logger.Error().Err(err).Stack().Msg("recovered from panic")
				inHttp.WriteFailed(c, w, http.StatusInternalServerError, inErrors.ErrGenericFailure.Error())
			}
		}()

		next.ServeHTTP(w, r)
	})
}
