package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Alturino/fitclub/internal/errors"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/otel"
)

func WriteJsonResponse(
	c context.Context,
	w http.ResponseWriter,
	header map[string]string,
	body map[string]interface{},
) {
	c, span := otel.Tracer.Start(c, "WriteJsonResponse")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "WriteJsonResponse").Logger()

	w.Header().Set(HeaderContentType, HeaderValueJson)
	for k, v := range header {
		w.Header().Add(k, v)
	}

	if v, ok := body["statusCode"].(int); ok {
		w.WriteHeader(v)
	}

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		errors.HandleError(err, span)
		logger.Error().Err(err).Msgf("failed encode response body with error=%s", err.Error())
		return
	}
}

func WriteFailed(c context.Context, w http.ResponseWriter, statusCode int, message string) {
	WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     StatusFailed,
		"statusCode": statusCode,
		"message":    message,
	})
}

func WriteSuccess(
	c context.Context,
	w http.ResponseWriter,
	message string,
	data map[string]interface{},
) {
	WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    message,
		"data":       data,
	})
}

func WriteHtmlResponse(c context.Context, w http.ResponseWriter, statusCode int, body []byte) {
	c, span := otel.Tracer.Start(c, "WriteHtmlResponse")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "WriteHtmlResponse").Logger()

	w.Header().Set(HeaderContentType, HeaderValueHtml)
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		errors.HandleError(err, span)
		logger.Error().Err(err).Msgf("failed writing html body with error=%s", err.Error())
	}
}

// WriteRedirect answers with statusCode and tells the client where to navigate.
func WriteRedirect(c context.Context, w http.ResponseWriter, statusCode int, message string, redirect string) {
	WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     StatusFailed,
		"statusCode": statusCode,
		"message":    message,
		"redirect":   redirect,
	})
}
