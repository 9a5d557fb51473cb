package controller

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/fitclub/club/internal/feed"
	"github.com/Alturino/fitclub/club/pkg/response"
	inErrors "github.com/Alturino/fitclub/internal/errors"
	inHttp "github.com/Alturino/fitclub/internal/http"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/otel"
)

type ClubController struct {
	feed   *feed.Service
	config response.Config
}

func AttachClubController(mux *mux.Router, feed *feed.Service, config response.Config) {
	controller := ClubController{feed: feed, config: config}

	router := mux.PathPrefix("/club").Subrouter()
	router.HandleFunc("/videos", controller.Videos).Methods(http.MethodGet)
	router.HandleFunc("/config", controller.Config).Methods(http.MethodGet)
}

func (cl ClubController) Videos(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ClubController Videos")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "ClubController Videos").
		Str(log.KeyProcess, "finding videos").
		Logger()

	logger.Trace().Msg("finding videos")
	videos, err := cl.feed.Videos(logger.WithContext(c))
	if err != nil {
		err = fmt.Errorf("failed finding videos with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadGateway, inErrors.ErrGenericFailure.Error())
		return
	}
	logger.Trace().Msg("found videos")

	inHttp.WriteSuccess(c, w, "videos found", map[string]interface{}{"videos": videos})
}

func (cl ClubController) Config(w http.ResponseWriter, r *http.Request) {
	inHttp.WriteSuccess(r.Context(), w, "config found", map[string]interface{}{"config": cl.config})
}
