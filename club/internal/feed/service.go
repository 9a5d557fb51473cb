package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/Alturino/fitclub/club/pkg/response"
	"github.com/Alturino/fitclub/internal/config"
	inErrors "github.com/Alturino/fitclub/internal/errors"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/otel"
)

var ErrFeedUnavailable = errors.New("video feed unavailable")

type Service struct {
	client    *http.Client
	feedURL   string
	channelID string
	cache     Cache
	group     singleflight.Group
}

func NewService(cfg config.Youtube, cache Cache) *Service {
	return newService(cfg, cache, otelhttp.NewTransport(http.DefaultTransport))
}

func newService(cfg config.Youtube, cache Cache, transport http.RoundTripper) *Service {
	return &Service{
		client:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		feedURL:   cfg.FeedURL,
		channelID: cfg.ChannelID,
		cache:     cache,
	}
}

// Videos returns the latest videos of the channel. Concurrent misses share a
// single upstream fetch.
func (s *Service) Videos(c context.Context) ([]response.Video, error) {
	c, span := otel.Tracer.Start(c, "Service Videos")
	defer span.End()

	logger := zerolog.Ctx(c).With().
		Str(log.KeyTag, "Service Videos").
		Str(log.KeyChannelID, s.channelID).
		Str(log.KeyProcess, "reading cached videos").
		Logger()

	logger.Trace().Msg("reading cached videos")
	videos, err := s.cache.Get(c, s.channelID)
	if err == nil {
		logger.Trace().Msg("read cached videos")
		return videos, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.Warn().Err(err).Msg(err.Error())
	}

	v, err, shared := s.group.Do(s.channelID, func() (interface{}, error) {
		return s.fetch(logger.WithContext(c))
	})
	if err != nil {
		err = fmt.Errorf("failed fetching videos with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Trace().Bool("shared", shared).Msg("fetched videos")

	return v.([]response.Video), nil
}

func (s *Service) fetch(c context.Context) ([]response.Video, error) {
	logger := zerolog.Ctx(c).With().Str(log.KeyProcess, "fetching feed").Logger()

	endpoint, err := url.Parse(s.feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing feed url with error=%w", err)
	}
	query := endpoint.Query()
	query.Set("channel_id", s.channelID)
	endpoint.RawQuery = query.Encode()

	logger.Trace().Msg("fetching feed")
	req, err := http.NewRequestWithContext(c, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: feed responded with status=%d", ErrFeedUnavailable, resp.StatusCode)
	}
	videos, err := parseFeed(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	logger.Trace().Int("count", len(videos)).Msg("fetched feed")

	if err := s.cache.Set(c, s.channelID, videos); err != nil {
		logger.Warn().Err(err).Msg(err.Error())
	}
	return videos, nil
}
