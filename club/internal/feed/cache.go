package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alturino/fitclub/club/pkg/response"
)

var ErrCacheMiss = errors.New("videos not cached")

type Cache interface {
	Get(c context.Context, channelID string) ([]response.Video, error)
	Set(c context.Context, channelID string, videos []response.Video) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func videosKey(channelID string) string {
	return fmt.Sprintf("club:videos:%s", channelID)
}

func (r *RedisCache) Get(c context.Context, channelID string) ([]response.Video, error) {
	data, err := r.client.Get(c, videosKey(channelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed reading cached videos with error=%w", err)
	}
	videos := []response.Video{}
	if err := json.Unmarshal(data, &videos); err != nil {
		return nil, fmt.Errorf("failed decoding cached videos with error=%w", err)
	}
	return videos, nil
}

func (r *RedisCache) Set(c context.Context, channelID string, videos []response.Video) error {
	data, err := json.Marshal(videos)
	if err != nil {
		return fmt.Errorf("failed encoding videos with error=%w", err)
	}
	if err := r.client.Set(c, videosKey(channelID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed caching videos with error=%w", err)
	}
	return nil
}
