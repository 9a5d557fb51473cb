package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyTokens = "session:%s:tokens"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(c context.Context, sessionID string) (TokenPair, error) {
	data, err := s.client.Get(c, tokensKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return TokenPair{}, ErrTokensNotFound
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed getting tokens from redis with error=%w", err)
	}

	pair := TokenPair{}
	if err := json.Unmarshal(data, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("failed unmarshaling tokens with error=%w", err)
	}
	return pair, nil
}

// Set writes both tokens in a single SET so readers never see a half-replaced pair.
func (s *RedisStore) Set(c context.Context, sessionID string, pair TokenPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed marshaling tokens with error=%w", err)
	}
	if err := s.client.Set(c, tokensKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed setting tokens to redis with error=%w", err)
	}
	return nil
}

func (s *RedisStore) Delete(c context.Context, sessionID string) error {
	if err := s.client.Del(c, tokensKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed deleting tokens from redis with error=%w", err)
	}
	return nil
}

func tokensKey(sessionID string) string {
	return fmt.Sprintf(keyTokens, sessionID)
}
