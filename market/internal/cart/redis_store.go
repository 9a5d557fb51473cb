package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyCart = "cart:%s:%s"

// RedisStore keeps one JSON document per (session, storefront). Every write
// adds up to maxJitter to the ttl so carts written together do not expire
// together.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	maxJitter time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, maxJitter: 5 * time.Minute}
}

func (s *RedisStore) Get(c context.Context, sessionID string, storefront Storefront) (Cart, error) {
	data, err := s.client.Get(c, cartKey(sessionID, storefront)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cart{}, ErrCartNotFound
	}
	if err != nil {
		return Cart{}, fmt.Errorf("failed getting cart from redis with error=%w", err)
	}

	cart := Cart{}
	if err := json.Unmarshal(data, &cart); err != nil {
		return Cart{}, fmt.Errorf("failed unmarshaling cart with error=%w", err)
	}
	return cart, nil
}

func (s *RedisStore) Set(c context.Context, sessionID string, cart Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed marshaling cart with error=%w", err)
	}
	ttl := s.ttl + time.Duration(rand.Int64N(int64(s.maxJitter)+1))
	if err := s.client.Set(c, cartKey(sessionID, cart.Storefront), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed setting cart to redis with error=%w", err)
	}
	return nil
}

func (s *RedisStore) Delete(c context.Context, sessionID string, storefront Storefront) error {
	if err := s.client.Del(c, cartKey(sessionID, storefront)).Err(); err != nil {
		return fmt.Errorf("failed deleting cart from redis with error=%w", err)
	}
	return nil
}

func cartKey(sessionID string, storefront Storefront) string {
	return fmt.Sprintf(keyCart, sessionID, storefront)
}
