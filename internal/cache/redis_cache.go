package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"restopos/backend/internal/domain"
)

const unitKeyPrefix = "restopos:unit:"

type RedisUnitCache struct {
	client *redis.Client
}

func NewRedisUnitCache(addr string, password string, db int) *RedisUnitCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisUnitCache{client: client}
}

func (c *RedisUnitCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisUnitCache) Close() error {
	return c.client.Close()
}

func (c *RedisUnitCache) Get(ctx context.Context, id string) (*domain.Unit, bool, error) {
	val, err := c.client.Get(ctx, unitKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	unit, err := decodeUnit(val)
	if err != nil {
		return nil, false, err
	}
	return unit, true, nil
}

func (c *RedisUnitCache) Set(ctx context.Context, unit *domain.Unit, ttl time.Duration) error {
	if unit == nil || unit.ID == "" {
		return nil
	}
	payload, err := encodeUnit(unit)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, unitKey(unit.ID), payload, ttl).Err()
}

func (c *RedisUnitCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, unitKey(id)).Err()
}

func unitKey(id string) string {
	return unitKeyPrefix + id
}

func encodeUnit(unit *domain.Unit) ([]byte, error) {
	return msgpack.Marshal(unit)
}

func decodeUnit(payload []byte) (*domain.Unit, error) {
	var unit domain.Unit
	if err := msgpack.Unmarshal(payload, &unit); err != nil {
		return nil, err
	}
	return &unit, nil
}
