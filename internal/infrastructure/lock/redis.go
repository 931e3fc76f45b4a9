// Package lock защита от повторного выполнения запросов: блокировка ключа на
// время выполнения и хранение результата для повторных запросов
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const releaseTimeout = 5 * time.Second

// unlockScript удаляет ключ, только если он всё ещё принадлежит владельцу
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisGuard блокировка SET NX PX и кеш результатов в Redis
type RedisGuard struct {
	client    *redis.Client
	lockTTL   time.Duration
	resultTTL time.Duration
	logger    *zap.Logger
}

func NewRedisGuard(client *redis.Client, lockTTL, resultTTL time.Duration, logger *zap.Logger) *RedisGuard {
	return &RedisGuard{
		client:    client,
		lockTTL:   lockTTL,
		resultTTL: resultTTL,
		logger:    logger,
	}
}

// Acquire занимает ключ. ok=false если ключ уже занят другим запросом
func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), bool, error) {
	lockKey := "lock:" + key
	owner := uuid.NewString()

	ok, err := g.client.SetNX(ctx, lockKey, owner, g.lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if err := unlockScript.Run(ctx, g.client, []string{lockKey}, owner).Err(); err != nil {
			g.logger.Warn("Failed to release lock",
				zap.String("key", lockKey),
				zap.Error(err))
		}
	}

	return release, true, nil
}

// Load читает сохранённый результат. false если результата нет
func (g *RedisGuard) Load(ctx context.Context, key string, dest any) (bool, error) {
	data, err := g.client.Get(ctx, "result:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("load result: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode result: %w", err)
	}
	return true, nil
}

func (g *RedisGuard) Store(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if err := g.client.Set(ctx, "result:"+key, data, g.resultTTL).Err(); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}
