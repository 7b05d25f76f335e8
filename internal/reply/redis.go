package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/config"
)

// redisPending keeps reply targets in Redis so admin reply mode
// survives a bot restart. Targets expire after a day: a reply an admin
// never typed is stale by then.
type redisPending struct {
	client *redis.Client
	logger *zap.Logger
}

const pendingTTL = 24 * time.Hour

// NewRedisPending connects to Redis using the provided configuration.
func NewRedisPending(cfg config.RedisConfig, logger *zap.Logger) PendingStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis pending store")
	}

	return &redisPending{client: client, logger: logger}
}

func pendingKey(adminID int64) string {
	return fmt.Sprintf("support-bot:pending_reply:%d", adminID)
}

func (r *redisPending) Set(ctx context.Context, adminID int64, ticketID string) error {
	return r.client.Set(ctx, pendingKey(adminID), ticketID, pendingTTL).Err()
}

func (r *redisPending) Get(ctx context.Context, adminID int64) (string, bool, error) {
	ticketID, err := r.client.Get(ctx, pendingKey(adminID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ticketID, true, nil
}

func (r *redisPending) Clear(ctx context.Context, adminID int64) error {
	return r.client.Del(ctx, pendingKey(adminID)).Err()
}

func (r *redisPending) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisPending) Close() {
	_ = r.client.Close()
}
