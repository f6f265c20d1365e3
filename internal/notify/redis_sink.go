package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domnotify "github.com/yungbote/quotebridge-backend/internal/domain/notify"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type RedisSink struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisSink publishes each message on a pub/sub channel. Subscribers that are offline
// miss messages; the outbox row stays the record of what was sent.
func NewRedisSink(ctx context.Context, log *logger.Logger, addr, channel string) (*RedisSink, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "negotiation-notifications"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisSink{
		log:     log.With("sink", SinkRedis),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (s *RedisSink) Name() string { return SinkRedis }

func (s *RedisSink) Publish(ctx context.Context, msg domnotify.Message) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("redis sink not initialized")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, raw).Err()
}

// Client exposes the connection for health and pool metrics.
func (s *RedisSink) Client() *goredis.Client {
	if s == nil {
		return nil
	}
	return s.rdb
}

func (s *RedisSink) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
