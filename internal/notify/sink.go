package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	domnotify "github.com/yungbote/quotebridge-backend/internal/domain/notify"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

const (
	SinkLog   = "log"
	SinkRedis = "redis"
	SinkNATS  = "nats"
)

// Sink delivers one notification message. Publish must be safe to repeat with the same
// message key; the dispatcher retries on any error.
type Sink interface {
	Name() string
	Publish(ctx context.Context, msg domnotify.Message) error
	Close() error
}

type SinkConfig struct {
	Kind string

	RedisAddr    string
	RedisChannel string

	NATSURL     string
	NATSSubject string
	NATSStream  string
}

func NewSink(ctx context.Context, log *logger.Logger, cfg SinkConfig) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", SinkLog:
		return NewLogSink(log), nil
	case SinkRedis:
		s, err := NewRedisSink(ctx, log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			return nil, err
		}
		return s, nil
	case SinkNATS:
		s, err := NewNATSSink(ctx, log, cfg.NATSURL, cfg.NATSStream, cfg.NATSSubject)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("invalid NOTIFY_SINK=%q (allowed: %q, %q, %q)", cfg.Kind, SinkLog, SinkRedis, SinkNATS)
	}
}

type logSink struct {
	log *logger.Logger
}

// NewLogSink writes messages to the structured log. Used in development and tests.
func NewLogSink(log *logger.Logger) Sink {
	return &logSink{log: log.With("sink", SinkLog)}
}

func (s *logSink) Name() string { return SinkLog }

func (s *logSink) Publish(ctx context.Context, msg domnotify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.log.Info("notification",
		"key", msg.Key,
		"template", msg.Template,
		"recipient_id", msg.RecipientID,
		"body", string(raw),
	)
	return nil
}

func (s *logSink) Close() error { return nil }
