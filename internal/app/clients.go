package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/quotebridge-backend/internal/notify"
	"github.com/yungbote/quotebridge-backend/internal/observability"
	"github.com/yungbote/quotebridge-backend/internal/platform/gcp"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type Clients struct {
	Sink        notify.Sink
	Attachments gcp.AttachmentStore
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")

	sink, err := notify.NewSink(ctx, log, cfg.SinkConfig())
	if err != nil {
		return Clients{}, fmt.Errorf("init notification sink: %w", err)
	}
	if rs, ok := sink.(*notify.RedisSink); ok {
		metrics.StartRedisCollector(ctx, log, rs.Client())
	}

	var store gcp.AttachmentStore
	if strings.TrimSpace(cfg.Attachments.Mode) != "" {
		store, err = gcp.NewAttachmentStore(ctx, log, cfg.AttachmentStoreConfig())
		if err != nil {
			_ = sink.Close()
			return Clients{}, fmt.Errorf("init attachment store: %w", err)
		}
	} else {
		log.Warn("ATTACHMENT_STORAGE_MODE not set; attachment endpoints disabled")
	}

	return Clients{Sink: sink, Attachments: store}, nil
}

func (c Clients) Close(log *logger.Logger) {
	if c.Sink != nil {
		if err := c.Sink.Close(); err != nil {
			log.Warn("close notification sink", "error", err)
		}
	}
	if c.Attachments != nil {
		if err := c.Attachments.Close(); err != nil {
			log.Warn("close attachment store", "error", err)
		}
	}
}
