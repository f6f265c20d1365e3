package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	domnotify "github.com/yungbote/quotebridge-backend/internal/domain/notify"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

const (
	defaultNATSStream  = "NEGOTIATION_NOTIFICATIONS"
	defaultNATSSubject = "negotiation.notifications"
	natsDedupWindow    = 10 * time.Minute
)

type NATSSink struct {
	log     *logger.Logger
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSSink publishes into a JetStream stream. The outbox message key is sent as the
// JetStream message id, so a retry inside the duplicate window is stored once.
func NewNATSSink(ctx context.Context, log *logger.Logger, url, stream, subject string) (*NATSSink, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		url = nats.DefaultURL
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		stream = defaultNATSStream
	}
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = defaultNATSSubject
	}

	nc, err := nats.Connect(url,
		nats.Name("quotebridge-notify"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:       stream,
		Subjects:   []string{subject + ".>"},
		Storage:    jetstream.FileStorage,
		Duplicates: natsDedupWindow,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	return &NATSSink{
		log:     log.With("sink", SinkNATS, "stream", stream),
		nc:      nc,
		js:      js,
		subject: subject,
	}, nil
}

func (s *NATSSink) Name() string { return SinkNATS }

func (s *NATSSink) Publish(ctx context.Context, msg domnotify.Message) error {
	if s == nil || s.js == nil {
		return fmt.Errorf("nats sink not initialized")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ack, err := s.js.Publish(ctx, SubjectFor(s.subject, msg.Template), raw, jetstream.WithMsgID(msg.Key))
	if err != nil {
		return err
	}
	if ack != nil && ack.Duplicate {
		s.log.Debug("duplicate notification suppressed", "key", msg.Key)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if s == nil || s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

// SubjectFor routes each template to its own subject under the base.
func SubjectFor(base string, tmpl domnotify.Template) string {
	t := strings.TrimSpace(string(tmpl))
	if t == "" {
		t = "unknown"
	}
	return base + "." + t
}
