package notify

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/observability"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type DispatcherConfig struct {
	BatchSize   int
	Lease       time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Minute
	}
	return c
}

type DispatchReport struct {
	Claimed int
	Sent    int
	Retried int
	Failed  int
}

// Dispatcher drains the notification outbox into a sink. Rows are leased in a short
// transaction so several dispatchers can run side by side; a crash mid-publish only
// delays the row until its lease expires.
type Dispatcher struct {
	log     *logger.Logger
	db      *gorm.DB
	outbox  repos.OutboxRepo
	sink    Sink
	metrics *observability.Metrics
	cfg     DispatcherConfig
	now     func() time.Time
}

func NewDispatcher(baseLog *logger.Logger, db *gorm.DB, outbox repos.OutboxRepo, sink Sink, metrics *observability.Metrics, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		log:     baseLog.With("component", "OutboxDispatcher", "sink", sink.Name()),
		db:      db,
		outbox:  outbox,
		sink:    sink,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) DispatchOnce(ctx context.Context) (DispatchReport, error) {
	var report DispatchReport
	now := d.now()

	var claimed []*types.NotificationOutbox
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := d.outbox.ClaimDue(dbctx.Context{Ctx: ctx, Tx: tx}, now, d.cfg.BatchSize, d.cfg.Lease)
		if err != nil {
			return err
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("claim outbox rows: %w", err)
	}
	report.Claimed = len(claimed)

	dbc := dbctx.Context{Ctx: ctx}
	for _, row := range claimed {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pubErr := d.sink.Publish(ctx, row.ToMessage())
		attempts := row.Attempts + 1
		switch {
		case pubErr == nil:
			if err := d.outbox.MarkSent(dbc, row.ID, d.now()); err != nil {
				return report, fmt.Errorf("mark sent %s: %w", row.ID, err)
			}
			report.Sent++
			d.metrics.IncOutboxDispatch(d.sink.Name(), "sent")
		case attempts >= d.cfg.MaxAttempts:
			if err := d.outbox.MarkFailed(dbc, row.ID, attempts, pubErr.Error()); err != nil {
				return report, fmt.Errorf("mark failed %s: %w", row.ID, err)
			}
			report.Failed++
			d.metrics.IncOutboxDispatch(d.sink.Name(), "failed")
			d.log.Error("notification gave up", "outbox_id", row.ID, "template", row.Template, "attempts", attempts, "error", pubErr)
		default:
			next := d.now().Add(Backoff(attempts, d.cfg.BaseBackoff, d.cfg.MaxBackoff))
			if err := d.outbox.MarkRetry(dbc, row.ID, attempts, next, pubErr.Error()); err != nil {
				return report, fmt.Errorf("mark retry %s: %w", row.ID, err)
			}
			report.Retried++
			d.metrics.IncOutboxDispatch(d.sink.Name(), "retry")
			d.log.Warn("notification publish failed", "outbox_id", row.ID, "attempts", attempts, "next_attempt_at", next, "error", pubErr)
		}
	}
	return report, nil
}

// Backoff doubles from base per attempt, capped at max.
func Backoff(attempts int, base, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
