package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/quotebridge-backend/internal/notify"
	"github.com/yungbote/quotebridge-backend/internal/observability"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
	"github.com/yungbote/quotebridge-backend/internal/services"
)

type OutboxDispatcher interface {
	DispatchOnce(ctx context.Context) (notify.DispatchReport, error)
}

type SessionRecoverer interface {
	RecoverStuckSessions(ctx context.Context, staleAfter time.Duration) (services.RecoveryReport, error)
}

type Config struct {
	OutboxPollInterval time.Duration
	RecoveryInterval   time.Duration
	RecoveryStaleAfter time.Duration
}

// Worker runs the background loops: outbox delivery and crash recovery of negotiation sessions.
type Worker struct {
	log        *logger.Logger
	dispatcher OutboxDispatcher
	recoverer  SessionRecoverer
	metrics    *observability.Metrics
	cfg        Config
	wg         sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, dispatcher OutboxDispatcher, recoverer SessionRecoverer, metrics *observability.Metrics, cfg Config) *Worker {
	if cfg.OutboxPollInterval <= 0 {
		cfg.OutboxPollInterval = time.Second
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = time.Minute
	}
	if cfg.RecoveryStaleAfter <= 0 {
		cfg.RecoveryStaleAfter = 5 * time.Minute
	}
	return &Worker{
		log:        baseLog.With("component", "Worker"),
		dispatcher: dispatcher,
		recoverer:  recoverer,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// Start launches the loops; they stop when ctx is cancelled. Wait blocks until they have.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting background worker",
		"outbox_poll_interval", w.cfg.OutboxPollInterval,
		"recovery_interval", w.cfg.RecoveryInterval,
		"recovery_stale_after", w.cfg.RecoveryStaleAfter,
	)
	if w.dispatcher != nil {
		w.wg.Add(1)
		go w.runLoop(ctx, "outbox", w.cfg.OutboxPollInterval, w.dispatchTick)
	}
	if w.recoverer != nil {
		w.wg.Add(1)
		go w.runLoop(ctx, "recovery", w.cfg.RecoveryInterval, w.recoveryTick)
	}
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, name string, every time.Duration, tick func(context.Context) error) {
	defer w.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "loop", name)
			return
		case <-ticker.C:
			err := w.safeTick(ctx, name, tick)
			status := "ok"
			if err != nil {
				status = "error"
				if ctx.Err() == nil {
					w.log.Warn("Worker tick failed", "loop", name, "error", err)
				}
			}
			w.metrics.IncWorkerRun(name, status)
		}
	}
}

func (w *Worker) safeTick(ctx context.Context, name string, tick func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Worker tick panic", "loop", name, "panic", r)
			err = fmt.Errorf("panic in %s loop", name)
		}
	}()
	return tick(ctx)
}

func (w *Worker) dispatchTick(ctx context.Context) error {
	report, err := w.dispatcher.DispatchOnce(ctx)
	if err != nil {
		return err
	}
	if report.Claimed > 0 {
		w.log.Debug("Outbox dispatched",
			"claimed", report.Claimed,
			"sent", report.Sent,
			"retried", report.Retried,
			"failed", report.Failed,
		)
	}
	return nil
}

func (w *Worker) recoveryTick(ctx context.Context) error {
	_, err := w.recoverer.RecoverStuckSessions(ctx, w.cfg.RecoveryStaleAfter)
	return err
}
