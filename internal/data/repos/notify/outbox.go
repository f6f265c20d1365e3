package notify

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domnotify "github.com/yungbote/quotebridge-backend/internal/domain/notify"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type OutboxRepo interface {
	// Enqueue inserts the row unless its dedup key is already queued. inserted reports which.
	Enqueue(dbc dbctx.Context, row *types.NotificationOutbox) (inserted bool, err error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NotificationOutbox, error)
	GetByDedupKey(dbc dbctx.Context, key string) (*types.NotificationOutbox, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.NotificationOutbox, error)

	// ClaimDue leases up to limit pending rows whose next attempt is due by pushing
	// next_attempt_at forward by lease. Must run inside a transaction.
	ClaimDue(dbc dbctx.Context, now time.Time, limit int, lease time.Duration) ([]*types.NotificationOutbox, error)

	MarkSent(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	MarkRetry(dbc dbctx.Context, id uuid.UUID, attempts int, next time.Time, lastErr string) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, attempts int, lastErr string) error
}

type outboxRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOutboxRepo(db *gorm.DB, baseLog *logger.Logger) OutboxRepo {
	return &outboxRepo{db: db, log: baseLog.With("repo", "OutboxRepo")}
}

func (r *outboxRepo) Enqueue(dbc dbctx.Context, row *types.NotificationOutbox) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return false, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if strings.TrimSpace(row.Status) == "" {
		row.Status = domnotify.OutboxStatusPending
	}
	if row.NextAttemptAt.IsZero() {
		row.NextAttemptAt = time.Now().UTC()
	}
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *outboxRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NotificationOutbox, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc, "id = ?", id)
}

func (r *outboxRepo) GetByDedupKey(dbc dbctx.Context, key string) (*types.NotificationOutbox, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	return r.first(dbc, "dedup_key = ?", key)
}

func (r *outboxRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*types.NotificationOutbox, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.NotificationOutbox
	if err := t.WithContext(dbc.Ctx).Where(query, args...).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *outboxRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.NotificationOutbox, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.NotificationOutbox
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *outboxRepo) ClaimDue(dbc dbctx.Context, now time.Time, limit int, lease time.Duration) ([]*types.NotificationOutbox, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 25
	}
	if lease <= 0 {
		lease = time.Minute
	}
	var rows []*types.NotificationOutbox
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND next_attempt_at <= ?", domnotify.OutboxStatusPending, now).
		Order("next_attempt_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	leaseUntil := now.Add(lease)
	if err := t.WithContext(dbc.Ctx).
		Model(&types.NotificationOutbox{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"next_attempt_at": leaseUntil,
			"updated_at":      now,
		}).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		row.NextAttemptAt = leaseUntil
	}
	return rows, nil
}

func (r *outboxRepo) MarkSent(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":     domnotify.OutboxStatusSent,
		"sent_at":    at,
		"last_error": "",
	})
}

func (r *outboxRepo) MarkRetry(dbc dbctx.Context, id uuid.UUID, attempts int, next time.Time, lastErr string) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":          domnotify.OutboxStatusPending,
		"attempts":        attempts,
		"next_attempt_at": next,
		"last_error":      lastErr,
	})
}

func (r *outboxRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, attempts int, lastErr string) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":     domnotify.OutboxStatusFailed,
		"attempts":   attempts,
		"last_error": lastErr,
	})
}

func (r *outboxRepo) update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return t.WithContext(dbc.Ctx).
		Model(&types.NotificationOutbox{}).
		Where("id = ?", id).
		Updates(updates).Error
}
