package negotiation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type LineItemNegotiationRepo interface {
	Create(dbc dbctx.Context, rows []*types.LineItemNegotiation) ([]*types.LineItemNegotiation, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.LineItemNegotiation, error)
	ListBySessionIDs(dbc dbctx.Context, sessionIDs []uuid.UUID) ([]*types.LineItemNegotiation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type lineItemNegotiationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLineItemNegotiationRepo(db *gorm.DB, baseLog *logger.Logger) LineItemNegotiationRepo {
	return &lineItemNegotiationRepo{db: db, log: baseLog.With("repo", "LineItemNegotiationRepo")}
}

func (r *lineItemNegotiationRepo) Create(dbc dbctx.Context, rows []*types.LineItemNegotiation) ([]*types.LineItemNegotiation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.LineItemNegotiation{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *lineItemNegotiationRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.LineItemNegotiation, error) {
	if sessionID == uuid.Nil {
		return []*types.LineItemNegotiation{}, nil
	}
	return r.ListBySessionIDs(dbc, []uuid.UUID{sessionID})
}

func (r *lineItemNegotiationRepo) ListBySessionIDs(dbc dbctx.Context, sessionIDs []uuid.UUID) ([]*types.LineItemNegotiation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.LineItemNegotiation
	if len(sessionIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("session_id IN ?", sessionIDs).
		Order("created_at ASC").
		Order("line_item_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *lineItemNegotiationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.LineItemNegotiation{}).
		Where("id = ?", id).
		Updates(updates).Error
}
