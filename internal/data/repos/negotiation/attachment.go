package negotiation

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type AttachmentRepo interface {
	Create(dbc dbctx.Context, rows []*types.NegotiationAttachment) ([]*types.NegotiationAttachment, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NegotiationAttachment, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.NegotiationAttachment, error)
}

type attachmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttachmentRepo(db *gorm.DB, baseLog *logger.Logger) AttachmentRepo {
	return &attachmentRepo{db: db, log: baseLog.With("repo", "AttachmentRepo")}
}

func (r *attachmentRepo) Create(dbc dbctx.Context, rows []*types.NegotiationAttachment) ([]*types.NegotiationAttachment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.NegotiationAttachment{}, nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *attachmentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NegotiationAttachment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.NegotiationAttachment
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *attachmentRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.NegotiationAttachment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.NegotiationAttachment
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
