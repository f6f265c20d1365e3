package negotiation

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type CommentRepo interface {
	Create(dbc dbctx.Context, rows []*types.NegotiationComment) ([]*types.NegotiationComment, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.NegotiationComment, error)
}

type commentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCommentRepo(db *gorm.DB, baseLog *logger.Logger) CommentRepo {
	return &commentRepo{db: db, log: baseLog.With("repo", "CommentRepo")}
}

func (r *commentRepo) Create(dbc dbctx.Context, rows []*types.NegotiationComment) ([]*types.NegotiationComment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.NegotiationComment{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *commentRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.NegotiationComment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.NegotiationComment
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
