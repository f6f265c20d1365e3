package proposals

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type ProposalLineItemRepo interface {
	// UpsertBatch writes items keyed by id; re-running with the same rows is a no-op.
	UpsertBatch(dbc dbctx.Context, rows []*types.ProposalLineItem) error

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProposalLineItem, error)
	ListByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.ProposalLineItem, error)
}

type proposalLineItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProposalLineItemRepo(db *gorm.DB, baseLog *logger.Logger) ProposalLineItemRepo {
	return &proposalLineItemRepo{db: db, log: baseLog.With("repo", "ProposalLineItemRepo")}
}

func (r *proposalLineItemRepo) UpsertBatch(dbc dbctx.Context, rows []*types.ProposalLineItem) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		CreateInBatches(&rows, 200).Error
}

func (r *proposalLineItemRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProposalLineItem, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ProposalLineItem
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *proposalLineItemRepo) ListByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.ProposalLineItem, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ProposalLineItem
	if versionID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("proposal_version_id = ?", versionID).
		Order("display_order ASC").
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
