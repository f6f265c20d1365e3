package negotiation

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type BatchRepo interface {
	Create(dbc dbctx.Context, rows []*types.BulkNegotiationBatch) ([]*types.BulkNegotiationBatch, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.BulkNegotiationBatch, error)
	// ListByProject returns batches newest first.
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.BulkNegotiationBatch, error)
}

type BatchMemberRepo interface {
	// CreateIgnoreDuplicates inserts members, skipping any (batch_id, proposal_id) already recorded.
	CreateIgnoreDuplicates(dbc dbctx.Context, rows []*types.BulkNegotiationMember) error
	ListByBatchIDs(dbc dbctx.Context, batchIDs []uuid.UUID) ([]*types.BulkNegotiationMember, error)
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	return &batchRepo{db: db, log: baseLog.With("repo", "BatchRepo")}
}

func (r *batchRepo) Create(dbc dbctx.Context, rows []*types.BulkNegotiationBatch) ([]*types.BulkNegotiationBatch, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.BulkNegotiationBatch{}, nil
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

func (r *batchRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.BulkNegotiationBatch, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.BulkNegotiationBatch
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *batchRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.BulkNegotiationBatch, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.BulkNegotiationBatch
	if projectID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type batchMemberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchMemberRepo(db *gorm.DB, baseLog *logger.Logger) BatchMemberRepo {
	return &batchMemberRepo{db: db, log: baseLog.With("repo", "BatchMemberRepo")}
}

func (r *batchMemberRepo) CreateIgnoreDuplicates(dbc dbctx.Context, rows []*types.BulkNegotiationMember) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "proposal_id"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

func (r *batchMemberRepo) ListByBatchIDs(dbc dbctx.Context, batchIDs []uuid.UUID) ([]*types.BulkNegotiationMember, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.BulkNegotiationMember
	if len(batchIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("batch_id IN ?", batchIDs).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
