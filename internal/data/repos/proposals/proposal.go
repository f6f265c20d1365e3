package proposals

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type ProposalRepo interface {
	Create(dbc dbctx.Context, rows []*types.Proposal) ([]*types.Proposal, error)

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Proposal, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Proposal, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID, statuses []string) ([]*types.Proposal, error)

	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Proposal, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type proposalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProposalRepo(db *gorm.DB, baseLog *logger.Logger) ProposalRepo {
	return &proposalRepo{db: db, log: baseLog.With("repo", "ProposalRepo")}
}

func (r *proposalRepo) Create(dbc dbctx.Context, rows []*types.Proposal) ([]*types.Proposal, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Proposal{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *proposalRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Proposal, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Proposal
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *proposalRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Proposal, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *proposalRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID, statuses []string) ([]*types.Proposal, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Proposal
	if projectID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("project_id = ?", projectID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("submitted_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *proposalRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Proposal, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Proposal
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *proposalRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Proposal{}).
		Where("id = ?", id).
		Updates(updates).Error
}
