package negotiation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domneg "github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, rows []*types.NegotiationSession) ([]*types.NegotiationSession, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NegotiationSession, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.NegotiationSession, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.NegotiationSession, error)

	// GetActiveByProposal returns the single non-terminal session for a proposal, if any.
	GetActiveByProposal(dbc dbctx.Context, proposalID uuid.UUID) (*types.NegotiationSession, error)
	ListByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.NegotiationSession, error)
	ListByProposalIDs(dbc dbctx.Context, proposalIDs []uuid.UUID) ([]*types.NegotiationSession, error)
	// ListStale returns sessions in any of statuses whose updated_at is before cutoff, oldest first.
	ListStale(dbc dbctx.Context, statuses []string, cutoff time.Time, limit int) ([]*types.NegotiationSession, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, rows []*types.NegotiationSession) ([]*types.NegotiationSession, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.NegotiationSession{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *sessionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.NegotiationSession, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.NegotiationSession
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NegotiationSession, error) {
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

func (r *sessionRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.NegotiationSession, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.NegotiationSession
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

func (r *sessionRepo) GetActiveByProposal(dbc dbctx.Context, proposalID uuid.UUID) (*types.NegotiationSession, error) {
	if proposalID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.NegotiationSession
	err := t.WithContext(dbc.Ctx).
		Where("proposal_id = ? AND status IN ?", proposalID, domneg.ActiveStatuses()).
		Order("created_at DESC").
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

func (r *sessionRepo) ListByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.NegotiationSession, error) {
	if proposalID == uuid.Nil {
		return []*types.NegotiationSession{}, nil
	}
	return r.ListByProposalIDs(dbc, []uuid.UUID{proposalID})
}

func (r *sessionRepo) ListByProposalIDs(dbc dbctx.Context, proposalIDs []uuid.UUID) ([]*types.NegotiationSession, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.NegotiationSession
	if len(proposalIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("proposal_id IN ?", proposalIDs).
		Order("created_at DESC").
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) ListStale(dbc dbctx.Context, statuses []string, cutoff time.Time, limit int) ([]*types.NegotiationSession, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.NegotiationSession
	if len(statuses) == 0 {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if err := t.WithContext(dbc.Ctx).
		Where("status IN ? AND updated_at < ?", statuses, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.NegotiationSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}
