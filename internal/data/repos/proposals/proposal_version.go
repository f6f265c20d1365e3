package proposals

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

// ProposalVersionRepo is insert-and-read only; versions are immutable.
type ProposalVersionRepo interface {
	Create(dbc dbctx.Context, rows []*types.ProposalVersion) ([]*types.ProposalVersion, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProposalVersion, error)
	GetByNumber(dbc dbctx.Context, proposalID uuid.UUID, number int) (*types.ProposalVersion, error)
	GetByContentHash(dbc dbctx.Context, proposalID uuid.UUID, hash string) (*types.ProposalVersion, error)
	GetBySession(dbc dbctx.Context, sessionID uuid.UUID) (*types.ProposalVersion, error)
	GetMaxVersionNumber(dbc dbctx.Context, proposalID uuid.UUID) (int, error)
	ListByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.ProposalVersion, error)
}

type proposalVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProposalVersionRepo(db *gorm.DB, baseLog *logger.Logger) ProposalVersionRepo {
	return &proposalVersionRepo{db: db, log: baseLog.With("repo", "ProposalVersionRepo")}
}

func (r *proposalVersionRepo) Create(dbc dbctx.Context, rows []*types.ProposalVersion) ([]*types.ProposalVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.ProposalVersion{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *proposalVersionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProposalVersion, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc, "id = ?", id)
}

func (r *proposalVersionRepo) GetByNumber(dbc dbctx.Context, proposalID uuid.UUID, number int) (*types.ProposalVersion, error) {
	if proposalID == uuid.Nil || number <= 0 {
		return nil, nil
	}
	return r.first(dbc, "proposal_id = ? AND version_number = ?", proposalID, number)
}

func (r *proposalVersionRepo) GetByContentHash(dbc dbctx.Context, proposalID uuid.UUID, hash string) (*types.ProposalVersion, error) {
	hash = strings.TrimSpace(hash)
	if proposalID == uuid.Nil || hash == "" {
		return nil, nil
	}
	return r.first(dbc, "proposal_id = ? AND content_hash = ?", proposalID, hash)
}

func (r *proposalVersionRepo) GetBySession(dbc dbctx.Context, sessionID uuid.UUID) (*types.ProposalVersion, error) {
	if sessionID == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc, "session_id = ?", sessionID)
}

func (r *proposalVersionRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*types.ProposalVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.ProposalVersion
	if err := t.WithContext(dbc.Ctx).Where(query, args...).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *proposalVersionRepo) GetMaxVersionNumber(dbc dbctx.Context, proposalID uuid.UUID) (int, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if proposalID == uuid.Nil {
		return 0, nil
	}
	var maxN int
	err := t.WithContext(dbc.Ctx).
		Model(&types.ProposalVersion{}).
		Select("COALESCE(MAX(version_number), 0)").
		Where("proposal_id = ?", proposalID).
		Scan(&maxN).Error
	if err != nil {
		return 0, err
	}
	return maxN, nil
}

func (r *proposalVersionRepo) ListByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.ProposalVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ProposalVersion
	if proposalID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("proposal_id = ?", proposalID).
		Order("version_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
