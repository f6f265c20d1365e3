package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type NewLineItem struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	IsOptional   bool            `json:"is_optional,omitempty"`
	DisplayOrder int             `json:"display_order,omitempty"`
}

type SubmitProposalRequest struct {
	ProjectID    uuid.UUID        `json:"-"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	TimelineDays int              `json:"timeline_days"`
	ScopeText    string           `json:"scope_text"`
	Terms        string           `json:"terms"`
	LineItems    []NewLineItem    `json:"line_items"`
}

type SubmittedProposal struct {
	ProposalID    uuid.UUID       `json:"proposal_id"`
	VersionID     uuid.UUID       `json:"version_id"`
	VersionNumber int             `json:"version_number"`
	Price         decimal.Decimal `json:"price"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

type ProposalService interface {
	// Submit creates a proposal with the caller as its consultant, plus version 1.
	Submit(ctx context.Context, actorID uuid.UUID, req SubmitProposalRequest) (*SubmittedProposal, error)
}

type proposalService struct {
	log        *logger.Logger
	versioning domainagg.VersioningAggregate
	now        func() time.Time
}

func NewProposalService(baseLog *logger.Logger, versioning domainagg.VersioningAggregate) ProposalService {
	return &proposalService{
		log:        baseLog.With("service", "ProposalService"),
		versioning: versioning,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *proposalService) Submit(ctx context.Context, actorID uuid.UUID, req SubmitProposalRequest) (*SubmittedProposal, error) {
	if actorID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeForbidden, "Proposals.Submit", "missing caller identity", nil)
	}
	in := domainagg.SubmitProposalInput{
		ProjectID:    req.ProjectID,
		AdvisorID:    actorID,
		Price:        req.Price,
		TimelineDays: req.TimelineDays,
		ScopeText:    req.ScopeText,
		Terms:        req.Terms,
		SubmittedAt:  s.now(),
	}
	for _, it := range req.LineItems {
		in.LineItems = append(in.LineItems, domainagg.NewLineItemInput{
			Name:         it.Name,
			Description:  it.Description,
			Category:     it.Category,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			IsOptional:   it.IsOptional,
			DisplayOrder: it.DisplayOrder,
		})
	}
	res, err := s.versioning.SubmitProposal(ctx, in)
	if err != nil {
		return nil, err
	}
	s.log.Info("proposal submitted", "proposal_id", res.ProposalID, "project_id", req.ProjectID, "price", res.Price.String())
	return &SubmittedProposal{
		ProposalID:    res.ProposalID,
		VersionID:     res.VersionID,
		VersionNumber: res.VersionNumber,
		Price:         res.Price,
		SubmittedAt:   in.SubmittedAt,
	}, nil
}
