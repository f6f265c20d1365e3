package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

// IdentityOracle answers the two authorization questions the negotiation flows ask.
// Authentication itself happens upstream; callers pass the already-verified user id.
type IdentityOracle interface {
	// RequireProjectOwner returns the project when userID controls it.
	RequireProjectOwner(ctx context.Context, userID, projectID uuid.UUID) (*types.Project, error)
	// RequireProposalAdvisor returns the proposal when userID is its consultant.
	RequireProposalAdvisor(ctx context.Context, userID, proposalID uuid.UUID) (*types.Proposal, error)
	// RequireProposalViewer allows either side of the proposal.
	RequireProposalViewer(ctx context.Context, userID, proposalID uuid.UUID) (*types.Proposal, error)
}

type identityOracle struct {
	log       *logger.Logger
	projects  repos.ProjectRepo
	proposals repos.ProposalRepo
}

func NewIdentityOracle(baseLog *logger.Logger, projects repos.ProjectRepo, proposals repos.ProposalRepo) IdentityOracle {
	return &identityOracle{
		log:       baseLog.With("service", "IdentityOracle"),
		projects:  projects,
		proposals: proposals,
	}
}

func (o *identityOracle) RequireProjectOwner(ctx context.Context, userID, projectID uuid.UUID) (*types.Project, error) {
	const op = "Identity.RequireProjectOwner"
	if userID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeForbidden, op, "missing caller identity", nil)
	}
	project, err := o.projects.GetByID(dbctx.Context{Ctx: ctx}, projectID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if project == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "project not found: %s", projectID)
	}
	if project.OwnerID != userID {
		o.log.Debug("project ownership denied", "user_id", userID, "project_id", projectID)
		return nil, domainagg.NewError(domainagg.CodeForbidden, op, "caller does not control this project", nil)
	}
	return project, nil
}

func (o *identityOracle) RequireProposalAdvisor(ctx context.Context, userID, proposalID uuid.UUID) (*types.Proposal, error) {
	const op = "Identity.RequireProposalAdvisor"
	prop, err := o.loadProposal(ctx, op, userID, proposalID)
	if err != nil {
		return nil, err
	}
	if prop.AdvisorID != userID {
		o.log.Debug("proposal advisor denied", "user_id", userID, "proposal_id", proposalID)
		return nil, domainagg.NewError(domainagg.CodeForbidden, op, "caller is not the consultant on this proposal", nil)
	}
	return prop, nil
}

func (o *identityOracle) RequireProposalViewer(ctx context.Context, userID, proposalID uuid.UUID) (*types.Proposal, error) {
	const op = "Identity.RequireProposalViewer"
	prop, err := o.loadProposal(ctx, op, userID, proposalID)
	if err != nil {
		return nil, err
	}
	if prop.AdvisorID == userID {
		return prop, nil
	}
	project, err := o.projects.GetByID(dbctx.Context{Ctx: ctx}, prop.ProjectID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if project == nil || project.OwnerID != userID {
		return nil, domainagg.NewError(domainagg.CodeForbidden, op, "caller is not a party to this proposal", nil)
	}
	return prop, nil
}

func (o *identityOracle) loadProposal(ctx context.Context, op string, userID, proposalID uuid.UUID) (*types.Proposal, error) {
	if userID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeForbidden, op, "missing caller identity", nil)
	}
	prop, err := o.proposals.GetByID(dbctx.Context{Ctx: ctx}, proposalID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if prop == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "proposal not found: %s", proposalID)
	}
	return prop, nil
}
