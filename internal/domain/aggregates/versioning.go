package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
)

var VersioningAggregateContract = Contract{
	Name:        "Proposals.VersioningAggregate",
	TxOwnership: TxOwnedByAggregate,
	Notes:       "Sole writer of proposal_version/proposal_line_item; assigns gap-free version numbers per proposal.",
}

// VersioningAggregate creates immutable proposal versions.
//
// Write method failures should return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodePreconditionFailed, CodeRetryable, CodeInternal.
type VersioningAggregate interface {
	Aggregate

	// SubmitProposal creates a proposal and its version 1 in one transaction.
	SubmitProposal(ctx context.Context, in SubmitProposalInput) (MaterializeResult, error)

	// Materialize creates version max+1 from a base version and a resolved item set.
	// The session must be responded or resolved. A replay of the same session and
	// item set returns the existing version.
	Materialize(ctx context.Context, in MaterializeInput) (MaterializeResult, error)

	// AdvanceCurrentVersion moves the proposal's current pointer forward to a committed version.
	AdvanceCurrentVersion(ctx context.Context, in AdvanceCurrentVersionInput) (AdvanceCurrentVersionResult, error)
}

type NewLineItemInput struct {
	Name         string
	Description  string
	Category     string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	IsOptional   bool
	DisplayOrder int
}

type SubmitProposalInput struct {
	ProposalID   uuid.UUID
	ProjectID    uuid.UUID
	AdvisorID    uuid.UUID
	Price        *decimal.Decimal
	TimelineDays int
	ScopeText    string
	Terms        string
	LineItems    []NewLineItemInput
	SubmittedAt  time.Time
}

type MaterializeInput struct {
	ProposalID    uuid.UUID
	BaseVersionID uuid.UUID
	SessionID     uuid.UUID
	CreatedBy     uuid.UUID
	ChangeReason  string
	Items         []negotiation.ResponseItem
	MaterializeAt time.Time
}

type MaterializeResult struct {
	ProposalID    uuid.UUID
	VersionID     uuid.UUID
	VersionNumber int
	Price         decimal.Decimal
	ContentHash   string
	// Created is false when an existing version with the same content hash was returned.
	Created   bool
	CreatedAt time.Time
}

type AdvanceCurrentVersionInput struct {
	ProposalID  uuid.UUID
	VersionID   uuid.UUID
	Resubmitted bool
	At          time.Time
}

type AdvanceCurrentVersionResult struct {
	ProposalID           uuid.UUID
	CurrentVersionID     uuid.UUID
	CurrentVersionNumber int
	Status               string
	Moved                bool
}
