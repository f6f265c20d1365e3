package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
)

var NegotiationSessionAggregateContract = Contract{
	Name:        "Negotiation.SessionAggregate",
	TxOwnership: TxOwnedByAggregate,
	Notes:       "Sole owner of negotiation_session.status; enforces one active session per proposal.",
}

// NegotiationSessionAggregate owns the session state machine.
//
// Write method failures should return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeInvariantViolation, CodeRetryable, CodeInternal.
type NegotiationSessionAggregate interface {
	Aggregate

	// OpenSession resolves per-item targets and inserts the session as open, atomically
	// with the check that the proposal has no other active session.
	OpenSession(ctx context.Context, in OpenSessionInput) (OpenSessionResult, error)

	// MarkAwaitingResponse moves an open session to awaiting_response once the consultant
	// has been reached. Sessions already past open are left alone.
	MarkAwaitingResponse(ctx context.Context, in MarkAwaitingResponseInput) (TransitionSessionResult, error)

	// RecordResponse persists the consultant counter and moves the session to responded.
	// Identical retries return the prior outcome with Replayed or Resumed set.
	RecordResponse(ctx context.Context, in RecordResponseInput) (RecordResponseResult, error)

	// ResolveSession stamps final prices and the materialized version, moving responded -> resolved.
	ResolveSession(ctx context.Context, in ResolveSessionInput) (TransitionSessionResult, error)

	// CancelSession moves a non-terminal session to cancelled. A responded session whose
	// counter already produced a version cannot be cancelled.
	CancelSession(ctx context.Context, in CancelSessionInput) (TransitionSessionResult, error)

	// AddComment appends a comment to an existing session.
	AddComment(ctx context.Context, in AddCommentInput) (AddCommentResult, error)
}

type LineItemAdjustmentInput struct {
	LineItemID    uuid.UUID
	Type          negotiation.AdjustmentType
	Value         decimal.Decimal
	InitiatorNote string
}

type CommentInput struct {
	CommentType     string
	Content         string
	EntityReference string
}

type OpenSessionInput struct {
	SessionID           uuid.UUID
	ProjectID           uuid.UUID
	ProposalID          uuid.UUID
	NegotiatedVersionID uuid.UUID
	InitiatorID         uuid.UUID
	BatchID             *uuid.UUID

	TargetTotal            *decimal.Decimal
	TargetReductionPercent *decimal.Decimal
	GlobalComment          string
	InitiatorMessage       string

	Adjustments []LineItemAdjustmentInput
	Comments    []CommentInput

	OpenedAt time.Time
}

type ResolvedTarget struct {
	LineItemID    uuid.UUID       `json:"line_item_id"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	TargetPrice   decimal.Decimal `json:"target_price"`
}

type OpenSessionResult struct {
	SessionID           uuid.UUID
	ProposalID          uuid.UUID
	ProjectID           uuid.UUID
	InitiatorID         uuid.UUID
	ConsultantAdvisorID uuid.UUID
	Status              negotiation.SessionStatus
	Targets             []ResolvedTarget
	CreatedAt           time.Time
}

type MarkAwaitingResponseInput struct {
	SessionID uuid.UUID
	At        time.Time
}

type TransitionSessionResult struct {
	SessionID    uuid.UUID
	ProposalID   uuid.UUID
	Status       negotiation.SessionStatus
	Changed      bool
	TransitionAt time.Time
}

type ResponseItemInput struct {
	LineItemID uuid.UUID
	Price      decimal.Decimal
	Note       string
}

type RecordResponseInput struct {
	SessionID         uuid.UUID
	ConsultantMessage string
	Items             []ResponseItemInput
	RespondedAt       time.Time
}

type RecordResponseResult struct {
	SessionID           uuid.UUID
	ProposalID          uuid.UUID
	NegotiatedVersionID uuid.UUID
	InitiatorID         uuid.UUID
	ConsultantAdvisorID uuid.UUID
	Status              negotiation.SessionStatus
	ResponseHash        string
	Items               []negotiation.ResponseItem

	// Replayed is set when the session had already resolved with the same item set.
	Replayed            bool
	ResultVersionID     *uuid.UUID
	ResultVersionNumber int

	// Resumed is set when the session was left in responded with the same item set.
	Resumed     bool
	RespondedAt time.Time
}

type ResolveSessionInput struct {
	SessionID           uuid.UUID
	ResultVersionID     uuid.UUID
	ResultVersionNumber int
	ResolvedAt          time.Time
}

type CancelSessionInput struct {
	SessionID   uuid.UUID
	ActorID     uuid.UUID
	CancelledAt time.Time
}

type AddCommentInput struct {
	SessionID uuid.UUID
	AuthorID  uuid.UUID
	Comment   CommentInput
}

type AddCommentResult struct {
	CommentID uuid.UUID
	SessionID uuid.UUID
	CreatedAt time.Time
}
