package negotiation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReductionType string

const (
	ReductionPercent ReductionType = "percent"
	ReductionFixed   ReductionType = "fixed"
)

func (r ReductionType) IsValid() bool {
	return r == ReductionPercent || r == ReductionFixed
}

// BulkNegotiationBatch is one reduction request fanned out across proposals of a project.
type BulkNegotiationBatch struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	InitiatorID uuid.UUID `gorm:"type:uuid;not null" json:"initiator_id"`

	ReductionType  ReductionType   `gorm:"column:reduction_type;type:varchar(16);not null" json:"reduction_type"`
	ReductionValue decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"reduction_value"`
	Message        string          `gorm:"column:message;type:text" json:"message,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (BulkNegotiationBatch) TableName() string { return "bulk_negotiation_batch" }

// BulkNegotiationMember records that a proposal was included in a batch. Append-only;
// SessionID stays nil when opening the session failed or was skipped.
type BulkNegotiationMember struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_bulk_member_batch_proposal,unique,priority:1" json:"batch_id"`
	ProposalID uuid.UUID  `gorm:"type:uuid;not null;index:idx_bulk_member_batch_proposal,unique,priority:2;index" json:"proposal_id"`
	SessionID  *uuid.UUID `gorm:"type:uuid" json:"session_id,omitempty"`
	Error      string     `gorm:"column:error;type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (BulkNegotiationMember) TableName() string { return "bulk_negotiation_member" }
