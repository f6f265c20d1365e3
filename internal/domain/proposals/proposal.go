package proposals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Project is the initiator-owned container proposals are submitted against.
type Project struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name    string    `gorm:"column:name;not null" json:"name"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Project) TableName() string { return "project" }

const (
	ProposalStatusDraft       = "draft"
	ProposalStatusSubmitted   = "submitted"
	ProposalStatusResubmitted = "resubmitted"
	ProposalStatusAccepted    = "accepted"
	ProposalStatusRejected    = "rejected"
	ProposalStatusWithdrawn   = "withdrawn"
)

// Proposal is a consultant's quote for a project. Identity never changes; the
// current-version pointer only moves forward, and only after the version it points at committed.
type Proposal struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	AdvisorID uuid.UUID `gorm:"type:uuid;not null;index" json:"advisor_id"`

	// draft|submitted|resubmitted|accepted|rejected|withdrawn
	Status string `gorm:"column:status;not null;index" json:"status"`

	CurrentVersionID     *uuid.UUID `gorm:"type:uuid;index" json:"current_version_id,omitempty"`
	CurrentVersionNumber int        `gorm:"column:current_version_number;not null;default:0" json:"current_version_number"`

	SubmittedAt time.Time `gorm:"not null;index" json:"submitted_at"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Proposal) TableName() string { return "proposal" }

// IsNegotiable reports whether the proposal is in a status a negotiation round may target.
func (p *Proposal) IsNegotiable() bool {
	if p == nil {
		return false
	}
	return p.Status == ProposalStatusSubmitted || p.Status == ProposalStatusResubmitted
}

// ProposalVersion is an immutable snapshot. Rows are inserted by the versioning
// aggregate only and are never updated or deleted.
type ProposalVersion struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProposalID uuid.UUID `gorm:"type:uuid;not null;index:idx_proposal_version_number,unique,priority:1;index:idx_proposal_version_hash,unique,priority:1;index" json:"proposal_id"`

	VersionNumber int `gorm:"column:version_number;not null;index:idx_proposal_version_number,unique,priority:2" json:"version_number"`

	Price        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"price"`
	TimelineDays int             `gorm:"column:timeline_days;not null;default:0" json:"timeline_days"`
	ScopeText    string          `gorm:"column:scope_text;type:text" json:"scope_text"`
	Terms        string          `gorm:"column:terms;type:text" json:"terms"`

	CreatedBy    uuid.UUID `gorm:"type:uuid;not null" json:"created_by"`
	ChangeReason string    `gorm:"column:change_reason" json:"change_reason"`

	// SessionID is set when the version was produced by a negotiation round.
	SessionID *uuid.UUID `gorm:"type:uuid;index" json:"session_id,omitempty"`

	// ContentHash fingerprints the resolved item set that produced this version; replays match on it.
	ContentHash string `gorm:"column:content_hash;not null;index:idx_proposal_version_hash,unique,priority:2" json:"content_hash"`

	Metadata datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (ProposalVersion) TableName() string { return "proposal_version" }

// ProposalLineItem is bound to exactly one version. Total is stored, never derived on read.
type ProposalLineItem struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProposalID        uuid.UUID `gorm:"type:uuid;not null;index" json:"proposal_id"`
	ProposalVersionID uuid.UUID `gorm:"type:uuid;not null;index" json:"proposal_version_id"`
	VersionNumber     int       `gorm:"column:version_number;not null" json:"version_number"`

	// LineageID is shared by every copy of the same logical item across versions.
	LineageID uuid.UUID `gorm:"type:uuid;not null;index" json:"lineage_id"`

	Name        string `gorm:"column:name;not null" json:"name"`
	Description string `gorm:"column:description;type:text" json:"description"`
	Category    string `gorm:"column:category" json:"category"`

	Quantity  decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"unit_price"`
	Total     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total"`

	IsOptional   bool `gorm:"column:is_optional;not null;default:false" json:"is_optional"`
	DisplayOrder int  `gorm:"column:display_order;not null;default:0" json:"display_order"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (ProposalLineItem) TableName() string { return "proposal_line_item" }
