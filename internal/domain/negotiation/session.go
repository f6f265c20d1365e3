package negotiation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// NegotiationSession is one negotiation round over one proposal. Rows are never deleted;
// status moves only through the session aggregate.
type NegotiationSession struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProposalID          uuid.UUID `gorm:"type:uuid;not null;index" json:"proposal_id"`
	ProjectID           uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	NegotiatedVersionID uuid.UUID `gorm:"type:uuid;not null" json:"negotiated_version_id"`

	InitiatorID         uuid.UUID `gorm:"type:uuid;not null;index" json:"initiator_id"`
	ConsultantAdvisorID uuid.UUID `gorm:"type:uuid;not null;index" json:"consultant_advisor_id"`

	// open|awaiting_response|responded|resolved|cancelled
	Status SessionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`

	TargetTotal            decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"target_total"`
	TargetReductionPercent decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"target_reduction_percent"`

	GlobalComment             string `gorm:"column:global_comment;type:text" json:"global_comment"`
	InitiatorMessage          string `gorm:"column:initiator_message;type:text" json:"initiator_message"`
	ConsultantResponseMessage string `gorm:"column:consultant_response_message;type:text" json:"consultant_response_message"`

	// BatchID links sessions opened by a bulk negotiation fan-out.
	BatchID *uuid.UUID `gorm:"type:uuid;index" json:"batch_id,omitempty"`

	// ResponseItems is the consultant's resolved item set, persisted at response time so
	// version materialization can be resumed after a crash.
	ResponseItems datatypes.JSON `gorm:"column:response_items" json:"response_items,omitempty"`
	ResponseHash  string         `gorm:"column:response_hash;index" json:"response_hash,omitempty"`

	ResultVersionID     *uuid.UUID `gorm:"type:uuid" json:"result_version_id,omitempty"`
	ResultVersionNumber int        `gorm:"column:result_version_number;not null;default:0" json:"result_version_number,omitempty"`

	CancelledBy *uuid.UUID `gorm:"type:uuid" json:"cancelled_by,omitempty"`

	RespondedAt *time.Time `gorm:"index" json:"responded_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime;index" json:"updated_at"`
}

func (NegotiationSession) TableName() string { return "negotiation_session" }

// LineItemNegotiation is one line item touched by a session. The target price is resolved
// at open time; the consultant price is written once at response and the final price once at resolution.
type LineItemNegotiation struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;index:idx_lin_session_item,unique,priority:1;index" json:"session_id"`
	LineItemID uuid.UUID `gorm:"type:uuid;not null;index:idx_lin_session_item,unique,priority:2" json:"line_item_id"`

	AdjustmentType       AdjustmentType  `gorm:"column:adjustment_type;type:varchar(32);not null" json:"adjustment_type"`
	OriginalPrice        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"original_price"`
	AdjustmentValue      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"adjustment_value"`
	InitiatorTargetPrice decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"initiator_target_price"`

	ConsultantResponsePrice decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"consultant_response_price"`
	FinalPrice              decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"final_price"`

	InitiatorNote  string `gorm:"column:initiator_note;type:text" json:"initiator_note,omitempty"`
	ConsultantNote string `gorm:"column:consultant_note;type:text" json:"consultant_note,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (LineItemNegotiation) TableName() string { return "line_item_negotiation" }

// ResponseItem is one consultant counter-price, as persisted on the session.
type ResponseItem struct {
	LineItemID uuid.UUID       `json:"line_item_id"`
	Price      decimal.Decimal `json:"price"`
	Note       string          `json:"note,omitempty"`
}
