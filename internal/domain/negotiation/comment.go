package negotiation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type CommentType string

const (
	CommentDocument  CommentType = "document"
	CommentScope     CommentType = "scope"
	CommentMilestone CommentType = "milestone"
	CommentPayment   CommentType = "payment"
	CommentGeneral   CommentType = "general"
)

func (c CommentType) IsValid() bool {
	switch c {
	case CommentDocument, CommentScope, CommentMilestone, CommentPayment, CommentGeneral:
		return true
	default:
		return false
	}
}

// NormalizeCommentType lowercases the input and maps empty to general.
func NormalizeCommentType(raw string) CommentType {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return CommentGeneral
	}
	return CommentType(s)
}

// NegotiationComment is append-only discussion scoped to a session.
type NegotiationComment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null;index" json:"author_id"`

	CommentType     CommentType `gorm:"column:comment_type;type:varchar(32);not null" json:"comment_type"`
	Content         string      `gorm:"column:content;type:text;not null" json:"content"`
	EntityReference string      `gorm:"column:entity_reference" json:"entity_reference,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (NegotiationComment) TableName() string { return "negotiation_comment" }

// NegotiationAttachment records an opaque blob reference; bytes live in the attachment store.
type NegotiationAttachment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	UploadedBy uuid.UUID `gorm:"type:uuid;not null" json:"uploaded_by"`

	StoragePath string `gorm:"column:storage_path;not null" json:"storage_path"`
	FileName    string `gorm:"column:file_name;not null" json:"file_name"`
	ContentType string `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes   int64  `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (NegotiationAttachment) TableName() string { return "negotiation_attachment" }
