package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Template string

const (
	TemplateNegotiationRequested Template = "negotiation_requested"
	TemplateNegotiationResponded Template = "negotiation_responded"
	TemplateNegotiationCancelled Template = "negotiation_cancelled"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// NotificationOutbox is a queued notification. Negotiation flows only ever insert rows;
// the dispatcher owns every later transition.
type NotificationOutbox struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageKey string    `gorm:"column:message_key;type:varchar(32);not null;uniqueIndex" json:"message_key"`
	DedupKey   string    `gorm:"column:dedup_key;not null;uniqueIndex" json:"dedup_key"`

	Template    Template   `gorm:"column:template;type:varchar(64);not null" json:"template"`
	RecipientID uuid.UUID  `gorm:"type:uuid;not null;index" json:"recipient_id"`
	SessionID   *uuid.UUID `gorm:"type:uuid;index" json:"session_id,omitempty"`

	Payload datatypes.JSON `gorm:"column:payload" json:"payload"`

	// pending|sent|failed
	Status        string     `gorm:"column:status;not null;index:idx_outbox_status_next,priority:1" json:"status"`
	Attempts      int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null;index:idx_outbox_status_next,priority:2" json:"next_attempt_at"`
	LastError     string     `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (NotificationOutbox) TableName() string { return "notification_outbox" }

// Message is the wire form handed to notification sinks.
type Message struct {
	Key         string          `json:"key"`
	Template    Template        `json:"template"`
	RecipientID uuid.UUID       `json:"recipient_id"`
	SessionID   *uuid.UUID      `json:"session_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ToMessage converts an outbox row into its wire form.
func (o *NotificationOutbox) ToMessage() Message {
	payload := json.RawMessage(o.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return Message{
		Key:         o.MessageKey,
		Template:    o.Template,
		RecipientID: o.RecipientID,
		SessionID:   o.SessionID,
		Payload:     payload,
		CreatedAt:   o.CreatedAt,
	}
}
