package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/domain/notify"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

// =========================
// Negotiation notifier
// =========================

// NegotiationNotifier queues outbound notifications. It never publishes directly; the
// outbox dispatcher owns delivery, so a dead sink cannot fail a negotiation.
type NegotiationNotifier interface {
	NegotiationRequested(ctx context.Context, session *types.NegotiationSession) error
	NegotiationResponded(ctx context.Context, session *types.NegotiationSession, versionID uuid.UUID, versionNumber int) error
	NegotiationCancelled(ctx context.Context, session *types.NegotiationSession, actorID uuid.UUID) error
}

type negotiationNotifier struct {
	log    *logger.Logger
	outbox repos.OutboxRepo
	now    func() time.Time
}

func NewNegotiationNotifier(baseLog *logger.Logger, outbox repos.OutboxRepo) NegotiationNotifier {
	return &negotiationNotifier{
		log:    baseLog.With("service", "NegotiationNotifier"),
		outbox: outbox,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (n *negotiationNotifier) NegotiationRequested(ctx context.Context, s *types.NegotiationSession) error {
	if s == nil {
		return fmt.Errorf("missing session")
	}
	return n.enqueue(ctx, notify.TemplateNegotiationRequested, s.ConsultantAdvisorID, s, map[string]any{
		"initiator_id":          s.InitiatorID,
		"negotiated_version_id": s.NegotiatedVersionID,
		"target_total":          s.TargetTotal,
		"target_reduction_pct":  s.TargetReductionPercent,
		"message":               s.InitiatorMessage,
		"batch_id":              s.BatchID,
	})
}

func (n *negotiationNotifier) NegotiationResponded(ctx context.Context, s *types.NegotiationSession, versionID uuid.UUID, versionNumber int) error {
	if s == nil {
		return fmt.Errorf("missing session")
	}
	return n.enqueue(ctx, notify.TemplateNegotiationResponded, s.InitiatorID, s, map[string]any{
		"consultant_id":      s.ConsultantAdvisorID,
		"message":            s.ConsultantResponseMessage,
		"new_version_id":     versionID,
		"new_version_number": versionNumber,
	})
}

func (n *negotiationNotifier) NegotiationCancelled(ctx context.Context, s *types.NegotiationSession, actorID uuid.UUID) error {
	if s == nil {
		return fmt.Errorf("missing session")
	}
	recipient := s.ConsultantAdvisorID
	if actorID == s.ConsultantAdvisorID {
		recipient = s.InitiatorID
	}
	return n.enqueue(ctx, notify.TemplateNegotiationCancelled, recipient, s, map[string]any{
		"cancelled_by": actorID,
	})
}

func (n *negotiationNotifier) enqueue(ctx context.Context, tmpl notify.Template, recipient uuid.UUID, s *types.NegotiationSession, payload map[string]any) error {
	if n == nil || n.outbox == nil {
		return fmt.Errorf("notifier not configured")
	}
	if recipient == uuid.Nil {
		return fmt.Errorf("missing recipient for %s", tmpl)
	}
	payload["session_id"] = s.ID
	payload["proposal_id"] = s.ProposalID
	payload["project_id"] = s.ProjectID
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", tmpl, err)
	}
	now := n.now()
	sessionID := s.ID
	row := &types.NotificationOutbox{
		ID:            uuid.New(),
		MessageKey:    ulid.Make().String(),
		DedupKey:      DedupKey(tmpl, s.ID),
		Template:      tmpl,
		RecipientID:   recipient,
		SessionID:     &sessionID,
		Payload:       datatypes.JSON(raw),
		Status:        notify.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := n.outbox.Enqueue(dbctx.Context{Ctx: ctx}, row)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", tmpl, err)
	}
	if !inserted {
		n.log.Debug("notification already queued", "template", tmpl, "session_id", s.ID)
	}
	return nil
}

// DedupKey identifies one notification per template per session.
func DedupKey(tmpl notify.Template, sessionID uuid.UUID) string {
	return string(tmpl) + ":" + sessionID.String()
}
