package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

const (
	materializeAttempts   = 3
	materializeBackoff    = 25 * time.Millisecond
	defaultRecoveryBatch  = 50
	defaultRecoveryWindow = 5 * time.Minute
)

type LineItemAdjustment struct {
	LineItemID      uuid.UUID       `json:"line_item_id"`
	AdjustmentType  string          `json:"adjustment_type"`
	AdjustmentValue decimal.Decimal `json:"adjustment_value"`
	InitiatorNote   string          `json:"initiator_note,omitempty"`
}

type CommentRequest struct {
	CommentType     string `json:"comment_type"`
	Content         string `json:"content"`
	EntityReference string `json:"entity_reference,omitempty"`
}

// NegotiationRequest is the initiator's ask against one proposal version.
type NegotiationRequest struct {
	ProjectID              uuid.UUID            `json:"project_id"`
	ProposalID             uuid.UUID            `json:"proposal_id"`
	NegotiatedVersionID    uuid.UUID            `json:"negotiated_version_id"`
	TargetTotal            *decimal.Decimal     `json:"target_total,omitempty"`
	TargetReductionPercent *decimal.Decimal     `json:"target_reduction_percent,omitempty"`
	GlobalComment          string               `json:"global_comment,omitempty"`
	BulkMessage            string               `json:"bulk_message,omitempty"`
	LineItemAdjustments    []LineItemAdjustment `json:"line_item_adjustments,omitempty"`
	Comments               []CommentRequest     `json:"comments,omitempty"`

	// BatchID is set by the bulk coordinator only.
	BatchID *uuid.UUID `json:"-"`
}

type NegotiationCreated struct {
	SessionID uuid.UUID                 `json:"session_id"`
	CreatedAt time.Time                 `json:"created_at"`
	Status    negotiation.SessionStatus `json:"status"`
	Targets   []domainagg.ResolvedTarget `json:"targets,omitempty"`
}

type ResponseLineItem struct {
	LineItemID              uuid.UUID       `json:"line_item_id"`
	ConsultantResponsePrice decimal.Decimal `json:"consultant_response_price"`
	ConsultantNote          string          `json:"consultant_note,omitempty"`
}

// NegotiationResponse is the consultant's counter on an open session.
type NegotiationResponse struct {
	SessionID         uuid.UUID          `json:"session_id"`
	ConsultantMessage string             `json:"consultant_message,omitempty"`
	UpdatedLineItems  []ResponseLineItem `json:"updated_line_items"`
}

type NegotiationResponseResult struct {
	NewVersionID     uuid.UUID `json:"new_version_id"`
	NewVersionNumber int       `json:"new_version_number"`
	Replayed         bool      `json:"replayed,omitempty"`
}

type SessionDetail struct {
	Session   *types.NegotiationSession    `json:"session"`
	LineItems []*types.LineItemNegotiation `json:"line_items"`
	Comments  []*types.NegotiationComment  `json:"comments"`
}

type RecoveryReport struct {
	Resolved int `json:"resolved"`
	Reminded int `json:"reminded"`
	Failed   int `json:"failed"`
}

type NegotiationService interface {
	Open(ctx context.Context, actorID uuid.UUID, req NegotiationRequest) (*NegotiationCreated, error)
	Respond(ctx context.Context, actorID uuid.UUID, req NegotiationResponse) (*NegotiationResponseResult, error)
	Cancel(ctx context.Context, actorID, sessionID uuid.UUID) (*types.NegotiationSession, error)
	AddComment(ctx context.Context, actorID, sessionID uuid.UUID, req CommentRequest) (*types.NegotiationComment, error)
	GetSession(ctx context.Context, actorID, sessionID uuid.UUID) (*SessionDetail, error)
	ListSessions(ctx context.Context, actorID, proposalID uuid.UUID) ([]*types.NegotiationSession, error)
	// RecoverStuckSessions finishes sessions left in responded by a crash and re-sends
	// requests for sessions that never reached awaiting_response.
	RecoverStuckSessions(ctx context.Context, staleAfter time.Duration) (RecoveryReport, error)
}

type NegotiationServiceDeps struct {
	Sessions         domainagg.NegotiationSessionAggregate
	Versioning       domainagg.VersioningAggregate
	Identity         IdentityOracle
	Notifier         NegotiationNotifier
	SessionRepo      repos.NegotiationSessionRepo
	ItemNegotiations repos.LineItemNegotiationRepo
	Comments         repos.NegotiationCommentRepo
}

type negotiationService struct {
	log  *logger.Logger
	deps NegotiationServiceDeps
	now  func() time.Time
}

func NewNegotiationService(baseLog *logger.Logger, deps NegotiationServiceDeps) NegotiationService {
	return &negotiationService{
		log:  baseLog.With("service", "NegotiationService"),
		deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *negotiationService) Open(ctx context.Context, actorID uuid.UUID, req NegotiationRequest) (*NegotiationCreated, error) {
	if _, err := s.deps.Identity.RequireProjectOwner(ctx, actorID, req.ProjectID); err != nil {
		return nil, err
	}

	in := domainagg.OpenSessionInput{
		ProjectID:              req.ProjectID,
		ProposalID:             req.ProposalID,
		NegotiatedVersionID:    req.NegotiatedVersionID,
		InitiatorID:            actorID,
		BatchID:                req.BatchID,
		TargetTotal:            req.TargetTotal,
		TargetReductionPercent: req.TargetReductionPercent,
		GlobalComment:          req.GlobalComment,
		InitiatorMessage:       req.BulkMessage,
		OpenedAt:               s.now(),
	}
	for _, adj := range req.LineItemAdjustments {
		in.Adjustments = append(in.Adjustments, domainagg.LineItemAdjustmentInput{
			LineItemID:    adj.LineItemID,
			Type:          negotiation.AdjustmentType(adj.AdjustmentType),
			Value:         adj.AdjustmentValue,
			InitiatorNote: adj.InitiatorNote,
		})
	}
	for _, c := range req.Comments {
		in.Comments = append(in.Comments, domainagg.CommentInput{
			CommentType:     c.CommentType,
			Content:         c.Content,
			EntityReference: c.EntityReference,
		})
	}

	res, err := s.deps.Sessions.OpenSession(ctx, in)
	if err != nil {
		return nil, err
	}
	out := &NegotiationCreated{
		SessionID: res.SessionID,
		CreatedAt: res.CreatedAt,
		Status:    res.Status,
		Targets:   res.Targets,
	}
	if st, ok := s.requestConsultant(ctx, res.SessionID); ok {
		out.Status = st
	}
	s.log.Info("negotiation opened",
		"session_id", res.SessionID,
		"proposal_id", res.ProposalID,
		"initiator_id", actorID,
		"items", len(res.Targets),
	)
	return out, nil
}

// requestConsultant queues the request notification and, once it is queued, moves the
// session to awaiting_response. Failures are logged and leave the session open.
func (s *negotiationService) requestConsultant(ctx context.Context, sessionID uuid.UUID) (negotiation.SessionStatus, bool) {
	session, err := s.deps.SessionRepo.GetByID(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil || session == nil {
		s.log.Warn("reload session for notification failed", "session_id", sessionID, "error", err)
		return "", false
	}
	if s.deps.Notifier == nil {
		return "", false
	}
	if err := s.deps.Notifier.NegotiationRequested(ctx, session); err != nil {
		s.log.Warn("queue negotiation request failed", "session_id", sessionID, "error", err)
		return "", false
	}
	marked, err := s.deps.Sessions.MarkAwaitingResponse(ctx, domainagg.MarkAwaitingResponseInput{
		SessionID: sessionID,
		At:        s.now(),
	})
	if err != nil {
		s.log.Warn("mark awaiting response failed", "session_id", sessionID, "error", err)
		return "", false
	}
	return marked.Status, true
}

func (s *negotiationService) Respond(ctx context.Context, actorID uuid.UUID, req NegotiationResponse) (*NegotiationResponseResult, error) {
	const op = "Negotiation.Respond"
	session, err := s.deps.SessionRepo.GetByID(dbctx.Context{Ctx: ctx}, req.SessionID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if session == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "negotiation session not found: %s", req.SessionID)
	}
	if _, err := s.deps.Identity.RequireProposalAdvisor(ctx, actorID, session.ProposalID); err != nil {
		return nil, err
	}

	in := domainagg.RecordResponseInput{
		SessionID:         session.ID,
		ConsultantMessage: req.ConsultantMessage,
		RespondedAt:       s.now(),
	}
	for _, it := range req.UpdatedLineItems {
		in.Items = append(in.Items, domainagg.ResponseItemInput{
			LineItemID: it.LineItemID,
			Price:      it.ConsultantResponsePrice,
			Note:       it.ConsultantNote,
		})
	}
	rec, err := s.deps.Sessions.RecordResponse(ctx, in)
	if err != nil {
		return nil, err
	}
	if rec.Replayed && rec.ResultVersionID != nil {
		s.log.Info("negotiation response replayed", "session_id", rec.SessionID, "version_number", rec.ResultVersionNumber)
		return &NegotiationResponseResult{
			NewVersionID:     *rec.ResultVersionID,
			NewVersionNumber: rec.ResultVersionNumber,
			Replayed:         true,
		}, nil
	}

	ver, err := s.finishResponded(ctx, respondedSession{
		SessionID:           rec.SessionID,
		ProposalID:          rec.ProposalID,
		NegotiatedVersionID: rec.NegotiatedVersionID,
		ConsultantID:        rec.ConsultantAdvisorID,
		ChangeReason:        req.ConsultantMessage,
		Items:               rec.Items,
	})
	if err != nil {
		return nil, err
	}
	return &NegotiationResponseResult{
		NewVersionID:     ver.VersionID,
		NewVersionNumber: ver.VersionNumber,
		Replayed:         !ver.Created,
	}, nil
}

type respondedSession struct {
	SessionID           uuid.UUID
	ProposalID          uuid.UUID
	NegotiatedVersionID uuid.UUID
	ConsultantID        uuid.UUID
	ChangeReason        string
	Items               []negotiation.ResponseItem
}

// finishResponded materializes the next version, moves the proposal pointer, then resolves
// the session. Every step is idempotent, so a crash anywhere can be resumed from responded.
func (s *negotiationService) finishResponded(ctx context.Context, rs respondedSession) (domainagg.MaterializeResult, error) {
	ver, err := s.materializeWithRetry(ctx, domainagg.MaterializeInput{
		ProposalID:    rs.ProposalID,
		BaseVersionID: rs.NegotiatedVersionID,
		SessionID:     rs.SessionID,
		CreatedBy:     rs.ConsultantID,
		ChangeReason:  strings.TrimSpace(rs.ChangeReason),
		Items:         rs.Items,
		MaterializeAt: s.now(),
	})
	if err != nil {
		return ver, err
	}
	if _, err := s.deps.Versioning.AdvanceCurrentVersion(ctx, domainagg.AdvanceCurrentVersionInput{
		ProposalID:  rs.ProposalID,
		VersionID:   ver.VersionID,
		Resubmitted: true,
		At:          s.now(),
	}); err != nil {
		return ver, err
	}
	if _, err := s.deps.Sessions.ResolveSession(ctx, domainagg.ResolveSessionInput{
		SessionID:           rs.SessionID,
		ResultVersionID:     ver.VersionID,
		ResultVersionNumber: ver.VersionNumber,
		ResolvedAt:          s.now(),
	}); err != nil {
		return ver, err
	}

	s.log.Info("negotiation resolved",
		"session_id", rs.SessionID,
		"proposal_id", rs.ProposalID,
		"version_number", ver.VersionNumber,
		"created", ver.Created,
	)
	if s.deps.Notifier != nil {
		session, err := s.deps.SessionRepo.GetByID(dbctx.Context{Ctx: ctx}, rs.SessionID)
		if err == nil && session != nil {
			err = s.deps.Notifier.NegotiationResponded(ctx, session, ver.VersionID, ver.VersionNumber)
		}
		if err != nil {
			s.log.Warn("queue negotiation response failed", "session_id", rs.SessionID, "error", err)
		}
	}
	return ver, nil
}

func (s *negotiationService) materializeWithRetry(ctx context.Context, in domainagg.MaterializeInput) (domainagg.MaterializeResult, error) {
	var (
		res domainagg.MaterializeResult
		err error
	)
	for attempt := 1; attempt <= materializeAttempts; attempt++ {
		res, err = s.deps.Versioning.Materialize(ctx, in)
		if err == nil {
			return res, nil
		}
		if !domainagg.IsCode(err, domainagg.CodeConflict) && !domainagg.IsCode(err, domainagg.CodeRetryable) {
			return res, err
		}
		s.log.Warn("materialize attempt failed", "session_id", in.SessionID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(time.Duration(attempt) * materializeBackoff):
		}
	}
	return res, err
}

func (s *negotiationService) Cancel(ctx context.Context, actorID, sessionID uuid.UUID) (*types.NegotiationSession, error) {
	if _, err := s.deps.Sessions.CancelSession(ctx, domainagg.CancelSessionInput{
		SessionID:   sessionID,
		ActorID:     actorID,
		CancelledAt: s.now(),
	}); err != nil {
		return nil, err
	}
	session, err := s.deps.SessionRepo.GetByID(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, "Negotiation.Cancel", err)
	}
	if s.deps.Notifier != nil && session != nil {
		if err := s.deps.Notifier.NegotiationCancelled(ctx, session, actorID); err != nil {
			s.log.Warn("queue negotiation cancel failed", "session_id", sessionID, "error", err)
		}
	}
	return session, nil
}

func (s *negotiationService) AddComment(ctx context.Context, actorID, sessionID uuid.UUID, req CommentRequest) (*types.NegotiationComment, error) {
	const op = "Negotiation.AddComment"
	if _, err := s.requireParty(ctx, op, actorID, sessionID); err != nil {
		return nil, err
	}
	res, err := s.deps.Sessions.AddComment(ctx, domainagg.AddCommentInput{
		SessionID: sessionID,
		AuthorID:  actorID,
		Comment: domainagg.CommentInput{
			CommentType:     req.CommentType,
			Content:         req.Content,
			EntityReference: req.EntityReference,
		},
	})
	if err != nil {
		return nil, err
	}
	return &types.NegotiationComment{
		ID:              res.CommentID,
		SessionID:       res.SessionID,
		AuthorID:        actorID,
		CommentType:     negotiation.NormalizeCommentType(req.CommentType),
		Content:         strings.TrimSpace(req.Content),
		EntityReference: strings.TrimSpace(req.EntityReference),
		CreatedAt:       res.CreatedAt,
	}, nil
}

func (s *negotiationService) GetSession(ctx context.Context, actorID, sessionID uuid.UUID) (*SessionDetail, error) {
	const op = "Negotiation.GetSession"
	session, err := s.requireParty(ctx, op, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	lins, err := s.deps.ItemNegotiations.ListBySession(dbc, session.ID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	comments, err := s.deps.Comments.ListBySession(dbc, session.ID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return &SessionDetail{Session: session, LineItems: lins, Comments: comments}, nil
}

func (s *negotiationService) ListSessions(ctx context.Context, actorID, proposalID uuid.UUID) ([]*types.NegotiationSession, error) {
	if _, err := s.deps.Identity.RequireProposalViewer(ctx, actorID, proposalID); err != nil {
		return nil, err
	}
	out, err := s.deps.SessionRepo.ListByProposal(dbctx.Context{Ctx: ctx}, proposalID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, "Negotiation.ListSessions", err)
	}
	return out, nil
}

func (s *negotiationService) requireParty(ctx context.Context, op string, actorID, sessionID uuid.UUID) (*types.NegotiationSession, error) {
	session, err := s.deps.SessionRepo.GetByID(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if session == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "negotiation session not found: %s", sessionID)
	}
	if actorID == uuid.Nil || (actorID != session.InitiatorID && actorID != session.ConsultantAdvisorID) {
		return nil, domainagg.NewError(domainagg.CodeForbidden, op, "caller is not a party to this negotiation", nil)
	}
	return session, nil
}

func (s *negotiationService) RecoverStuckSessions(ctx context.Context, staleAfter time.Duration) (RecoveryReport, error) {
	var report RecoveryReport
	if staleAfter <= 0 {
		staleAfter = defaultRecoveryWindow
	}
	cutoff := s.now().Add(-staleAfter)
	dbc := dbctx.Context{Ctx: ctx}

	responded, err := s.deps.SessionRepo.ListStale(dbc, []string{string(negotiation.SessionResponded)}, cutoff, defaultRecoveryBatch)
	if err != nil {
		return report, fmt.Errorf("list stale responded sessions: %w", err)
	}
	for _, session := range responded {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var items []negotiation.ResponseItem
		if err := json.Unmarshal(session.ResponseItems, &items); err != nil || len(items) == 0 {
			report.Failed++
			s.log.Error("responded session has no usable response items", "session_id", session.ID, "error", err)
			continue
		}
		if _, err := s.finishResponded(ctx, respondedSession{
			SessionID:           session.ID,
			ProposalID:          session.ProposalID,
			NegotiatedVersionID: session.NegotiatedVersionID,
			ConsultantID:        session.ConsultantAdvisorID,
			ChangeReason:        session.ConsultantResponseMessage,
			Items:               items,
		}); err != nil {
			report.Failed++
			s.log.Warn("resume responded session failed", "session_id", session.ID, "error", err)
			continue
		}
		report.Resolved++
	}

	open, err := s.deps.SessionRepo.ListStale(dbc, []string{string(negotiation.SessionOpen)}, cutoff, defaultRecoveryBatch)
	if err != nil {
		return report, fmt.Errorf("list stale open sessions: %w", err)
	}
	for _, session := range open {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, ok := s.requestConsultant(ctx, session.ID); !ok {
			report.Failed++
			continue
		}
		report.Reminded++
	}

	if report.Resolved+report.Reminded+report.Failed > 0 {
		s.log.Info("negotiation recovery pass",
			"resolved", report.Resolved,
			"reminded", report.Reminded,
			"failed", report.Failed,
		)
	}
	return report, nil
}
