package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/domain/proposals"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
)

const sessionTable = "negotiation_session"

type NegotiationSessionAggregateDeps struct {
	Base BaseDeps

	Proposals        repos.ProposalRepo
	LineItems        repos.ProposalLineItemRepo
	Versions         repos.ProposalVersionRepo
	Sessions         repos.NegotiationSessionRepo
	ItemNegotiations repos.LineItemNegotiationRepo
	Comments         repos.NegotiationCommentRepo
	BatchMembers     repos.BulkBatchMemberRepo
}

type negotiationSessionAggregate struct {
	deps NegotiationSessionAggregateDeps
}

func NewNegotiationSessionAggregate(deps NegotiationSessionAggregateDeps) domainagg.NegotiationSessionAggregate {
	deps.Base = deps.Base.withDefaults()
	return &negotiationSessionAggregate{deps: deps}
}

func (a *negotiationSessionAggregate) Contract() domainagg.Contract {
	return domainagg.NegotiationSessionAggregateContract
}

func (a *negotiationSessionAggregate) configured() bool {
	return a.deps.Proposals != nil &&
		a.deps.LineItems != nil &&
		a.deps.Versions != nil &&
		a.deps.Sessions != nil &&
		a.deps.ItemNegotiations != nil &&
		a.deps.Comments != nil &&
		a.deps.BatchMembers != nil
}

func (a *negotiationSessionAggregate) OpenSession(ctx context.Context, in domainagg.OpenSessionInput) (domainagg.OpenSessionResult, error) {
	const op = "Negotiation.Session.Open"
	var out domainagg.OpenSessionResult
	if in.ProposalID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing proposal_id", nil)
	}
	if in.ProjectID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing project_id", nil)
	}
	if in.InitiatorID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing initiator_id", nil)
	}
	if in.NegotiatedVersionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing negotiated_version_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "session aggregate repos not configured", nil)
	}
	if len(in.Adjustments) == 0 && in.TargetTotal == nil && in.TargetReductionPercent == nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op,
			"nothing to negotiate: provide line_item_adjustments, target_total or target_reduction_percent", nil)
	}
	if in.TargetTotal != nil && in.TargetTotal.IsNegative() {
		return out, domainagg.Newf(domainagg.CodeValidation, op, "target_total must be >= 0, got %s", in.TargetTotal)
	}
	if p := in.TargetReductionPercent; p != nil && (p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100))) {
		return out, domainagg.Newf(domainagg.CodeValidation, op, "target_reduction_percent must be within [0,100], got %s", p)
	}

	seen := map[uuid.UUID]bool{}
	itemIDs := make([]uuid.UUID, 0, len(in.Adjustments))
	for _, adj := range in.Adjustments {
		if adj.LineItemID == uuid.Nil {
			return out, domainagg.NewError(domainagg.CodeValidation, op, "adjustment missing line_item_id", nil)
		}
		if seen[adj.LineItemID] {
			return out, domainagg.Newf(domainagg.CodeValidation, op, "duplicate adjustment for line item %s", adj.LineItemID)
		}
		if _, err := negotiation.NewAdjustment(adj.Type, adj.Value); err != nil {
			return out, domainagg.NewError(domainagg.CodeValidation, op, err.Error(), err)
		}
		seen[adj.LineItemID] = true
		itemIDs = append(itemIDs, adj.LineItemID)
	}
	comments, err := buildComments(op, in.Comments)
	if err != nil {
		return out, err
	}

	openedAt := in.OpenedAt.UTC()
	if in.OpenedAt.IsZero() {
		openedAt = time.Now().UTC()
	}
	sessionID := in.SessionID
	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	}

	err = executeWrite(ctx, a.deps.Base, a.Contract(), op, func(dbc dbctx.Context) error {
		prop, err := a.deps.Proposals.LockByID(dbc, in.ProposalID)
		if err != nil {
			return err
		}
		if prop == nil || prop.ProjectID != in.ProjectID {
			return domainagg.Newf(domainagg.CodeNotFound, op, "proposal not found: %s", in.ProposalID)
		}
		if !prop.IsNegotiable() {
			return domainagg.Newf(domainagg.CodePreconditionFailed, op, "proposal in status %q cannot be negotiated", prop.Status)
		}

		active, err := a.deps.Sessions.GetActiveByProposal(dbc, prop.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return ConflictError(fmt.Sprintf("proposal %s already has an active negotiation session %s", prop.ID, active.ID))
		}
		if prop.CurrentVersionID == nil || *prop.CurrentVersionID != in.NegotiatedVersionID {
			return ConflictError("negotiated version is no longer the proposal's current version")
		}

		items, err := a.deps.LineItems.GetByIDs(dbc, itemIDs)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*types.ProposalLineItem, len(items))
		for _, it := range items {
			if it.ProposalVersionID == in.NegotiatedVersionID {
				byID[it.ID] = it
			}
		}

		rows := make([]*types.LineItemNegotiation, 0, len(in.Adjustments))
		targets := make([]domainagg.ResolvedTarget, 0, len(in.Adjustments))
		for _, adj := range in.Adjustments {
			item := byID[adj.LineItemID]
			if item == nil {
				return domainagg.Newf(domainagg.CodeNotFound, op, "line item %s not found in negotiated version", adj.LineItemID)
			}
			original := proposals.RoundMoney(item.Total)
			target, err := negotiation.ResolveTarget(adj.Type, adj.Value, original)
			if err != nil {
				return ValidationError(fmt.Sprintf("line item %s: %v", item.ID, err))
			}
			rows = append(rows, &types.LineItemNegotiation{
				ID:                   uuid.New(),
				SessionID:            sessionID,
				LineItemID:           item.ID,
				AdjustmentType:       negotiation.AdjustmentType(strings.ToLower(strings.TrimSpace(string(adj.Type)))),
				OriginalPrice:        original,
				AdjustmentValue:      adj.Value,
				InitiatorTargetPrice: target,
				InitiatorNote:        strings.TrimSpace(adj.InitiatorNote),
			})
			targets = append(targets, domainagg.ResolvedTarget{
				LineItemID:    item.ID,
				OriginalPrice: original,
				TargetPrice:   target,
			})
		}

		session := &types.NegotiationSession{
			ID:                  sessionID,
			ProposalID:          prop.ID,
			ProjectID:           prop.ProjectID,
			NegotiatedVersionID: in.NegotiatedVersionID,
			InitiatorID:         in.InitiatorID,
			ConsultantAdvisorID: prop.AdvisorID,
			Status:              negotiation.SessionOpen,
			GlobalComment:       strings.TrimSpace(in.GlobalComment),
			InitiatorMessage:    strings.TrimSpace(in.InitiatorMessage),
			BatchID:             in.BatchID,
			CreatedAt:           openedAt,
			UpdatedAt:           openedAt,
		}
		if in.TargetTotal != nil {
			session.TargetTotal = decimal.NewNullDecimal(proposals.RoundMoney(*in.TargetTotal))
		}
		if in.TargetReductionPercent != nil {
			session.TargetReductionPercent = decimal.NewNullDecimal(in.TargetReductionPercent.Round(2))
		}
		if _, err := a.deps.Sessions.Create(dbc, []*types.NegotiationSession{session}); err != nil {
			return err
		}
		if _, err := a.deps.ItemNegotiations.Create(dbc, rows); err != nil {
			return err
		}
		for _, c := range comments {
			c.SessionID = sessionID
			c.AuthorID = in.InitiatorID
		}
		if _, err := a.deps.Comments.Create(dbc, comments); err != nil {
			return err
		}
		if in.BatchID != nil {
			// Committed with the session so a batch never loses track of what it opened.
			if err := a.deps.BatchMembers.CreateIgnoreDuplicates(dbc, []*types.BulkNegotiationMember{{
				ID:         uuid.New(),
				BatchID:    *in.BatchID,
				ProposalID: prop.ID,
				SessionID:  &sessionID,
				CreatedAt:  openedAt,
			}}); err != nil {
				return err
			}
		}

		out = domainagg.OpenSessionResult{
			SessionID:           sessionID,
			ProposalID:          prop.ID,
			ProjectID:           prop.ProjectID,
			InitiatorID:         in.InitiatorID,
			ConsultantAdvisorID: prop.AdvisorID,
			Status:              negotiation.SessionOpen,
			Targets:             targets,
			CreatedAt:           openedAt,
		}
		return nil
	})
	return out, err
}

func (a *negotiationSessionAggregate) MarkAwaitingResponse(ctx context.Context, in domainagg.MarkAwaitingResponseInput) (domainagg.TransitionSessionResult, error) {
	const op = "Negotiation.Session.MarkAwaitingResponse"
	var out domainagg.TransitionSessionResult
	if in.SessionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing session_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "session aggregate repos not configured", nil)
	}
	at := in.At.UTC()
	if in.At.IsZero() {
		at = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, a.Contract(), op, func(dbc dbctx.Context) error {
		s, err := a.deps.Sessions.LockByID(dbc, in.SessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "negotiation session not found: %s", in.SessionID)
		}
		out = domainagg.TransitionSessionResult{
			SessionID:  s.ID,
			ProposalID: s.ProposalID,
			Status:     s.Status,
		}
		// The consultant may already have answered; nothing to do then.
		if s.Status != negotiation.SessionOpen {
			return nil
		}
		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, sessionTable, s.ID,
			[]string{string(negotiation.SessionOpen)},
			map[string]any{
				"status":     negotiation.SessionAwaitingResponse,
				"updated_at": at,
			})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "negotiation session changed while marking awaiting response"); err != nil {
			return err
		}
		out.Status = negotiation.SessionAwaitingResponse
		out.Changed = true
		out.TransitionAt = at
		return nil
	})
	return out, err
}

func (a *negotiationSessionAggregate) RecordResponse(ctx context.Context, in domainagg.RecordResponseInput) (domainagg.RecordResponseResult, error) {
	const op = "Negotiation.Session.RecordResponse"
	var out domainagg.RecordResponseResult
	if in.SessionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing session_id", nil)
	}
	if len(in.Items) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "updated_line_items must not be empty", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "session aggregate repos not configured", nil)
	}

	raw := make([]negotiation.ResponseItem, 0, len(in.Items))
	seen := map[uuid.UUID]bool{}
	for _, it := range in.Items {
		if it.LineItemID == uuid.Nil {
			return out, domainagg.NewError(domainagg.CodeValidation, op, "response item missing line_item_id", nil)
		}
		if seen[it.LineItemID] {
			return out, domainagg.Newf(domainagg.CodeValidation, op, "duplicate response for line item %s", it.LineItemID)
		}
		if it.Price.IsNegative() {
			return out, domainagg.Newf(domainagg.CodeValidation, op, "consultant_response_price must be >= 0 for line item %s", it.LineItemID)
		}
		seen[it.LineItemID] = true
		raw = append(raw, negotiation.ResponseItem{LineItemID: it.LineItemID, Price: it.Price, Note: it.Note})
	}
	items := normalizeResponseItems(raw)
	hash := ResponseContentHash(in.SessionID, items)

	respondedAt := in.RespondedAt.UTC()
	if in.RespondedAt.IsZero() {
		respondedAt = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, a.Contract(), op, func(dbc dbctx.Context) error {
		s, err := a.deps.Sessions.LockByID(dbc, in.SessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "negotiation session not found: %s", in.SessionID)
		}
		out = domainagg.RecordResponseResult{
			SessionID:           s.ID,
			ProposalID:          s.ProposalID,
			NegotiatedVersionID: s.NegotiatedVersionID,
			InitiatorID:         s.InitiatorID,
			ConsultantAdvisorID: s.ConsultantAdvisorID,
			Status:              s.Status,
			ResponseHash:        hash,
			Items:               items,
			RespondedAt:         respondedAt,
		}

		switch s.Status {
		case negotiation.SessionResolved:
			if s.ResponseHash != hash {
				return ConflictError("negotiation already resolved with a different response; refresh")
			}
			out.Replayed = true
			out.ResultVersionID = s.ResultVersionID
			out.ResultVersionNumber = s.ResultVersionNumber
			out.Items = decodeResponseItems(s.ResponseItems, items)
			if s.RespondedAt != nil {
				out.RespondedAt = *s.RespondedAt
			}
			return nil
		case negotiation.SessionResponded:
			if s.ResponseHash != hash {
				return ConflictError("negotiation already responded with a different response; refresh")
			}
			out.Resumed = true
			out.Items = decodeResponseItems(s.ResponseItems, items)
			if s.RespondedAt != nil {
				out.RespondedAt = *s.RespondedAt
			}
			return nil
		case negotiation.SessionCancelled:
			return ConflictError("negotiation already cancelled; refresh")
		}
		if !s.Status.AcceptsResponse() {
			return InvariantError(fmt.Sprintf("cannot record response from status %q", s.Status))
		}

		prop, err := a.deps.Proposals.LockByID(dbc, s.ProposalID)
		if err != nil {
			return err
		}
		if prop == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "proposal not found: %s", s.ProposalID)
		}
		if prop.CurrentVersionID == nil || *prop.CurrentVersionID != s.NegotiatedVersionID {
			return ConflictError("proposal moved to a newer version since the negotiation opened; refresh")
		}

		touched, err := a.deps.ItemNegotiations.ListBySession(dbc, s.ID)
		if err != nil {
			return err
		}
		inScope := map[uuid.UUID]*types.LineItemNegotiation{}
		if len(touched) > 0 {
			for _, lin := range touched {
				inScope[lin.LineItemID] = lin
			}
		} else {
			// Session-level targets only: any item of the negotiated version may be countered.
			versionItems, err := a.deps.LineItems.ListByVersion(dbc, s.NegotiatedVersionID)
			if err != nil {
				return err
			}
			for _, it := range versionItems {
				inScope[it.ID] = nil
			}
		}
		for _, it := range items {
			if _, ok := inScope[it.LineItemID]; !ok {
				return ValidationError(fmt.Sprintf("line item %s is not part of this negotiation", it.LineItemID))
			}
		}

		for _, it := range items {
			lin := inScope[it.LineItemID]
			if lin == nil {
				continue
			}
			if err := a.deps.ItemNegotiations.UpdateFields(dbc, lin.ID, map[string]interface{}{
				"consultant_response_price": decimal.NewNullDecimal(it.Price),
				"consultant_note":           it.Note,
				"updated_at":                respondedAt,
			}); err != nil {
				return err
			}
		}

		itemsJSON, err := json.Marshal(items)
		if err != nil {
			return err
		}
		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, sessionTable, s.ID,
			negotiation.StatusesFrom(negotiation.SessionResponded),
			map[string]any{
				"status":                      negotiation.SessionResponded,
				"consultant_response_message": strings.TrimSpace(in.ConsultantMessage),
				"response_items":              datatypes.JSON(itemsJSON),
				"response_hash":               hash,
				"responded_at":                respondedAt,
				"updated_at":                  respondedAt,
			})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "negotiation session changed while recording response"); err != nil {
			return err
		}
		out.Status = negotiation.SessionResponded
		return nil
	})
	return out, err
}

func (a *negotiationSessionAggregate) ResolveSession(ctx context.Context, in domainagg.ResolveSessionInput) (domainagg.TransitionSessionResult, error) {
	const op = "Negotiation.Session.Resolve"
	var out domainagg.TransitionSessionResult
	if in.SessionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing session_id", nil)
	}
	if in.ResultVersionID == uuid.Nil || in.ResultVersionNumber <= 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing result version", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "session aggregate repos not configured", nil)
	}
	resolvedAt := in.ResolvedAt.UTC()
	if in.ResolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, a.Contract(), op, func(dbc dbctx.Context) error {
		s, err := a.deps.Sessions.LockByID(dbc, in.SessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "negotiation session not found: %s", in.SessionID)
		}
		out = domainagg.TransitionSessionResult{
			SessionID:  s.ID,
			ProposalID: s.ProposalID,
			Status:     s.Status,
		}
		if s.Status == negotiation.SessionResolved {
			if s.ResultVersionID != nil && *s.ResultVersionID == in.ResultVersionID {
				if s.ResolvedAt != nil {
					out.TransitionAt = *s.ResolvedAt
				}
				return nil
			}
			return ConflictError("negotiation already resolved to a different version")
		}
		if !s.Status.CanTransitionTo(negotiation.SessionResolved) {
			return ConflictError(fmt.Sprintf("negotiation in status %q cannot be resolved", s.Status))
		}

		lins, err := a.deps.ItemNegotiations.ListBySession(dbc, s.ID)
		if err != nil {
			return err
		}
		for _, lin := range lins {
			final := lin.OriginalPrice
			if lin.ConsultantResponsePrice.Valid {
				final = lin.ConsultantResponsePrice.Decimal
			}
			if err := a.deps.ItemNegotiations.UpdateFields(dbc, lin.ID, map[string]interface{}{
				"final_price": decimal.NewNullDecimal(final),
				"updated_at":  resolvedAt,
			}); err != nil {
				return err
			}
		}

		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, sessionTable, s.ID,
			[]string{string(negotiation.SessionResponded)},
			map[string]any{
				"status":                negotiation.SessionResolved,
				"result_version_id":     in.ResultVersionID,
				"result_version_number": in.ResultVersionNumber,
				"resolved_at":           resolvedAt,
				"updated_at":            resolvedAt,
			})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "negotiation session changed while resolving"); err != nil {
			return err
		}
		out.Status = negotiation.SessionResolved
		out.Changed = true
		out.TransitionAt = resolvedAt
		return nil
	})
	return out, err
}

func (a *negotiationSessionAggregate) CancelSession(ctx context.Context, in domainagg.CancelSessionInput) (domainagg.TransitionSessionResult, error) {
	const op = "Negotiation.Session.Cancel"
	var out domainagg.TransitionSessionResult
	if in.SessionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing session_id", nil)
	}
	if in.ActorID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing actor_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "session aggregate repos not configured", nil)
	}
	cancelledAt := in.CancelledAt.UTC()
	if in.CancelledAt.IsZero() {
		cancelledAt = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, a.Contract(), op, func(dbc dbctx.Context) error {
		s, err := a.deps.Sessions.LockByID(dbc, in.SessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "negotiation session not found: %s", in.SessionID)
		}
		if in.ActorID != s.InitiatorID && in.ActorID != s.ConsultantAdvisorID {
			return domainagg.NewError(domainagg.CodeForbidden, op, "actor is not a party to this negotiation", nil)
		}
		out = domainagg.TransitionSessionResult{
			SessionID:  s.ID,
			ProposalID: s.ProposalID,
			Status:     s.Status,
		}
		if !s.Status.CanTransitionTo(negotiation.SessionCancelled) {
			return ConflictError(fmt.Sprintf("negotiation already %s; refresh", strings.ReplaceAll(string(s.Status), "_", " ")))
		}
		if s.Status == negotiation.SessionResponded {
			// Materialize locks this row too, so a version either exists now or never will.
			applied, err := a.deps.Versions.GetBySession(dbc, s.ID)
			if err != nil {
				return err
			}
			if applied != nil {
				return ConflictError(fmt.Sprintf("negotiation response already applied as version %d; refresh", applied.VersionNumber))
			}
		}
		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, sessionTable, s.ID,
			negotiation.StatusesFrom(negotiation.SessionCancelled),
			map[string]any{
				"status":       negotiation.SessionCancelled,
				"cancelled_by": in.ActorID,
				"cancelled_at": cancelledAt,
				"updated_at":   cancelledAt,
			})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "negotiation session changed while cancelling"); err != nil {
			return err
		}
		out.Status = negotiation.SessionCancelled
		out.Changed = true
		out.TransitionAt = cancelledAt
		return nil
	})
	return out, err
}

func (a *negotiationSessionAggregate) AddComment(ctx context.Context, in domainagg.AddCommentInput) (domainagg.AddCommentResult, error) {
	const op = "Negotiation.Session.AddComment"
	var out domainagg.AddCommentResult
	if in.SessionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing session_id", nil)
	}
	if in.AuthorID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing author_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "session aggregate repos not configured", nil)
	}
	rows, err := buildComments(op, []domainagg.CommentInput{in.Comment})
	if err != nil {
		return out, err
	}
	row := rows[0]

	err = executeWrite(ctx, a.deps.Base, a.Contract(), op, func(dbc dbctx.Context) error {
		s, err := a.deps.Sessions.GetByID(dbc, in.SessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "negotiation session not found: %s", in.SessionID)
		}
		row.SessionID = s.ID
		row.AuthorID = in.AuthorID
		if _, err := a.deps.Comments.Create(dbc, []*types.NegotiationComment{row}); err != nil {
			return err
		}
		out = domainagg.AddCommentResult{
			CommentID: row.ID,
			SessionID: s.ID,
			CreatedAt: row.CreatedAt,
		}
		return nil
	})
	return out, err
}

func buildComments(op string, in []domainagg.CommentInput) ([]*types.NegotiationComment, error) {
	out := make([]*types.NegotiationComment, 0, len(in))
	now := time.Now().UTC()
	for _, c := range in {
		ct := negotiation.NormalizeCommentType(c.CommentType)
		if !ct.IsValid() {
			return nil, domainagg.Newf(domainagg.CodeValidation, op, "unknown comment_type %q", c.CommentType)
		}
		content := strings.TrimSpace(c.Content)
		if content == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "comment content must not be empty", nil)
		}
		out = append(out, &types.NegotiationComment{
			ID:              uuid.New(),
			CommentType:     ct,
			Content:         content,
			EntityReference: strings.TrimSpace(c.EntityReference),
			CreatedAt:       now,
		})
	}
	return out, nil
}

func decodeResponseItems(raw datatypes.JSON, fallback []negotiation.ResponseItem) []negotiation.ResponseItem {
	if len(raw) == 0 {
		return fallback
	}
	var items []negotiation.ResponseItem
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return fallback
	}
	return items
}
