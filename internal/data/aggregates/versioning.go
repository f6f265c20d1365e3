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

const proposalTable = "proposal"

type VersioningAggregateDeps struct {
	Base BaseDeps

	Projects  repos.ProjectRepo
	Proposals repos.ProposalRepo
	Versions  repos.ProposalVersionRepo
	Sessions  repos.NegotiationSessionRepo
	LineItems repos.ProposalLineItemRepo
}

type versioningAggregate struct {
	deps VersioningAggregateDeps
}

func NewVersioningAggregate(deps VersioningAggregateDeps) domainagg.VersioningAggregate {
	deps.Base = deps.Base.withDefaults()
	return &versioningAggregate{deps: deps}
}

func (a *versioningAggregate) Contract() domainagg.Contract {
	return domainagg.VersioningAggregateContract
}

func (a *versioningAggregate) configured() bool {
	return a.deps.Projects != nil &&
		a.deps.Proposals != nil &&
		a.deps.Versions != nil &&
		a.deps.Sessions != nil &&
		a.deps.LineItems != nil
}

func (a *versioningAggregate) SubmitProposal(ctx context.Context, in domainagg.SubmitProposalInput) (domainagg.MaterializeResult, error) {
	const op = "Proposals.Versioning.Submit"
	var out domainagg.MaterializeResult
	if in.ProjectID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing project_id", nil)
	}
	if in.AdvisorID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing advisor_id", nil)
	}
	if len(in.LineItems) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "a proposal needs at least one line item", nil)
	}
	if in.Price != nil && in.Price.IsNegative() {
		return out, domainagg.Newf(domainagg.CodeValidation, op, "price must be >= 0, got %s", in.Price)
	}
	if in.TimelineDays < 0 {
		return out, domainagg.Newf(domainagg.CodeValidation, op, "timeline_days must be >= 0, got %d", in.TimelineDays)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "versioning aggregate repos not configured", nil)
	}

	proposalID := in.ProposalID
	if proposalID == uuid.Nil {
		proposalID = uuid.New()
	}
	versionID := uuid.New()
	submittedAt := in.SubmittedAt.UTC()
	if in.SubmittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	items := make([]*types.ProposalLineItem, 0, len(in.LineItems))
	for i, li := range in.LineItems {
		name := strings.TrimSpace(li.Name)
		if name == "" {
			return out, domainagg.Newf(domainagg.CodeValidation, op, "line item %d missing name", i+1)
		}
		qty := li.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		if qty.IsNegative() || li.UnitPrice.IsNegative() {
			return out, domainagg.Newf(domainagg.CodeValidation, op, "line item %q has a negative quantity or unit_price", name)
		}
		unit := proposals.RoundMoney(li.UnitPrice)
		order := li.DisplayOrder
		if order == 0 {
			order = i + 1
		}
		items = append(items, &types.ProposalLineItem{
			ID:                uuid.New(),
			ProposalID:        proposalID,
			ProposalVersionID: versionID,
			VersionNumber:     1,
			LineageID:         uuid.New(),
			Name:              name,
			Description:       strings.TrimSpace(li.Description),
			Category:          strings.TrimSpace(li.Category),
			Quantity:          qty,
			UnitPrice:         unit,
			Total:             proposals.RoundMoney(qty.Mul(unit)),
			IsOptional:        li.IsOptional,
			DisplayOrder:      order,
			CreatedAt:         submittedAt,
		})
	}
	price := proposals.Total(items, true)
	if in.Price != nil {
		price = proposals.RoundMoney(*in.Price)
	}
	hash := initialContentHash(proposalID, items)

	err := executeWrite(ctx, a.deps.Base, a.Contract(), op, func(dbc dbctx.Context) error {
		project, err := a.deps.Projects.GetByID(dbc, in.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "project not found: %s", in.ProjectID)
		}

		// Insert without the pointer; it only moves once the version row exists.
		prop := &types.Proposal{
			ID:          proposalID,
			ProjectID:   project.ID,
			AdvisorID:   in.AdvisorID,
			Status:      proposals.ProposalStatusSubmitted,
			SubmittedAt: submittedAt,
			CreatedAt:   submittedAt,
			UpdatedAt:   submittedAt,
		}
		if _, err := a.deps.Proposals.Create(dbc, []*types.Proposal{prop}); err != nil {
			return err
		}
		version := &types.ProposalVersion{
			ID:            versionID,
			ProposalID:    proposalID,
			VersionNumber: 1,
			Price:         price,
			TimelineDays:  in.TimelineDays,
			ScopeText:     strings.TrimSpace(in.ScopeText),
			Terms:         strings.TrimSpace(in.Terms),
			CreatedBy:     in.AdvisorID,
			ChangeReason:  "initial submission",
			ContentHash:   hash,
			CreatedAt:     submittedAt,
		}
		if _, err := a.deps.Versions.Create(dbc, []*types.ProposalVersion{version}); err != nil {
			return err
		}
		if err := a.deps.LineItems.UpsertBatch(dbc, items); err != nil {
			return err
		}
		ok, err := a.deps.Base.CASGuard.UpdateIfBelow(dbc, proposalTable, proposalID, "current_version_number", 1,
			map[string]any{
				"current_version_id":     versionID,
				"current_version_number": 1,
				"updated_at":             submittedAt,
			})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "proposal current version moved during submission"); err != nil {
			return err
		}
		out = domainagg.MaterializeResult{
			ProposalID:    proposalID,
			VersionID:     versionID,
			VersionNumber: 1,
			Price:         price,
			ContentHash:   hash,
			Created:       true,
			CreatedAt:     submittedAt,
		}
		return nil
	})
	return out, err
}

func (a *versioningAggregate) Materialize(ctx context.Context, in domainagg.MaterializeInput) (domainagg.MaterializeResult, error) {
	const op = "Proposals.Versioning.Materialize"
	var out domainagg.MaterializeResult
	if in.ProposalID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing proposal_id", nil)
	}
	if in.BaseVersionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing base_version_id", nil)
	}
	if in.SessionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing session_id", nil)
	}
	if len(in.Items) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "resolved item set must not be empty", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "versioning aggregate repos not configured", nil)
	}
	for _, it := range in.Items {
		if it.Price.IsNegative() {
			return out, domainagg.Newf(domainagg.CodeValidation, op, "resolved price must be >= 0 for line item %s", it.LineItemID)
		}
	}
	items := normalizeResponseItems(in.Items)
	hash := ResponseContentHash(in.SessionID, items)
	at := in.MaterializeAt.UTC()
	if in.MaterializeAt.IsZero() {
		at = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, a.Contract(), op, func(dbc dbctx.Context) error {
		// Session before proposal, the same order RecordResponse takes them.
		// Holding the session row keeps a concurrent cancel from slipping in.
		session, err := a.deps.Sessions.LockByID(dbc, in.SessionID)
		if err != nil {
			return err
		}
		if session == nil || session.ProposalID != in.ProposalID {
			return domainagg.Newf(domainagg.CodeNotFound, op, "negotiation session %s not found for proposal %s", in.SessionID, in.ProposalID)
		}
		if session.Status != negotiation.SessionResponded && session.Status != negotiation.SessionResolved {
			return domainagg.Newf(domainagg.CodePreconditionFailed, op, "negotiation in status %q has no response to apply", session.Status)
		}

		// Serializes numbering per proposal; the unique (proposal_id, version_number)
		// index is the backstop where row locks are unavailable.
		prop, err := a.deps.Proposals.LockByID(dbc, in.ProposalID)
		if err != nil {
			return err
		}
		if prop == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "proposal not found: %s", in.ProposalID)
		}

		existing, err := a.deps.Versions.GetByContentHash(dbc, prop.ID, hash)
		if err != nil {
			return err
		}
		if existing != nil {
			out = domainagg.MaterializeResult{
				ProposalID:    prop.ID,
				VersionID:     existing.ID,
				VersionNumber: existing.VersionNumber,
				Price:         existing.Price,
				ContentHash:   existing.ContentHash,
				Created:       false,
				CreatedAt:     existing.CreatedAt,
			}
			return nil
		}

		base, err := a.deps.Versions.GetByID(dbc, in.BaseVersionID)
		if err != nil {
			return err
		}
		if base == nil || base.ProposalID != prop.ID {
			return domainagg.Newf(domainagg.CodeNotFound, op, "base version %s not found for proposal %s", in.BaseVersionID, prop.ID)
		}
		baseItems, err := a.deps.LineItems.ListByVersion(dbc, base.ID)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]bool, len(baseItems))
		for _, it := range baseItems {
			byID[it.ID] = true
		}
		resolved := make(map[uuid.UUID]decimal.Decimal, len(items))
		for _, it := range items {
			if !byID[it.LineItemID] {
				return domainagg.Newf(domainagg.CodeNotFound, op, "line item %s not found in base version %d", it.LineItemID, base.VersionNumber)
			}
			resolved[it.LineItemID] = it.Price
		}

		maxNum, err := a.deps.Versions.GetMaxVersionNumber(dbc, prop.ID)
		if err != nil {
			return err
		}
		next := maxNum + 1
		versionID := uuid.New()

		// Every item is carried forward, touched or not, so the new version is complete on its own.
		nextItems := make([]*types.ProposalLineItem, 0, len(baseItems))
		for _, src := range baseItems {
			row := &types.ProposalLineItem{
				ID:                uuid.New(),
				ProposalID:        prop.ID,
				ProposalVersionID: versionID,
				VersionNumber:     next,
				LineageID:         src.LineageID,
				Name:              src.Name,
				Description:       src.Description,
				Category:          src.Category,
				Quantity:          src.Quantity,
				UnitPrice:         src.UnitPrice,
				Total:             src.Total,
				IsOptional:        src.IsOptional,
				DisplayOrder:      src.DisplayOrder,
				CreatedAt:         at,
			}
			if price, ok := resolved[src.ID]; ok {
				row.Quantity, row.UnitPrice, row.Total = proposals.PriceItem(src.Quantity, price)
			}
			nextItems = append(nextItems, row)
		}

		meta, err := json.Marshal(map[string]any{
			"base_version_id":     base.ID,
			"base_version_number": base.VersionNumber,
			"touched_items":       len(items),
		})
		if err != nil {
			return err
		}
		createdBy := in.CreatedBy
		if createdBy == uuid.Nil {
			createdBy = prop.AdvisorID
		}
		reason := strings.TrimSpace(in.ChangeReason)
		if reason == "" {
			reason = fmt.Sprintf("negotiation response to version %d", base.VersionNumber)
		}
		sessionID := in.SessionID
		version := &types.ProposalVersion{
			ID:            versionID,
			ProposalID:    prop.ID,
			VersionNumber: next,
			Price:         proposals.Total(nextItems, true),
			TimelineDays:  base.TimelineDays,
			ScopeText:     base.ScopeText,
			Terms:         base.Terms,
			CreatedBy:     createdBy,
			ChangeReason:  reason,
			SessionID:     &sessionID,
			ContentHash:   hash,
			Metadata:      datatypes.JSON(meta),
			CreatedAt:     at,
		}
		if _, err := a.deps.Versions.Create(dbc, []*types.ProposalVersion{version}); err != nil {
			return err
		}
		if err := a.deps.LineItems.UpsertBatch(dbc, nextItems); err != nil {
			return err
		}

		out = domainagg.MaterializeResult{
			ProposalID:    prop.ID,
			VersionID:     versionID,
			VersionNumber: next,
			Price:         version.Price,
			ContentHash:   hash,
			Created:       true,
			CreatedAt:     at,
		}
		return nil
	})
	return out, err
}

func (a *versioningAggregate) AdvanceCurrentVersion(ctx context.Context, in domainagg.AdvanceCurrentVersionInput) (domainagg.AdvanceCurrentVersionResult, error) {
	const op = "Proposals.Versioning.AdvanceCurrentVersion"
	var out domainagg.AdvanceCurrentVersionResult
	if in.ProposalID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing proposal_id", nil)
	}
	if in.VersionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing version_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "versioning aggregate repos not configured", nil)
	}
	at := in.At.UTC()
	if in.At.IsZero() {
		at = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, a.Contract(), op, func(dbc dbctx.Context) error {
		prop, err := a.deps.Proposals.LockByID(dbc, in.ProposalID)
		if err != nil {
			return err
		}
		if prop == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "proposal not found: %s", in.ProposalID)
		}
		version, err := a.deps.Versions.GetByID(dbc, in.VersionID)
		if err != nil {
			return err
		}
		if version == nil || version.ProposalID != prop.ID {
			return domainagg.Newf(domainagg.CodeNotFound, op, "version %s not found for proposal %s", in.VersionID, prop.ID)
		}

		out = domainagg.AdvanceCurrentVersionResult{
			ProposalID:           prop.ID,
			CurrentVersionNumber: prop.CurrentVersionNumber,
			Status:               prop.Status,
		}
		if prop.CurrentVersionID != nil {
			out.CurrentVersionID = *prop.CurrentVersionID
		}
		// The pointer never moves backwards.
		if prop.CurrentVersionNumber >= version.VersionNumber {
			return nil
		}

		updates := map[string]any{
			"current_version_id":     version.ID,
			"current_version_number": version.VersionNumber,
			"updated_at":             at,
		}
		status := prop.Status
		if in.Resubmitted && prop.IsNegotiable() {
			status = proposals.ProposalStatusResubmitted
			updates["status"] = status
			updates["submitted_at"] = at
		}
		ok, err := a.deps.Base.CASGuard.UpdateIfBelow(dbc, proposalTable, prop.ID, "current_version_number", version.VersionNumber, updates)
		if err != nil {
			return err
		}
		if !ok {
			// Another writer advanced past us between the read and the guard; that is not an error.
			return nil
		}
		out.CurrentVersionID = version.ID
		out.CurrentVersionNumber = version.VersionNumber
		out.Status = status
		out.Moved = true
		return nil
	})
	return out, err
}
