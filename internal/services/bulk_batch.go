package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/domain/proposals"
	"github.com/yungbote/quotebridge-backend/internal/observability"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

const defaultFanoutConcurrency = 4

type BulkNegotiationRequest struct {
	ProjectID      uuid.UUID       `json:"project_id"`
	ReductionType  string          `json:"reduction_type"`
	ReductionValue decimal.Decimal `json:"reduction_value"`
	Message        string          `json:"message,omitempty"`
	ProposalIDs    []uuid.UUID     `json:"proposal_ids"`
}

type BulkMemberResult struct {
	ProposalID uuid.UUID  `json:"proposal_id"`
	SessionID  *uuid.UUID `json:"session_id"`
	Error      string     `json:"error,omitempty"`
}

type BulkNegotiationResult struct {
	BatchID     uuid.UUID          `json:"batch_id"`
	PerProposal []BulkMemberResult `json:"per_proposal"`
}

type BulkHistory struct {
	Batches            []*types.BulkNegotiationBatch `json:"batches"`
	ProposalsInBatches []uuid.UUID                   `json:"proposals_in_batches"`
	NewProposals       []uuid.UUID                   `json:"new_proposals"`
}

// BulkBatchCoordinator fans one reduction request out to many proposals.
type BulkBatchCoordinator interface {
	CreateBatch(ctx context.Context, actorID uuid.UUID, req BulkNegotiationRequest) (*BulkNegotiationResult, error)
	ListHistory(ctx context.Context, actorID, projectID uuid.UUID) (*BulkHistory, error)
}

type BulkBatchCoordinatorDeps struct {
	Identity     IdentityOracle
	Negotiations NegotiationService
	Batches      repos.BulkBatchRepo
	Members      repos.BulkBatchMemberRepo
	Proposals    repos.ProposalRepo
	Versions     repos.ProposalVersionRepo
	Concurrency  int
}

type bulkBatchCoordinator struct {
	log  *logger.Logger
	deps BulkBatchCoordinatorDeps
	now  func() time.Time
}

func NewBulkBatchCoordinator(baseLog *logger.Logger, deps BulkBatchCoordinatorDeps) BulkBatchCoordinator {
	if deps.Concurrency <= 0 {
		deps.Concurrency = defaultFanoutConcurrency
	}
	return &bulkBatchCoordinator{
		log:  baseLog.With("service", "BulkBatchCoordinator"),
		deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (c *bulkBatchCoordinator) CreateBatch(ctx context.Context, actorID uuid.UUID, req BulkNegotiationRequest) (*BulkNegotiationResult, error) {
	const op = "Bulk.CreateBatch"
	if _, err := c.deps.Identity.RequireProjectOwner(ctx, actorID, req.ProjectID); err != nil {
		return nil, err
	}

	rt := negotiation.ReductionType(strings.ToLower(strings.TrimSpace(req.ReductionType)))
	if !rt.IsValid() {
		return nil, domainagg.Newf(domainagg.CodeValidation, op, "invalid reduction_type %q", req.ReductionType)
	}
	if req.ReductionValue.IsNegative() {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "reduction_value must be >= 0", nil)
	}
	if rt == negotiation.ReductionPercent && req.ReductionValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "percent reduction must be within [0, 100]", nil)
	}
	ids := dedupeIDs(req.ProposalIDs)
	if len(ids) == 0 {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "proposal_ids is required", nil)
	}

	dbc := dbctx.Context{Ctx: ctx}
	batch := &types.BulkNegotiationBatch{
		ID:             uuid.New(),
		ProjectID:      req.ProjectID,
		InitiatorID:    actorID,
		ReductionType:  rt,
		ReductionValue: req.ReductionValue,
		Message:        strings.TrimSpace(req.Message),
		CreatedAt:      c.now(),
	}
	if _, err := c.deps.Batches.Create(dbc, []*types.BulkNegotiationBatch{batch}); err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}

	props, err := c.deps.Proposals.GetByIDs(dbc, ids)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	byID := make(map[uuid.UUID]*types.Proposal, len(props))
	for _, p := range props {
		if p != nil {
			byID[p.ID] = p
		}
	}

	results := make([]BulkMemberResult, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.deps.Concurrency)
	for i, pid := range ids {
		i, pid := i, pid
		g.Go(func() error {
			res := BulkMemberResult{ProposalID: pid}
			// A successful open records its member row in the session transaction.
			sessionID, err := c.openOne(gctx, actorID, batch, byID[pid])
			if err != nil {
				res.Error = err.Error()
				c.recordFailedMember(gctx, batch, res)
			} else {
				res.SessionID = &sessionID
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			// Per-proposal failures never abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	opened := 0
	for _, r := range results {
		if r.SessionID != nil {
			opened++
			observability.Current().IncBatchMember("opened")
		} else {
			observability.Current().IncBatchMember("skipped")
		}
	}

	c.log.Info("bulk negotiation batch created",
		"batch_id", batch.ID,
		"project_id", req.ProjectID,
		"reduction_type", rt,
		"proposals", len(ids),
		"opened", opened,
	)
	return &BulkNegotiationResult{BatchID: batch.ID, PerProposal: results}, nil
}

func (c *bulkBatchCoordinator) recordFailedMember(ctx context.Context, batch *types.BulkNegotiationBatch, res BulkMemberResult) {
	err := c.deps.Members.CreateIgnoreDuplicates(dbctx.Context{Ctx: ctx}, []*types.BulkNegotiationMember{{
		ID:         uuid.New(),
		BatchID:    batch.ID,
		ProposalID: res.ProposalID,
		Error:      res.Error,
		CreatedAt:  batch.CreatedAt,
	}})
	if err != nil {
		c.log.Warn("record bulk member failure", "batch_id", batch.ID, "proposal_id", res.ProposalID, "error", err)
	}
}

// openOne translates the batch reduction into a session-level target for one proposal.
func (c *bulkBatchCoordinator) openOne(ctx context.Context, actorID uuid.UUID, batch *types.BulkNegotiationBatch, prop *types.Proposal) (uuid.UUID, error) {
	const op = "Bulk.OpenMember"
	if prop == nil || prop.ProjectID != batch.ProjectID {
		return uuid.Nil, domainagg.NewError(domainagg.CodeNotFound, op, "proposal not found in project", nil)
	}
	if prop.CurrentVersionID == nil {
		return uuid.Nil, domainagg.NewError(domainagg.CodePreconditionFailed, op, "proposal has no current version", nil)
	}

	req := NegotiationRequest{
		ProjectID:           batch.ProjectID,
		ProposalID:          prop.ID,
		NegotiatedVersionID: *prop.CurrentVersionID,
		BulkMessage:         batch.Message,
		BatchID:             &batch.ID,
	}
	switch batch.ReductionType {
	case negotiation.ReductionPercent:
		pct := batch.ReductionValue
		req.TargetReductionPercent = &pct
	case negotiation.ReductionFixed:
		ver, err := c.deps.Versions.GetByID(dbctx.Context{Ctx: ctx}, *prop.CurrentVersionID)
		if err != nil {
			return uuid.Nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
		}
		if ver == nil {
			return uuid.Nil, domainagg.NewError(domainagg.CodeNotFound, op, "current version not found", nil)
		}
		target := proposals.RoundMoney(ver.Price.Sub(batch.ReductionValue))
		if target.IsNegative() {
			return uuid.Nil, domainagg.Newf(domainagg.CodeValidation, op, "fixed reduction %s exceeds proposal price %s", batch.ReductionValue, ver.Price)
		}
		req.TargetTotal = &target
	}

	created, err := c.deps.Negotiations.Open(ctx, actorID, req)
	if err != nil {
		c.log.Warn("bulk member open failed", "batch_id", batch.ID, "proposal_id", prop.ID, "error", err)
		return uuid.Nil, err
	}
	return created.SessionID, nil
}

func (c *bulkBatchCoordinator) ListHistory(ctx context.Context, actorID, projectID uuid.UUID) (*BulkHistory, error) {
	const op = "Bulk.ListHistory"
	if _, err := c.deps.Identity.RequireProjectOwner(ctx, actorID, projectID); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}

	batches, err := c.deps.Batches.ListByProject(dbc, projectID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	batchIDs := make([]uuid.UUID, 0, len(batches))
	for _, b := range batches {
		batchIDs = append(batchIDs, b.ID)
	}
	members, err := c.deps.Members.ListByBatchIDs(dbc, batchIDs)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	inBatch := map[uuid.UUID]bool{}
	for _, m := range members {
		inBatch[m.ProposalID] = true
	}

	eligible, err := c.deps.Proposals.ListByProject(dbc, projectID, []string{
		proposals.ProposalStatusSubmitted,
		proposals.ProposalStatusResubmitted,
	})
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	out := &BulkHistory{
		Batches:            batches,
		ProposalsInBatches: make([]uuid.UUID, 0, len(inBatch)),
		NewProposals:       []uuid.UUID{},
	}
	for id := range inBatch {
		out.ProposalsInBatches = append(out.ProposalsInBatches, id)
	}
	sort.Slice(out.ProposalsInBatches, func(i, j int) bool {
		return out.ProposalsInBatches[i].String() < out.ProposalsInBatches[j].String()
	})
	out.NewProposals = newSinceLatestBatch(eligible, batches, inBatch)
	return out, nil
}

// newSinceLatestBatch keeps proposals never included in any batch. Once a batch exists, they
// must also have been submitted strictly after the most recent one.
func newSinceLatestBatch(eligible []*types.Proposal, batches []*types.BulkNegotiationBatch, inBatch map[uuid.UUID]bool) []uuid.UUID {
	var latest time.Time
	for _, b := range batches {
		if b.CreatedAt.After(latest) {
			latest = b.CreatedAt
		}
	}
	out := []uuid.UUID{}
	for _, p := range eligible {
		if p == nil || inBatch[p.ID] {
			continue
		}
		if len(batches) > 0 && !p.SubmittedAt.After(latest) {
			continue
		}
		out = append(out, p.ID)
	}
	return out
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
