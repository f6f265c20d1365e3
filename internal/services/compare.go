package services

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/shopspring/decimal"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

const (
	ItemAdded   = "added"
	ItemRemoved = "removed"
	ItemChanged = "changed"

	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

type ItemDelta struct {
	LineageID uuid.UUID        `json:"lineage_id"`
	Name      string           `json:"name"`
	Change    string           `json:"change"`
	FromTotal *decimal.Decimal `json:"from_total,omitempty"`
	ToTotal   *decimal.Decimal `json:"to_total,omitempty"`
	Delta     decimal.Decimal  `json:"delta"`
}

type DiffLine struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

type VersionComparison struct {
	ProposalID  uuid.UUID       `json:"proposal_id"`
	FromVersion int             `json:"from_version"`
	ToVersion   int             `json:"to_version"`
	PriceDelta  decimal.Decimal `json:"price_delta"`
	Items       []ItemDelta     `json:"items"`
	ScopeDiff   []DiffLine      `json:"scope_diff"`
	TermsDiff   []DiffLine      `json:"terms_diff"`
}

type VersionComparer interface {
	ListVersions(ctx context.Context, actorID, proposalID uuid.UUID) ([]*types.ProposalVersion, error)
	CompareVersions(ctx context.Context, actorID, proposalID uuid.UUID, from, to int) (*VersionComparison, error)
}

type versionComparer struct {
	log      *logger.Logger
	identity IdentityOracle
	versions repos.ProposalVersionRepo
	items    repos.ProposalLineItemRepo
}

func NewVersionComparer(baseLog *logger.Logger, identity IdentityOracle, versions repos.ProposalVersionRepo, items repos.ProposalLineItemRepo) VersionComparer {
	return &versionComparer{
		log:      baseLog.With("service", "VersionComparer"),
		identity: identity,
		versions: versions,
		items:    items,
	}
}

func (c *versionComparer) ListVersions(ctx context.Context, actorID, proposalID uuid.UUID) ([]*types.ProposalVersion, error) {
	if _, err := c.identity.RequireProposalViewer(ctx, actorID, proposalID); err != nil {
		return nil, err
	}
	out, err := c.versions.ListByProposal(dbctx.Context{Ctx: ctx}, proposalID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, "Versions.List", err)
	}
	return out, nil
}

func (c *versionComparer) CompareVersions(ctx context.Context, actorID, proposalID uuid.UUID, from, to int) (*VersionComparison, error) {
	const op = "Versions.Compare"
	if from <= 0 || to <= 0 {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "from and to must be positive version numbers", nil)
	}
	if _, err := c.identity.RequireProposalViewer(ctx, actorID, proposalID); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	load := func(n int) (*types.ProposalVersion, []*types.ProposalLineItem, error) {
		v, err := c.versions.GetByNumber(dbc, proposalID, n)
		if err != nil {
			return nil, nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
		}
		if v == nil {
			return nil, nil, domainagg.Newf(domainagg.CodeNotFound, op, "version %d not found", n)
		}
		items, err := c.items.ListByVersion(dbc, v.ID)
		if err != nil {
			return nil, nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
		}
		return v, items, nil
	}
	fromV, fromItems, err := load(from)
	if err != nil {
		return nil, err
	}
	toV, toItems, err := load(to)
	if err != nil {
		return nil, err
	}

	return &VersionComparison{
		ProposalID:  proposalID,
		FromVersion: fromV.VersionNumber,
		ToVersion:   toV.VersionNumber,
		PriceDelta:  toV.Price.Sub(fromV.Price),
		Items:       diffItems(fromItems, toItems),
		ScopeDiff:   textDiff(fromV.ScopeText, toV.ScopeText),
		TermsDiff:   textDiff(fromV.Terms, toV.Terms),
	}, nil
}

// diffItems pairs items by lineage. Unchanged lineages are omitted.
func diffItems(from, to []*types.ProposalLineItem) []ItemDelta {
	before := make(map[uuid.UUID]*types.ProposalLineItem, len(from))
	for _, it := range from {
		before[it.LineageID] = it
	}
	after := make(map[uuid.UUID]*types.ProposalLineItem, len(to))
	for _, it := range to {
		after[it.LineageID] = it
	}

	out := []ItemDelta{}
	for _, it := range to {
		prev, ok := before[it.LineageID]
		total := it.Total
		if !ok {
			out = append(out, ItemDelta{LineageID: it.LineageID, Name: it.Name, Change: ItemAdded, ToTotal: &total, Delta: total})
			continue
		}
		if prev.Total.Equal(it.Total) {
			continue
		}
		prevTotal := prev.Total
		out = append(out, ItemDelta{
			LineageID: it.LineageID,
			Name:      it.Name,
			Change:    ItemChanged,
			FromTotal: &prevTotal,
			ToTotal:   &total,
			Delta:     total.Sub(prevTotal),
		})
	}
	for _, it := range from {
		if _, ok := after[it.LineageID]; ok {
			continue
		}
		total := it.Total
		out = append(out, ItemDelta{LineageID: it.LineageID, Name: it.Name, Change: ItemRemoved, FromTotal: &total, Delta: total.Neg()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func textDiff(before, after string) []DiffLine {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	lines := []DiffLine{}
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		chunk := strings.Split(d.Text, "\n")
		if len(chunk) > 0 && chunk[len(chunk)-1] == "" {
			chunk = chunk[:len(chunk)-1]
		}
		for _, line := range chunk {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, DiffLine{Type: LineContext, Text: line, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, DiffLine{Type: LineRemoved, Text: line, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, DiffLine{Type: LineAdded, Text: line, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}
