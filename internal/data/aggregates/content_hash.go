package aggregates

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/domain/proposals"
)

// ResponseContentHash fingerprints a session's resolved price set. Notes and input order
// do not contribute, so a retried response with the same prices hashes identically.
func ResponseContentHash(sessionID uuid.UUID, items []negotiation.ResponseItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.LineItemID.String()+"|"+proposals.RoundMoney(it.Price).StringFixed(2))
	}
	sort.Strings(lines)
	return digest("response", sessionID.String(), lines)
}

// initialContentHash fingerprints a submitted version 1.
func initialContentHash(proposalID uuid.UUID, items []*types.ProposalLineItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, strings.Join([]string{
			it.Name,
			it.Quantity.String(),
			it.UnitPrice.StringFixed(2),
			it.Total.StringFixed(2),
		}, "|"))
	}
	sort.Strings(lines)
	return digest("initial", proposalID.String(), lines)
}

func digest(kind, scope string, lines []string) string {
	h := sha256.New()
	h.Write([]byte(kind + ":" + scope + "\n"))
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeResponseItems rounds prices and orders items by line item id.
func normalizeResponseItems(items []negotiation.ResponseItem) []negotiation.ResponseItem {
	out := make([]negotiation.ResponseItem, 0, len(items))
	for _, it := range items {
		out = append(out, negotiation.ResponseItem{
			LineItemID: it.LineItemID,
			Price:      proposals.RoundMoney(it.Price),
			Note:       strings.TrimSpace(it.Note),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LineItemID.String() < out[j].LineItemID.String()
	})
	return out
}
