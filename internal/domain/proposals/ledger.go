package proposals

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCategory buckets items that carry no category.
const DefaultCategory = "general"

// RoundMoney rounds to currency precision, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Total sums stored item totals. Optional items count only when includeOptional is set.
// Addition is exact, so the result does not depend on item order.
func Total(items []*ProposalLineItem, includeOptional bool) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if it == nil {
			continue
		}
		if it.IsOptional && !includeOptional {
			continue
		}
		sum = sum.Add(it.Total)
	}
	return RoundMoney(sum)
}

// GroupByCategory buckets items by category, preserving input order within a bucket.
func GroupByCategory(items []*ProposalLineItem) map[string][]*ProposalLineItem {
	out := map[string][]*ProposalLineItem{}
	for _, it := range items {
		if it == nil {
			continue
		}
		cat := strings.TrimSpace(it.Category)
		if cat == "" {
			cat = DefaultCategory
		}
		out[cat] = append(out[cat], it)
	}
	return out
}

// SortByDisplayOrder orders items by display_order, then name for a stable tie-break.
func SortByDisplayOrder(items []*ProposalLineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].DisplayOrder != items[j].DisplayOrder {
			return items[i].DisplayOrder < items[j].DisplayOrder
		}
		return items[i].Name < items[j].Name
	})
}

// UnitPricePlaces is the stored precision of unit_price.
const UnitPricePlaces = 4

// PriceItem sets unit price and total for an item whose line total becomes price.
// Quantity is kept and total is exactly price. The unit price stays at cent precision
// when that reproduces the total, otherwise it is carried to UnitPricePlaces.
func PriceItem(quantity, price decimal.Decimal) (qty, unit, total decimal.Decimal) {
	total = RoundMoney(price)
	if quantity.LessThanOrEqual(decimal.Zero) {
		return decimal.NewFromInt(1), total, total
	}
	unit = RoundMoney(total.Div(quantity))
	if RoundMoney(quantity.Mul(unit)).Equal(total) {
		return quantity, unit, total
	}
	return quantity, total.Div(quantity).Round(UnitPricePlaces), total
}
