package negotiation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AdjustmentType names how an initiator expressed a requested price change.
type AdjustmentType string

const (
	AdjustmentPriceChange        AdjustmentType = "price_change"
	AdjustmentFlatDiscount       AdjustmentType = "flat_discount"
	AdjustmentPercentageDiscount AdjustmentType = "percentage_discount"
)

func (t AdjustmentType) IsValid() bool {
	switch t {
	case AdjustmentPriceChange, AdjustmentFlatDiscount, AdjustmentPercentageDiscount:
		return true
	default:
		return false
	}
}

// ErrInvalidAdjustment marks adjustment inputs that cannot be resolved to a target price.
var ErrInvalidAdjustment = errors.New("invalid adjustment")

var hundred = decimal.NewFromInt(100)

// Adjustment is resolved exactly once, when the session opens, into an absolute target.
// Nothing downstream of ResolveTarget sees which variant produced the price.
type Adjustment interface {
	Type() AdjustmentType
	Value() decimal.Decimal
	Resolve(original decimal.Decimal) (decimal.Decimal, error)
}

// PriceChange replaces the price outright.
type PriceChange struct{ Price decimal.Decimal }

func (a PriceChange) Type() AdjustmentType   { return AdjustmentPriceChange }
func (a PriceChange) Value() decimal.Decimal { return a.Price }
func (a PriceChange) Resolve(decimal.Decimal) (decimal.Decimal, error) {
	if a.Price.IsNegative() {
		return decimal.Zero, invalid("price_change must be >= 0, got %s", a.Price)
	}
	return a.Price.Round(2), nil
}

// FlatDiscount takes a fixed amount off the original price.
type FlatDiscount struct{ Amount decimal.Decimal }

func (a FlatDiscount) Type() AdjustmentType   { return AdjustmentFlatDiscount }
func (a FlatDiscount) Value() decimal.Decimal { return a.Amount }
func (a FlatDiscount) Resolve(original decimal.Decimal) (decimal.Decimal, error) {
	if a.Amount.IsNegative() {
		return decimal.Zero, invalid("flat_discount must be >= 0, got %s", a.Amount)
	}
	if a.Amount.GreaterThan(original) {
		return decimal.Zero, invalid("flat_discount %s exceeds original price %s", a.Amount, original)
	}
	target := original.Sub(a.Amount)
	if target.IsNegative() {
		target = decimal.Zero
	}
	return target.Round(2), nil
}

// PercentageDiscount takes a percentage in [0,100] off the original price.
type PercentageDiscount struct{ Percent decimal.Decimal }

func (a PercentageDiscount) Type() AdjustmentType   { return AdjustmentPercentageDiscount }
func (a PercentageDiscount) Value() decimal.Decimal { return a.Percent }
func (a PercentageDiscount) Resolve(original decimal.Decimal) (decimal.Decimal, error) {
	if a.Percent.IsNegative() || a.Percent.GreaterThan(hundred) {
		return decimal.Zero, invalid("percentage_discount must be within [0,100], got %s", a.Percent)
	}
	factor := hundred.Sub(a.Percent).Div(hundred)
	return original.Mul(factor).Round(2), nil
}

// NewAdjustment builds the variant for a type/value pair.
func NewAdjustment(t AdjustmentType, value decimal.Decimal) (Adjustment, error) {
	switch AdjustmentType(strings.ToLower(strings.TrimSpace(string(t)))) {
	case AdjustmentPriceChange:
		return PriceChange{Price: value}, nil
	case AdjustmentFlatDiscount:
		return FlatDiscount{Amount: value}, nil
	case AdjustmentPercentageDiscount:
		return PercentageDiscount{Percent: value}, nil
	default:
		return nil, invalid("unknown adjustment_type %q", t)
	}
}

// ResolveTarget turns an adjustment and the item's original price into an absolute target price.
func ResolveTarget(t AdjustmentType, value, original decimal.Decimal) (decimal.Decimal, error) {
	if original.IsNegative() {
		return decimal.Zero, invalid("original price must be >= 0, got %s", original)
	}
	adj, err := NewAdjustment(t, value)
	if err != nil {
		return decimal.Zero, err
	}
	return adj.Resolve(original)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAdjustment, fmt.Sprintf(format, args...))
}
