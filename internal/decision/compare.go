package decision

import (
	"fmt"

	"botkit/internal/types"

	"github.com/shopspring/decimal"
)

// Compare applies op between the resolved operand and the configured
// value(s). Between is inclusive of both bounds, with the bounds normalized
// so their order does not matter. Decimal arithmetic avoids the float
// tolerance games the comparisons would otherwise need.
func Compare(op types.Comparison, operand, value, value2 float64) (bool, error) {
	v := decimal.NewFromFloat(operand)
	target := decimal.NewFromFloat(value)
	switch op {
	case types.CmpGreaterThan, types.CmpAbove:
		return v.GreaterThan(target), nil
	case types.CmpGreaterThanOrEqual:
		return v.GreaterThanOrEqual(target), nil
	case types.CmpLessThan, types.CmpBelow:
		return v.LessThan(target), nil
	case types.CmpLessThanOrEqual:
		return v.LessThanOrEqual(target), nil
	case types.CmpEqualTo:
		return v.Equal(target), nil
	case types.CmpNotEqualTo:
		return !v.Equal(target), nil
	case types.CmpBetween:
		lo := target
		hi := decimal.NewFromFloat(value2)
		if lo.GreaterThan(hi) {
			lo, hi = hi, lo
		}
		return v.GreaterThanOrEqual(lo) && v.LessThanOrEqual(hi), nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", op)
	}
}
