package decision

import (
	"testing"

	"botkit/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	cases := []struct {
		name    string
		op      types.Comparison
		operand float64
		value   float64
		value2  float64
		want    bool
	}{
		{"greater_than true", types.CmpGreaterThan, 450.25, 450, 0, true},
		{"greater_than equal is false", types.CmpGreaterThan, 450, 450, 0, false},
		{"above aliases greater_than", types.CmpAbove, 451, 450, 0, true},
		{"greater_than_or_equal at bound", types.CmpGreaterThanOrEqual, 450, 450, 0, true},
		{"less_than true", types.CmpLessThan, 449, 450, 0, true},
		{"below aliases less_than", types.CmpBelow, 449, 450, 0, true},
		{"less_than_or_equal at bound", types.CmpLessThanOrEqual, 450, 450, 0, true},
		{"equal_to exact", types.CmpEqualTo, 0.3, 0.3, 0, true},
		{"equal_to sum artifact", types.CmpEqualTo, 0.1 + 0.2, 0.3, 0, false},
		{"not_equal_to", types.CmpNotEqualTo, 1, 2, 0, true},
		{"between inside", types.CmpBetween, 5, 1, 10, true},
		{"between at low bound", types.CmpBetween, 1, 1, 10, true},
		{"between at high bound", types.CmpBetween, 10, 1, 10, true},
		{"between outside", types.CmpBetween, 11, 1, 10, false},
		{"between reversed bounds", types.CmpBetween, 5, 10, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compare(tc.op, tc.operand, tc.value, tc.value2)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompareUnknownOperator(t *testing.T) {
	_, err := Compare(types.Comparison("almost_equal"), 1, 2, 0)
	assert.Error(t, err)
}
