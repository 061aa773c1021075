package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		expr string
		op   Operator
		val  float64
	}{
		{">0", OpGreater, 0},
		{"<5", OpLess, 5},
		{">=1000", OpGreaterEqual, 1000},
		{"≥10", OpGreaterEqual, 10},
		{"<= 0.1", OpLessEqual, 0.1},
		{"≤0.25", OpLessEqual, 0.25},
		{"=1", OpEqual, 1},
		{"==2", OpEqual, 2},
		{"3.5", OpEqual, 3.5},
		{">=-0.05", OpGreaterEqual, -0.05},
	}
	for _, tt := range tests {
		th, err := ParseThreshold(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.op, th.Op, tt.expr)
		assert.Equal(t, tt.val, th.Value, tt.expr)
	}

	for _, bad := range []string{"", ">", "abc", ">=x"} {
		_, err := ParseThreshold(bad)
		assert.Error(t, err, bad)
	}
}

func TestThresholdSatisfied(t *testing.T) {
	assert.True(t, MustThreshold(">=1000").Satisfied(1000))
	assert.False(t, MustThreshold(">=1000").Satisfied(999.9))
	assert.False(t, MustThreshold(">0").Satisfied(0))
	assert.True(t, MustThreshold("<=0.1").Satisfied(0.1))
	assert.True(t, MustThreshold("=1").Satisfied(1))
	assert.False(t, MustThreshold(">=0").Satisfied(nan()))
	assert.True(t, MustThreshold(">=1").LowerBound())
	assert.False(t, MustThreshold("<=1").LowerBound())
}

func TestTallyExcludesNAAndDecisionGates(t *testing.T) {
	r := QualityGatesResult{Gates: []Gate{
		{Name: "a", Category: CategoryIdentification, Status: StatusPass},
		{Name: "b", Category: CategoryPrecision, Status: StatusFail},
		{Name: "c", Category: CategoryRobustness, Status: StatusWarning},
		{Name: "d", Category: CategoryRobustness, Status: StatusNA},
		{Name: "e", Category: CategoryDecision, Status: StatusFail},
	}}
	r.Tally()

	assert.Equal(t, 1, r.PassCount)
	assert.Equal(t, 1, r.FailCount)
	assert.Equal(t, 1, r.WarningCount)
	assert.Equal(t, 1, r.NACount)
	assert.InDelta(t, 1.0/3.0, r.PassRate, 1e-12)

	g, ok := r.Gate("c")
	require.True(t, ok)
	assert.Equal(t, StatusWarning, g.Status)
}

func TestThresholdTextRoundTrip(t *testing.T) {
	th := MustThreshold("≤0.03")
	text, err := th.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "<=0.03", string(text))

	var back Threshold
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, th, back)
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
