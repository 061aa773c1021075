package decision

import (
	"fmt"
	"strings"
	"testing"

	"counterfact/domain/verdict"
	"counterfact/internal/referee"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatesResult builds a result with pass statistical gates passing, fail
// failing, and the decision gates as given.
func gatesResult(pass, fail int, deltaProfit float64, decisionStatus map[string]verdict.Status) verdict.QualityGatesResult {
	var gates []verdict.Gate
	for i := 0; i < pass; i++ {
		gates = append(gates, verdict.Gate{Name: fmt.Sprintf("Pass_%d", i), Category: verdict.CategoryIdentification, Status: verdict.StatusPass})
	}
	for i := 0; i < fail; i++ {
		gates = append(gates, verdict.Gate{Name: fmt.Sprintf("Fail_%d", i), Category: verdict.CategoryRobustness, Status: verdict.StatusFail})
	}
	profitStatus := verdict.StatusPass
	if deltaProfit <= 0 {
		profitStatus = verdict.StatusFail
	}
	gates = append(gates, verdict.Gate{Name: referee.GateDeltaProfit, Category: verdict.CategoryDecision, Scenario: deltaProfit, Status: profitStatus})
	for _, name := range []string{referee.GateFairnessGap, referee.GateBudgetUtilization} {
		status := verdict.StatusNA
		if s, ok := decisionStatus[name]; ok {
			status = s
		}
		gates = append(gates, verdict.Gate{Name: name, Category: verdict.CategoryDecision, Status: status})
	}
	res := verdict.QualityGatesResult{Gates: gates, DataQuality: verdict.DataQualityOK}
	res.Tally()
	return res
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultEngineConfig(), nil)
	require.NoError(t, err)
	return e
}

func TestNegativeProfitAlwaysHolds(t *testing.T) {
	e := newEngine(t)
	res := gatesResult(9, 0, -5, nil)
	require.Equal(t, 1.0, res.PassRate)

	d, rationale := e.Decide(res)
	assert.Equal(t, verdict.DecisionHold, d)
	require.NotEmpty(t, rationale)
	assert.Contains(t, rationale[len(rationale)-1], "no business value")

	d, _ = e.Decide(gatesResult(9, 0, 0, nil))
	assert.Equal(t, verdict.DecisionHold, d)
}

func TestMissingProfitGateHolds(t *testing.T) {
	d, rationale := newEngine(t).Decide(verdict.QualityGatesResult{})
	assert.Equal(t, verdict.DecisionHold, d)
	assert.Equal(t, []string{"no business value"}, rationale)
}

func TestConstraintViolationHolds(t *testing.T) {
	res := gatesResult(9, 0, 5, map[string]verdict.Status{
		referee.GateFairnessGap:       verdict.StatusFail,
		referee.GateBudgetUtilization: verdict.StatusFail,
	})
	d, rationale := newEngine(t).Decide(res)
	assert.Equal(t, verdict.DecisionHold, d)
	assert.Contains(t, rationale[0], referee.GateFairnessGap)
	assert.Contains(t, rationale[0], referee.GateBudgetUtilization)
}

func TestPassRateBands(t *testing.T) {
	tests := []struct {
		name string
		pass int
		fail int
		want verdict.Decision
	}{
		{"all pass", 9, 0, verdict.DecisionGo},
		{"exactly 0.70 is GO", 7, 3, verdict.DecisionGo},
		{"just under 0.70", 13, 6, verdict.DecisionCanary},
		{"exactly 0.50 is CANARY", 5, 5, verdict.DecisionCanary},
		{"below 0.50", 2, 7, verdict.DecisionHold},
	}
	e := newEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := e.Decide(gatesResult(tt.pass, tt.fail, 5, map[string]verdict.Status{referee.GateBudgetUtilization: verdict.StatusPass}))
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestHoldListsAtMostFiveFailures(t *testing.T) {
	_, rationale := newEngine(t).Decide(gatesResult(1, 8, 5, nil))
	last := rationale[len(rationale)-1]
	require.True(t, strings.HasPrefix(last, "failing gates: "))
	assert.Len(t, strings.Split(strings.TrimPrefix(last, "failing gates: "), ", "), 5)
}

func TestAllNAHolds(t *testing.T) {
	res := gatesResult(0, 0, 5, nil)
	d, rationale := newEngine(t).Decide(res)
	assert.Equal(t, verdict.DecisionHold, d)
	assert.Equal(t, "no applicable gates", rationale[len(rationale)-1])
}

func TestBlockedDataQualityIsReportedButDoesNotDecide(t *testing.T) {
	res := gatesResult(9, 0, 5, nil)
	res.DataQuality = verdict.DataQualityBlocked
	res.BlockingGates = []string{referee.GateESS}
	d, rationale := newEngine(t).Decide(res)
	assert.Equal(t, verdict.DecisionGo, d)
	assert.Equal(t, "data quality blocked by ESS", rationale[0])
}

func TestApplyWritesDecision(t *testing.T) {
	res := gatesResult(6, 4, 5, nil)
	newEngine(t).Apply(&res)
	assert.Equal(t, verdict.DecisionCanary, res.Decision)
	assert.NotEmpty(t, res.Rationale)
}

func TestNewEngineValidatesCutPoints(t *testing.T) {
	_, err := NewEngine(EngineConfig{GoPassRate: 0.4, CanaryPassRate: 0.6}, nil)
	assert.Error(t, err)
	_, err = NewEngine(EngineConfig{GoPassRate: 1.2, CanaryPassRate: 0.6}, nil)
	assert.Error(t, err)
}
