package decision

import (
	"fmt"
	"strings"

	"counterfact/domain/verdict"
	"counterfact/internal"
	"counterfact/internal/referee"
)

// passRateEpsilon keeps boundary pass rates such as 7/10 inclusive
const passRateEpsilon = 1e-9

// EngineConfig holds the pass-rate cut points
type EngineConfig struct {
	GoPassRate     float64
	CanaryPassRate float64
	// MaxListedFailures caps the failing gates named in a HOLD rationale
	MaxListedFailures int
}

// DefaultEngineConfig returns GO at 0.70 and CANARY at 0.50
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		GoPassRate:        0.70,
		CanaryPassRate:    0.50,
		MaxListedFailures: 5,
	}
}

// Engine maps a gate battery result to GO, CANARY or HOLD. It keeps no state
// between calls.
type Engine struct {
	cfg EngineConfig
	log *internal.Logger
}

// NewEngine validates cfg and builds an engine
func NewEngine(cfg EngineConfig, logger *internal.Logger) (*Engine, error) {
	if cfg.CanaryPassRate < 0 || cfg.GoPassRate > 1 || cfg.CanaryPassRate > cfg.GoPassRate {
		return nil, fmt.Errorf("pass-rate cut points must satisfy 0 <= canary (%g) <= go (%g) <= 1", cfg.CanaryPassRate, cfg.GoPassRate)
	}
	if cfg.MaxListedFailures <= 0 {
		cfg.MaxListedFailures = DefaultEngineConfig().MaxListedFailures
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Engine{cfg: cfg, log: logger.With("decision")}, nil
}

// Decide is total: every input yields exactly one decision and a rationale.
// Profit and hard constraints are checked before the statistical pass rate.
func (e *Engine) Decide(res verdict.QualityGatesResult) (verdict.Decision, []string) {
	res.Tally()
	var rationale []string
	if res.DataQuality == verdict.DataQualityBlocked {
		rationale = append(rationale, fmt.Sprintf("data quality blocked by %s", strings.Join(res.BlockingGates, ", ")))
	}

	profit, ok := res.Gate(referee.GateDeltaProfit)
	if !ok || profit.Status != verdict.StatusPass {
		reason := "no business value"
		if ok {
			reason = fmt.Sprintf("no business value: delta profit %.4g (%s)", profit.Scenario, profit.Reason)
		}
		return verdict.DecisionHold, append(rationale, reason)
	}

	var violated []string
	for _, g := range res.Gates {
		if g.Category == verdict.CategoryDecision && g.Name != referee.GateDeltaProfit && g.Status == verdict.StatusFail {
			violated = append(violated, g.Name)
		}
	}
	if len(violated) > 0 {
		return verdict.DecisionHold, append(rationale, fmt.Sprintf("constraint violated: %s", strings.Join(violated, ", ")))
	}

	rate := res.PassRate
	summary := fmt.Sprintf("pass rate %.2f (%d pass, %d fail, %d warning, %d NA)", rate, res.PassCount, res.FailCount, res.WarningCount, res.NACount)
	switch {
	case rate+passRateEpsilon >= e.cfg.GoPassRate:
		return verdict.DecisionGo, append(rationale, summary)
	case rate+passRateEpsilon >= e.cfg.CanaryPassRate:
		return verdict.DecisionCanary, append(rationale, summary, "gradual rollout recommended")
	}

	rationale = append(rationale, summary)
	if failing := e.failingGates(res); len(failing) > 0 {
		rationale = append(rationale, fmt.Sprintf("failing gates: %s", strings.Join(failing, ", ")))
	} else {
		rationale = append(rationale, "no applicable gates")
	}
	return verdict.DecisionHold, rationale
}

// Apply writes the decision and rationale into res
func (e *Engine) Apply(res *verdict.QualityGatesResult) {
	res.Tally()
	res.Decision, res.Rationale = e.Decide(*res)
	e.log.Info("decision %s: %s", res.Decision, strings.Join(res.Rationale, "; "))
}

func (e *Engine) failingGates(res verdict.QualityGatesResult) []string {
	var out []string
	for _, g := range res.Gates {
		if g.Category == verdict.CategoryDecision {
			continue
		}
		if g.Status == verdict.StatusFail || g.Status == verdict.StatusWarning {
			out = append(out, g.Name)
		}
		if len(out) == e.cfg.MaxListedFailures {
			break
		}
	}
	return out
}
