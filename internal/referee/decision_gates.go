package referee

import (
	"fmt"
	"math"
)

func (b *Battery) deltaProfitGate(in *Inputs) measurement {
	if in.Scenario.Degenerate || in.Baseline.Degenerate {
		return failClosed("scenario or baseline estimate is degenerate")
	}
	m := measured(in.Baseline.Value, in.Scenario.Value-in.Baseline.Value)
	m.reason = fmt.Sprintf("scenario=%.4f baseline=%.4f", in.Scenario.Value, in.Baseline.Value)
	return m
}

// TreatedShareGap is the max minus min treated share across groups
func TreatedShareGap(groups []string, assign []int) float64 {
	treated := map[string]float64{}
	total := map[string]float64{}
	for i, g := range groups {
		total[g]++
		treated[g] += float64(assign[i])
	}
	if len(total) == 0 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for g, n := range total {
		share := treated[g] / n
		lo = math.Min(lo, share)
		hi = math.Max(hi, share)
	}
	return hi - lo
}

func (b *Battery) fairnessGate(in *Inputs) measurement {
	if in.Spec == nil || in.Spec.Fairness() == nil {
		return notApplicable("no fairness constraint")
	}
	groups, err := in.Dataset.Groups(in.Spec.Fairness().GroupColumn)
	if err != nil {
		return failClosed(err.Error())
	}
	if len(in.Assignment) != len(groups) {
		return failClosed("assignment is not aligned to the dataset")
	}
	return measured(TreatedShareGap(groups, in.Dataset.Treatments()), TreatedShareGap(groups, in.Assignment))
}

// BudgetUtilization is Σ unit cost of treated units over the cap
func BudgetUtilization(unitCosts []float64, assign []int, cap float64) float64 {
	var spend float64
	for i, a := range assign {
		if a == 1 {
			spend += unitCosts[i]
		}
	}
	return safeRatio(spend, cap)
}

func (b *Battery) budgetGate(in *Inputs) measurement {
	if in.Spec == nil || in.Spec.Budget() == nil {
		return notApplicable("no budget constraint")
	}
	budget := in.Spec.Budget()
	costs, err := in.Dataset.NumericColumn(budget.UnitCostColumn)
	if err != nil {
		return failClosed(err.Error())
	}
	if len(in.Assignment) != len(costs) {
		return failClosed("assignment is not aligned to the dataset")
	}
	return measured(
		BudgetUtilization(costs, in.Dataset.Treatments(), budget.Cap),
		BudgetUtilization(costs, in.Assignment, budget.Cap),
	)
}
