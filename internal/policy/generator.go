package policy

import (
	"fmt"
	"math"
	"sort"

	"counterfact/domain/core"
	"counterfact/domain/dataset"
	"counterfact/domain/scenario"
)

// Assignment is a binary treatment vector aligned to dataset rows
type Assignment struct {
	Vector   []int   `json:"-"`
	Treated  int     `json:"treated"`
	Coverage float64 `json:"coverage"`
	// ScoreColumn is the column the units were ranked by, empty for uniform policies
	ScoreColumn string `json:"score_column,omitempty"`
	// CoverageBased is true when the policy treats a top fraction of ranked units
	CoverageBased bool `json:"coverage_based"`
	// Eligible marks the units the scenario may treat, nil when every unit may
	Eligible []bool `json:"-"`
}

func newAssignment(vec []int) Assignment {
	treated := 0
	for _, a := range vec {
		treated += a
	}
	a := Assignment{Vector: vec, Treated: treated}
	if len(vec) > 0 {
		a.Coverage = float64(treated) / float64(len(vec))
	}
	return a
}

// TopCount is the number of units a coverage fraction selects out of n
func TopCount(n int, coverage float64) int {
	if coverage <= 0 || n == 0 {
		return 0
	}
	if coverage >= 1 {
		return n
	}
	return int(math.Floor(coverage*float64(n) + 1e-9))
}

// RankDescending orders row indices by score, highest first. Ties keep row
// order; NaN scores rank last.
func RankDescending(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := scores[idx[a]], scores[idx[b]]
		if math.IsNaN(sb) {
			return !math.IsNaN(sa)
		}
		if math.IsNaN(sa) {
			return false
		}
		return sa > sb
	})
	return idx
}

// TopCoverage treats the top coverage fraction of units ranked by score
func TopCoverage(scores []float64, coverage float64) []int {
	vec := make([]int, len(scores))
	k := TopCount(len(scores), coverage)
	for _, i := range RankDescending(scores)[:k] {
		vec[i] = 1
	}
	return vec
}

// TopAmong treats the k highest-scoring units among the eligible ones. A nil
// mask makes every unit eligible.
func TopAmong(scores []float64, k int, eligible []bool) []int {
	vec := make([]int, len(scores))
	for _, i := range RankDescending(scores) {
		if k <= 0 {
			break
		}
		if eligible != nil && !eligible[i] {
			continue
		}
		vec[i] = 1
		k--
	}
	return vec
}

// Uniform assigns the same treatment to every unit
func Uniform(n int, treatment int) []int {
	vec := make([]int, n)
	for i := range vec {
		vec[i] = treatment
	}
	return vec
}

// GreedyBudget walks units in score order and treats each one whose unit cost
// still fits in the remaining spend.
func GreedyBudget(scores, unitCosts []float64, spend float64) ([]int, error) {
	if len(scores) != len(unitCosts) {
		return nil, fmt.Errorf("scores and unit costs differ in length: %d vs %d", len(scores), len(unitCosts))
	}
	vec := make([]int, len(scores))
	remaining := spend
	for _, i := range RankDescending(scores) {
		c := unitCosts[i]
		if c < 0 || math.IsNaN(c) {
			return nil, core.NewRowContractError(i, "unit_cost", fmt.Sprintf("unit cost must be >= 0, got %g", c))
		}
		if c <= remaining {
			vec[i] = 1
			remaining -= c
		}
	}
	return vec, nil
}

// PolicyGenerator turns a validated scenario into a treatment assignment
type PolicyGenerator struct{}

// NewPolicyGenerator creates a new policy generator
func NewPolicyGenerator() *PolicyGenerator {
	return &PolicyGenerator{}
}

// Generate builds the new-policy vector for spec over ds.
//
//   - policy: top coverage by the rule column (P(T=1) when no rule is given)
//   - intensity: coverage, or the logged treated share scaled by value
//   - do: every unit set to value
//   - spend: greedy by score under value total spend and the budget unit cost
//
// Geography regions restrict treatment to units whose group is listed.
func (pg *PolicyGenerator) Generate(spec *scenario.Spec, ds *dataset.Dataset) (Assignment, error) {
	n := ds.Len()
	var (
		vec []int
		err error
	)

	scoreColumn, scores, err := pg.scores(spec, ds)
	if err != nil {
		return Assignment{}, err
	}

	coverageBased := false
	switch spec.Intervention.Type {
	case scenario.InterventionPolicy:
		vec = TopCoverage(scores, spec.Coverage())
		coverageBased = true
	case scenario.InterventionIntensity:
		vec = TopCoverage(scores, pg.intensityCoverage(spec, ds))
		coverageBased = true
	case scenario.InterventionDo:
		vec = Uniform(n, int(spec.InterventionValue()))
		scoreColumn = ""
	case scenario.InterventionSpend:
		budget := spec.Budget()
		if budget == nil {
			return Assignment{}, core.NewDataContractError("unit_cost", "spend interventions need a budget unit cost column")
		}
		costs, cerr := ds.NumericColumn(budget.UnitCostColumn)
		if cerr != nil {
			return Assignment{}, cerr
		}
		vec, err = GreedyBudget(scores, costs, spec.InterventionValue())
		if err != nil {
			return Assignment{}, err
		}
	default:
		return Assignment{}, fmt.Errorf("%w: unsupported intervention type %q", core.ErrSpecValidation, spec.Intervention.Type)
	}

	eligible, err := Eligible(spec, ds)
	if err != nil {
		return Assignment{}, err
	}
	for i, ok := range eligible {
		if !ok {
			vec[i] = 0
		}
	}

	a := newAssignment(vec)
	a.Eligible = eligible
	a.ScoreColumn = scoreColumn
	a.CoverageBased = coverageBased
	return a, nil
}

// intensityCoverage resolves the coverage of an intensity intervention
func (pg *PolicyGenerator) intensityCoverage(spec *scenario.Spec, ds *dataset.Dataset) float64 {
	if spec.Intervention.Coverage != nil {
		return spec.Coverage()
	}
	treated, _ := ds.ArmCounts()
	share := 0.0
	if ds.Len() > 0 {
		share = float64(treated) / float64(ds.Len())
	}
	return math.Max(0, math.Min(1, share*spec.InterventionValue()))
}

func (pg *PolicyGenerator) scores(spec *scenario.Spec, ds *dataset.Dataset) (string, []float64, error) {
	if spec.Intervention.Rule == "" {
		return dataset.RolePropensity + "_treated", ds.TreatmentProbabilities(), nil
	}
	scores, err := ds.NumericColumn(spec.Intervention.Rule)
	if err != nil {
		return "", nil, err
	}
	return spec.Intervention.Rule, scores, nil
}

// Eligible returns the units a scenario's geography allows to be treated,
// nil when no regions are listed.
func Eligible(spec *scenario.Spec, ds *dataset.Dataset) ([]bool, error) {
	if spec.Geography == nil || len(spec.Geography.Regions) == 0 {
		return nil, nil
	}
	groups, err := ds.Groups("")
	if err != nil {
		return nil, core.NewDataContractError(dataset.RoleGroup, "geography regions need a mapped group column")
	}
	allowed := make(map[string]bool, len(spec.Geography.Regions))
	for _, r := range spec.Geography.Regions {
		allowed[r] = true
	}
	eligible := make([]bool, len(groups))
	for i, g := range groups {
		eligible[i] = allowed[g]
	}
	return eligible, nil
}
