package scenario

import (
	"counterfact/domain/core"
)

// InterventionType selects how the new treatment assignment is constructed
type InterventionType string

const (
	InterventionPolicy    InterventionType = "policy"
	InterventionDo        InterventionType = "do"
	InterventionIntensity InterventionType = "intensity"
	InterventionSpend     InterventionType = "spend"
)

// Spec is a validated, declarative policy-change description
type Spec struct {
	ID           string       `json:"id" yaml:"id" validate:"required,scenario_id"`
	Label        string       `json:"label,omitempty" yaml:"label,omitempty"`
	Intervention Intervention `json:"intervention" yaml:"intervention"`
	Constraints  *Constraints `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Geography    *Geography   `json:"geography,omitempty" yaml:"geography,omitempty"`
	Network      *Network     `json:"network,omitempty" yaml:"network,omitempty"`
	TimeWindow   TimeWindow   `json:"time_window" yaml:"time_window"`
	ValueMapping ValueMapping `json:"value_mapping" yaml:"value_mapping"`
}

// Intervention carries either a scoring rule with a coverage fraction or a
// direct value, depending on Type.
type Intervention struct {
	Type     InterventionType `json:"type" yaml:"type" validate:"required,oneof=policy do intensity spend"`
	Rule     string           `json:"rule,omitempty" yaml:"rule,omitempty"`
	Coverage *float64         `json:"coverage,omitempty" yaml:"coverage,omitempty" validate:"omitempty,gte=0,lte=1"`
	Value    *float64         `json:"value,omitempty" yaml:"value,omitempty" validate:"omitempty,finite"`
}

// Constraints bound the new policy
type Constraints struct {
	Budget   *BudgetConstraint   `json:"budget,omitempty" yaml:"budget,omitempty"`
	Fairness *FairnessConstraint `json:"fairness,omitempty" yaml:"fairness,omitempty"`
}

// BudgetConstraint caps the total unit cost of treated units
type BudgetConstraint struct {
	Cap            float64 `json:"cap" yaml:"cap" validate:"gt=0,finite"`
	UnitCostColumn string  `json:"unit_cost_column" yaml:"unit_cost_column" validate:"required"`
}

// FairnessConstraint caps the treated-share gap across groups. An unset
// MaxGap uses the default gate threshold; an explicit 0 demands equal shares.
type FairnessConstraint struct {
	GroupColumn string   `json:"group_column" yaml:"group_column" validate:"required"`
	MaxGap      *float64 `json:"max_gap,omitempty" yaml:"max_gap,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Gap returns the configured maximum gap and whether one was given
func (f *FairnessConstraint) Gap() (float64, bool) {
	if f == nil || f.MaxGap == nil {
		return 0, false
	}
	return *f.MaxGap, true
}

// Geography restricts or scales the scenario regionally
type Geography struct {
	Regions    []string `json:"regions,omitempty" yaml:"regions,omitempty" validate:"omitempty,dive,required"`
	Multiplier float64  `json:"multiplier,omitempty" yaml:"multiplier,omitempty" validate:"omitempty,gt=0,finite"`
}

// Network models spillover between treated and untreated units
type Network struct {
	Spillover float64 `json:"spillover" yaml:"spillover" validate:"gte=0,lte=1"`
}

// TimeWindow positions the rollout in time
type TimeWindow struct {
	Start       string `json:"start,omitempty" yaml:"start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	HorizonDays int    `json:"horizon_days" yaml:"horizon_days" validate:"gt=0"`
}

// ValueMapping converts outcome units to money
type ValueMapping struct {
	ValuePerY *float64 `json:"value_per_y" yaml:"value_per_y" validate:"required,finite"`
}

// ScenarioID returns the typed identifier
func (s *Spec) ScenarioID() core.ScenarioID {
	return core.ScenarioID(s.ID)
}

// ValuePerY returns the validated monetary value per outcome unit
func (s *Spec) ValuePerY() float64 {
	if s.ValueMapping.ValuePerY == nil {
		return 0
	}
	return *s.ValueMapping.ValuePerY
}

// Coverage returns the coverage fraction, zero when unset
func (s *Spec) Coverage() float64 {
	if s.Intervention.Coverage == nil {
		return 0
	}
	return *s.Intervention.Coverage
}

// InterventionValue returns the direct intervention value, zero when unset
func (s *Spec) InterventionValue() float64 {
	if s.Intervention.Value == nil {
		return 0
	}
	return *s.Intervention.Value
}

// IsCoverageBased reports whether the new policy treats a top fraction of units
func (s *Spec) IsCoverageBased() bool {
	return s.Intervention.Type == InterventionPolicy || s.Intervention.Type == InterventionIntensity
}

// Budget returns the budget constraint, nil when absent
func (s *Spec) Budget() *BudgetConstraint {
	if s.Constraints == nil {
		return nil
	}
	return s.Constraints.Budget
}

// Fairness returns the fairness constraint, nil when absent
func (s *Spec) Fairness() *FairnessConstraint {
	if s.Constraints == nil {
		return nil
	}
	return s.Constraints.Fairness
}
