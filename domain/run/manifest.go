package run

import (
	"counterfact/domain/core"
	"counterfact/domain/evaluation"
	"counterfact/domain/scenario"
	"counterfact/domain/verdict"
)

// Manifest identifies one evaluation run
type Manifest struct {
	EvaluationID core.EvaluationID `json:"evaluation_id"`
	ScenarioID   core.ScenarioID   `json:"scenario_id"`
	Rows         int               `json:"rows"`
	Fingerprint  Fingerprint       `json:"fingerprint"`
	CreatedAt    core.Timestamp    `json:"created_at"`
}

// NewManifest stamps a fresh evaluation ID and creation time
func NewManifest(scenarioID core.ScenarioID, rows int, fp Fingerprint) Manifest {
	return Manifest{
		EvaluationID: core.NewEvaluationID(),
		ScenarioID:   scenarioID,
		Rows:         rows,
		Fingerprint:  fp,
		CreatedAt:    core.Now(),
	}
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.EvaluationID).IsEmpty() {
		return core.NewDataContractError("evaluation_id", "cannot be empty")
	}
	if core.ID(m.ScenarioID).IsEmpty() {
		return core.NewDataContractError("scenario_id", "cannot be empty")
	}
	if m.Fingerprint.Fingerprint.IsEmpty() {
		return core.NewDataContractError("fingerprint", "cannot be empty")
	}
	return nil
}

// AssignmentSummary describes the new-policy vector without carrying it
type AssignmentSummary struct {
	Treated       int     `json:"treated"`
	Coverage      float64 `json:"coverage"`
	ScoreColumn   string  `json:"score_column,omitempty"`
	CoverageBased bool    `json:"coverage_based"`
}

// EstimatePair is one estimator's baseline and scenario results
type EstimatePair struct {
	Baseline evaluation.Result `json:"baseline"`
	Scenario evaluation.Result `json:"scenario"`
}

// Delta is scenario value minus baseline value
func (p EstimatePair) Delta() float64 {
	return p.Scenario.Value - p.Baseline.Value
}

// Report is the complete outcome of evaluating one scenario
type Report struct {
	Manifest      Manifest                   `json:"manifest"`
	Spec          scenario.Spec              `json:"spec"`
	Assignment    AssignmentSummary          `json:"assignment"`
	PrimaryMethod string                     `json:"primary_method"`
	OPE           map[string]EstimatePair    `json:"ope"`
	GComp         *EstimatePair              `json:"gcomp,omitempty"`
	Comparison    *evaluation.Comparison     `json:"comparison,omitempty"`
	Gates         verdict.QualityGatesResult `json:"gates"`
	CAS           verdict.CASResult          `json:"cas"`
	DurationMs    int64                      `json:"duration_ms"`
}

// ID returns the evaluation ID
func (r *Report) ID() core.EvaluationID {
	return r.Manifest.EvaluationID
}

// Primary returns the primary OPE estimate pair
func (r *Report) Primary() EstimatePair {
	return r.OPE[r.PrimaryMethod]
}

// Decision returns the gate decision
func (r *Report) Decision() verdict.Decision {
	return r.Gates.Decision
}
