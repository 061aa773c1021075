package ports

import (
	"context"

	"counterfact/domain/core"
	"counterfact/domain/run"
	"counterfact/domain/verdict"
)

// EvaluationRepository persists evaluation reports outside the core
type EvaluationRepository interface {
	Save(ctx context.Context, report *run.Report) error
	GetByID(ctx context.Context, id core.EvaluationID) (*run.Report, error)
	List(ctx context.Context, filter EvaluationFilter) ([]EvaluationSummary, error)
}

// EvaluationFilter narrows List results. Zero values match everything.
type EvaluationFilter struct {
	ScenarioID core.ScenarioID
	Decision   verdict.Decision
	Limit      int
	Offset     int
}

// EvaluationSummary is the list view of a stored report
type EvaluationSummary struct {
	ID          core.EvaluationID `json:"id"`
	ScenarioID  core.ScenarioID   `json:"scenario_id"`
	Decision    verdict.Decision  `json:"decision"`
	Grade       verdict.Grade     `json:"grade"`
	DeltaProfit float64           `json:"delta_profit"`
	CreatedAt   core.Timestamp    `json:"created_at"`
}

// Summarize builds the list view of a report
func Summarize(r *run.Report) EvaluationSummary {
	return EvaluationSummary{
		ID:          r.ID(),
		ScenarioID:  r.Manifest.ScenarioID,
		Decision:    r.Decision(),
		Grade:       r.CAS.Grade,
		DeltaProfit: r.Primary().Delta(),
		CreatedAt:   r.Manifest.CreatedAt,
	}
}
