package memory

import (
	"context"
	"sort"
	"sync"

	"counterfact/domain/core"
	"counterfact/domain/run"
	"counterfact/ports"
)

// EvaluationRepository keeps reports in process memory. The server uses it
// when no database is configured; nothing survives a restart.
type EvaluationRepository struct {
	mu      sync.RWMutex
	reports map[core.EvaluationID]*run.Report
	order   []core.EvaluationID
}

// NewEvaluationRepository creates an empty repository
func NewEvaluationRepository() *EvaluationRepository {
	return &EvaluationRepository{
		reports: make(map[core.EvaluationID]*run.Report),
	}
}

func (r *EvaluationRepository) Save(ctx context.Context, report *run.Report) error {
	if err := report.Manifest.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := report.ID()
	if _, exists := r.reports[id]; !exists {
		r.order = append(r.order, id)
	}
	stored := *report
	r.reports[id] = &stored
	return nil
}

func (r *EvaluationRepository) GetByID(ctx context.Context, id core.EvaluationID) (*run.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.reports[id]
	if !ok {
		return nil, core.NewNotFoundError("evaluation", id.String())
	}
	out := *report
	return &out, nil
}

// List returns summaries newest first
func (r *EvaluationRepository) List(ctx context.Context, filter ports.EvaluationFilter) ([]ports.EvaluationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ports.EvaluationSummary, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		report := r.reports[r.order[i]]
		if filter.ScenarioID != "" && report.Manifest.ScenarioID != filter.ScenarioID {
			continue
		}
		if filter.Decision != "" && report.Decision() != filter.Decision {
			continue
		}
		out = append(out, ports.Summarize(report))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Time().After(out[j].CreatedAt.Time())
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []ports.EvaluationSummary{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Count returns the number of stored reports
func (r *EvaluationRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reports)
}
