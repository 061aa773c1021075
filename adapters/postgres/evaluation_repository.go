package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"counterfact/domain/core"
	"counterfact/domain/run"
	"counterfact/domain/verdict"
	"counterfact/ports"

	"github.com/jmoiron/sqlx"
)

// evaluationRepository implements ports.EvaluationRepository. The full
// report is stored as JSONB; the columns beside it exist for filtering.
type evaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository creates a new PostgreSQL evaluation repository
func NewEvaluationRepository(db *sqlx.DB) ports.EvaluationRepository {
	return &evaluationRepository{db: db}
}

type gateRow struct {
	EvaluationID string  `db:"evaluation_id"`
	Name         string  `db:"name"`
	Category     string  `db:"category"`
	Status       string  `db:"status"`
	Threshold    string  `db:"threshold"`
	Baseline     float64 `db:"baseline"`
	Scenario     float64 `db:"scenario"`
	Reason       string  `db:"reason"`
}

type summaryRow struct {
	ID          string    `db:"id"`
	ScenarioID  string    `db:"scenario_id"`
	Decision    string    `db:"decision"`
	Grade       string    `db:"grade"`
	DeltaProfit float64   `db:"delta_profit"`
	CreatedAt   time.Time `db:"created_at"`
}

// Save inserts the report and its gate rows in one transaction
func (r *evaluationRepository) Save(ctx context.Context, report *run.Report) error {
	if err := report.Manifest.Validate(); err != nil {
		return err
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO evaluations (
			id, scenario_id, decision, grade, cas_overall, delta_profit, primary_method,
			fingerprint, row_count, data_quality, duration_ms, report, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		report.ID().String(), report.Manifest.ScenarioID.String(), string(report.Decision()),
		string(report.CAS.Grade), report.CAS.Overall, report.Primary().Delta(), report.PrimaryMethod,
		report.Manifest.Fingerprint.Fingerprint.String(), report.Manifest.Rows,
		string(report.Gates.DataQuality), report.DurationMs, reportJSON, report.Manifest.CreatedAt.Time(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}

	if len(report.Gates.Gates) > 0 {
		rows := make([]gateRow, len(report.Gates.Gates))
		for i, g := range report.Gates.Gates {
			rows[i] = gateRow{
				EvaluationID: report.ID().String(),
				Name:         g.Name,
				Category:     string(g.Category),
				Status:       string(g.Status),
				Threshold:    g.Threshold.String(),
				Baseline:     g.Baseline,
				Scenario:     g.Scenario,
				Reason:       g.Reason,
			}
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO evaluation_gates (evaluation_id, name, category, status, threshold, baseline, scenario, reason)
			VALUES (:evaluation_id, :name, :category, :status, :threshold, :baseline, :scenario, :reason)
		`, rows)
		if err != nil {
			return fmt.Errorf("failed to insert gates: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit evaluation: %w", err)
	}
	return nil
}

// GetByID retrieves a report by its evaluation ID
func (r *evaluationRepository) GetByID(ctx context.Context, id core.EvaluationID) (*run.Report, error) {
	var reportJSON []byte
	err := r.db.GetContext(ctx, &reportJSON, `SELECT report FROM evaluations WHERE id = $1`, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError("evaluation", id.String())
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	var report run.Report
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// List returns report summaries newest first
func (r *evaluationRepository) List(ctx context.Context, filter ports.EvaluationFilter) ([]ports.EvaluationSummary, error) {
	query, args := buildListQuery(filter)

	var rows []summaryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}

	out := make([]ports.EvaluationSummary, len(rows))
	for i, row := range rows {
		out[i] = ports.EvaluationSummary{
			ID:          core.EvaluationID(row.ID),
			ScenarioID:  core.ScenarioID(row.ScenarioID),
			Decision:    verdict.Decision(row.Decision),
			Grade:       verdict.Grade(row.Grade),
			DeltaProfit: row.DeltaProfit,
			CreatedAt:   core.NewTimestamp(row.CreatedAt),
		}
	}
	return out, nil
}

func buildListQuery(filter ports.EvaluationFilter) (string, []interface{}) {
	var where []string
	var args []interface{}
	if filter.ScenarioID != "" {
		args = append(args, filter.ScenarioID.String())
		where = append(where, fmt.Sprintf("scenario_id = $%d", len(args)))
	}
	if filter.Decision != "" {
		args = append(args, string(filter.Decision))
		where = append(where, fmt.Sprintf("decision = $%d", len(args)))
	}

	query := `SELECT id, scenario_id, decision, grade, delta_profit, created_at FROM evaluations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
