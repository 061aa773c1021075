package app

import (
	"context"
	"fmt"
	"time"

	"counterfact/domain/core"
	"counterfact/domain/dataset"
	"counterfact/domain/evaluation"
	"counterfact/domain/run"
	"counterfact/domain/scenario"
	"counterfact/domain/verdict"
	"counterfact/internal"
	"counterfact/internal/decision"
	apperrors "counterfact/internal/errors"
	"counterfact/internal/gcomp"
	"counterfact/internal/ope"
	"counterfact/internal/policy"
	"counterfact/internal/referee"
	"counterfact/ports"

	"golang.org/x/sync/errgroup"
)

// EvaluationConfig is the explicit configuration of the pipeline
type EvaluationConfig struct {
	Estimator ope.Method
	Alpha     float64
	GComp     gcomp.Options
	// RankByEffect makes g-computation rank coverage-based scenarios by
	// predicted effect instead of reusing the scoring-rule assignment
	RankByEffect bool
	Battery      referee.BatteryConfig
	Engine       decision.EngineConfig
	CASWeights   verdict.Axes
	Strict       bool
	CodeVersion  string
}

// DefaultEvaluationConfig returns DR as the primary estimator with a linear
// outcome model.
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		Estimator:    ope.MethodDR,
		Alpha:        0.05,
		GComp:        gcomp.DefaultOptions(),
		RankByEffect: true,
		Battery:      referee.DefaultBatteryConfig(),
		Engine:       decision.DefaultEngineConfig(),
		CASWeights:   decision.DefaultWeights(),
		CodeVersion:  "dev",
	}
}

// EvaluationRequest is one scenario against one logged dataset
type EvaluationRequest struct {
	Spec    *scenario.Spec
	Dataset *dataset.Dataset
	// Estimator and Model override the configured defaults when set
	Estimator ope.Method
	Model     gcomp.Family
}

// EvaluationService runs validate, assign, estimate, gate, decide and score.
// It holds no per-request state; the repository and metrics are optional.
type EvaluationService struct {
	cfg       EvaluationConfig
	generator *policy.PolicyGenerator
	battery   *referee.Battery
	engine    *decision.Engine
	repo      ports.EvaluationRepository
	metrics   ports.MetricsRecorder
	log       *internal.Logger
}

// NewEvaluationService validates cfg and wires the pipeline stages
func NewEvaluationService(cfg EvaluationConfig, repo ports.EvaluationRepository, metrics ports.MetricsRecorder, logger *internal.Logger) (*EvaluationService, error) {
	if logger == nil {
		logger = internal.NopLogger()
	}
	if _, err := ope.ForMethod(cfg.Estimator); err != nil {
		return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, err)
	}
	battery, err := referee.NewBattery(cfg.Battery, logger)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, err)
	}
	engine, err := decision.NewEngine(cfg.Engine, logger)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, err)
	}
	return &EvaluationService{
		cfg:       cfg,
		generator: policy.NewPolicyGenerator(),
		battery:   battery,
		engine:    engine,
		repo:      repo,
		metrics:   metrics,
		log:       logger.With("evaluation"),
	}, nil
}

// EvaluateDocument parses a YAML or JSON scenario document, then evaluates it
func (s *EvaluationService) EvaluateDocument(ctx context.Context, raw []byte, ds *dataset.Dataset) (*run.Report, error) {
	spec, err := s.ParseSpec(raw)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(ctx, EvaluationRequest{Spec: spec, Dataset: ds})
}

// ParseSpec parses and validates a scenario document under the configured
// strictness.
func (s *EvaluationService) ParseSpec(raw []byte) (*scenario.Spec, error) {
	spec, err := scenario.Parse(raw, scenario.ParseOptions{Strict: s.cfg.Strict})
	if err != nil {
		s.specRejected()
		return nil, apperrors.Wrap(err, "scenario rejected")
	}
	return spec, nil
}

// Evaluate runs the full pipeline for one scenario
func (s *EvaluationService) Evaluate(ctx context.Context, req EvaluationRequest) (*run.Report, error) {
	started := time.Now()
	if req.Spec == nil {
		s.specRejected()
		return nil, apperrors.InvalidInput("scenario spec is required")
	}
	if err := req.Spec.Validate(); err != nil {
		s.specRejected()
		return nil, apperrors.Wrap(err, "scenario rejected")
	}
	if req.Dataset == nil {
		return nil, apperrors.InvalidInput("dataset is required")
	}
	if err := req.Dataset.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "dataset rejected")
	}
	if err := requireScenarioColumns(req.Spec, req.Dataset); err != nil {
		return nil, apperrors.Wrap(err, "dataset rejected")
	}

	spec, ds := req.Spec, req.Dataset
	method := s.cfg.Estimator
	if req.Estimator != "" {
		method = req.Estimator
	}
	gopts := s.cfg.GComp
	if req.Model != "" {
		gopts.Family = req.Model
	}
	gopts.Alpha = s.cfg.Alpha
	gopts.Logger = s.log
	gopts.OnDegenerate = s.degenerate

	s.log.Debug("evaluating %s over %d rows (estimator=%s model=%s)", spec.ID, ds.Len(), method, gopts.Family)

	assignment, err := s.generator.Generate(spec, ds)
	if err != nil {
		return nil, apperrors.Wrap(err, "assignment failed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	valuePerY := effectiveValuePerY(spec)
	opeResults := make(map[string]run.EstimatePair, len(ope.Methods))
	var gcompPair *run.EstimatePair

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pairs, err := s.runOPE(ds, valuePerY, assignment.Vector)
		if err != nil {
			return err
		}
		for m, p := range pairs {
			opeResults[m] = p
		}
		return nil
	})
	g.Go(func() error {
		pair, err := s.runGComp(gctx, ds, valuePerY, assignment, gopts)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			// an outcome-model failure drops the cross-check, not the evaluation
			s.log.Warn("g-computation skipped for %s: %v", spec.ID, err)
			return nil
		}
		gcompPair = pair
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(err, "estimation failed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	primary, ok := opeResults[string(method)]
	if !ok {
		return nil, apperrors.WithCode(apperrors.CodeInvalidInput, fmt.Errorf("unknown OPE method %q", method))
	}

	inputs := referee.Inputs{
		Dataset:    ds,
		Spec:       spec,
		Assignment: assignment.Vector,
		Baseline:   primary.Baseline,
		Scenario:   primary.Scenario,
	}
	var comparison *evaluation.Comparison
	if gcompPair != nil {
		c := gcomp.Compare(primary.Scenario, gcompPair.Scenario)
		comparison = &c
		inputs.GCompBaseline = &gcompPair.Baseline
		inputs.GCompScenario = &gcompPair.Scenario
	}

	gates := s.battery.Run(inputs)
	s.engine.Apply(&gates)
	cas, err := decision.Score(gates, s.cfg.CASWeights)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, err)
	}

	report := &run.Report{
		Manifest: run.NewManifest(spec.ScenarioID(), ds.Len(), s.fingerprint(spec, ds, method, gopts)),
		Spec:     *spec,
		Assignment: run.AssignmentSummary{
			Treated:       assignment.Treated,
			Coverage:      assignment.Coverage,
			ScoreColumn:   assignment.ScoreColumn,
			CoverageBased: assignment.CoverageBased,
		},
		PrimaryMethod: string(method),
		OPE:           opeResults,
		GComp:         gcompPair,
		Comparison:    comparison,
		Gates:         gates,
		CAS:           cas,
		DurationMs:    time.Since(started).Milliseconds(),
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, report); err != nil {
			return nil, apperrors.WithCode(apperrors.CodeDatabaseError, fmt.Errorf("save evaluation %s: %w", report.ID(), err))
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveEvaluation(gates.Decision, cas.Grade, time.Since(started))
		for _, gate := range gates.Gates {
			s.metrics.GateStatus(gate.Name, gate.Status)
		}
	}
	s.log.Info("evaluation %s for %s: %s (CAS %.2f %s)", report.ID(), spec.ID, gates.Decision, cas.Overall, cas.Grade)
	return report, nil
}

// Get loads a stored report
func (s *EvaluationService) Get(ctx context.Context, id core.EvaluationID) (*run.Report, error) {
	if s.repo == nil {
		return nil, apperrors.NotFound("evaluation " + id.String())
	}
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, "load evaluation")
	}
	return report, nil
}

// List returns stored report summaries
func (s *EvaluationService) List(ctx context.Context, filter ports.EvaluationFilter) ([]ports.EvaluationSummary, error) {
	if s.repo == nil {
		return []ports.EvaluationSummary{}, nil
	}
	out, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Wrap(err, "list evaluations")
	}
	return out, nil
}

func (s *EvaluationService) runOPE(ds *dataset.Dataset, valuePerY float64, assign []int) (map[string]run.EstimatePair, error) {
	ev, err := ope.NewEvaluator(ds, valuePerY, ope.Options{
		Alpha:        s.cfg.Alpha,
		OnDegenerate: s.degenerate,
		Logger:       s.log,
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]run.EstimatePair, len(ope.Methods))
	for _, m := range ope.Methods {
		base, err := ev.EvaluateBaseline(m)
		if err != nil {
			return nil, err
		}
		scen, err := ev.Evaluate(assign, m)
		if err != nil {
			return nil, err
		}
		out[string(m)] = run.EstimatePair{Baseline: base, Scenario: scen}
	}
	return out, nil
}

func (s *EvaluationService) runGComp(ctx context.Context, ds *dataset.Dataset, valuePerY float64, a policy.Assignment, opts gcomp.Options) (*run.EstimatePair, error) {
	ev, err := gcomp.NewEvaluator(ds, valuePerY, opts)
	if err != nil {
		return nil, err
	}
	base, err := ev.EvaluateBaseline(ctx)
	if err != nil {
		return nil, err
	}
	var scen evaluation.Result
	if a.CoverageBased && s.cfg.RankByEffect {
		scen, err = ev.EvaluateTop(ctx, a.Treated, a.Eligible)
	} else {
		scen, err = ev.EvaluateAssignment(ctx, a.Vector)
	}
	if err != nil {
		return nil, err
	}
	return &run.EstimatePair{Baseline: base, Scenario: scen}, nil
}

func (s *EvaluationService) fingerprint(spec *scenario.Spec, ds *dataset.Dataset, method ope.Method, g gcomp.Options) run.Fingerprint {
	doc, err := scenario.Marshal(spec)
	if err != nil {
		doc = []byte(spec.ID)
	}
	return run.NewFingerprint(core.NewHash(doc), ds.Fingerprint(), run.Settings{
		Estimator: string(method),
		Model:     string(g.Family),
		Alpha:     s.cfg.Alpha,
		Bootstrap: g.Bootstrap,
		CVFolds:   g.CVFolds,
		Seed:      g.Seed,
	}, s.cfg.CodeVersion)
}

func (s *EvaluationService) specRejected() {
	if s.metrics != nil {
		s.metrics.SpecRejected()
	}
}

func (s *EvaluationService) degenerate(estimator string) {
	if s.metrics != nil {
		s.metrics.DegenerateEstimate(estimator)
	}
}

// effectiveValuePerY applies the geography multiplier to the value mapping
func effectiveValuePerY(spec *scenario.Spec) float64 {
	v := spec.ValuePerY()
	if spec.Geography != nil && spec.Geography.Multiplier > 0 {
		v *= spec.Geography.Multiplier
	}
	return v
}

// requireScenarioColumns fails closed when the scenario names a column the
// dataset does not carry.
func requireScenarioColumns(spec *scenario.Spec, ds *dataset.Dataset) error {
	if spec.Intervention.Rule != "" {
		if _, err := ds.NumericColumn(spec.Intervention.Rule); err != nil {
			return err
		}
	}
	if b := spec.Budget(); b != nil {
		if _, err := ds.NumericColumn(b.UnitCostColumn); err != nil {
			return err
		}
	}
	if f := spec.Fairness(); f != nil {
		if _, err := ds.Groups(f.GroupColumn); err != nil {
			return err
		}
	}
	return nil
}
