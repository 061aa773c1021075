package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"counterfact/adapters/excel"
	"counterfact/app"
	"counterfact/domain/dataset"
	"counterfact/domain/run"
	"counterfact/internal"
	"counterfact/internal/config"
	"counterfact/internal/gcomp"
	"counterfact/internal/ope"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type evaluateOptions struct {
	specPath    string
	dataPath    string
	mappingPath string
	estimator   string
	model       string
	bootstrap   int
	seed        int64
	alpha       float64
	strict      bool
	output      string
	verbose     bool
}

func newEvaluateCmd() *cobra.Command {
	var opts evaluateOptions

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a scenario against a logged dataset",
		Long: `Run the full pipeline: validate the scenario, build the new assignment,
estimate its value with IPS/SNIPS/DR and g-computation, run the quality
gates and print the decision with its assurance score.

Defaults come from the environment (EVAL_* variables); flags override them.

Example: counterfact evaluate --spec s1.yaml --data logged.csv --mapping mapping.yaml --model rf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.specPath, "spec", "", "Scenario document (YAML or JSON)")
	f.StringVar(&opts.dataPath, "data", "", "Logged dataset (.csv or .xlsx)")
	f.StringVar(&opts.mappingPath, "mapping", "", "Role mapping file (YAML); default maps roles to same-named columns")
	f.StringVar(&opts.estimator, "estimator", "", "Primary OPE method: ips, snips or dr")
	f.StringVar(&opts.model, "model", "", "Outcome model: linear, rf or gbm")
	f.IntVar(&opts.bootstrap, "bootstrap", 0, "Bootstrap resamples for g-computation")
	f.Int64Var(&opts.seed, "seed", 0, "Random seed for models and resampling")
	f.Float64Var(&opts.alpha, "alpha", 0, "Significance level for confidence intervals")
	f.BoolVar(&opts.strict, "strict", false, "Reject unknown keys in the scenario")
	f.StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline stages to stderr")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runEvaluate(cmd *cobra.Command, opts evaluateOptions) error {
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("--output must be text or json, got %q", opts.output)
	}
	appConfig, err := config.Load()
	if err != nil {
		return err
	}
	cfg := appConfig.EvaluationConfig(version)
	if err := applyOverrides(cmd, &cfg, opts); err != nil {
		return err
	}

	level := internal.LogLevelError
	if opts.verbose {
		level = internal.LogLevelDebug
	}
	logger := internal.NewLoggerTo(level, cmd.ErrOrStderr())

	mapping, err := loadMapping(opts.mappingPath)
	if err != nil {
		return err
	}
	loader, err := excel.NewLoader(excel.LoaderConfig{}, logger)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ds, err := loader.Load(ctx, opts.dataPath, mapping)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	raw, err := os.ReadFile(opts.specPath)
	if err != nil {
		return fmt.Errorf("read spec: %w", err)
	}
	svc, err := app.NewEvaluationService(cfg, nil, nil, logger)
	if err != nil {
		return err
	}
	report, err := svc.EvaluateDocument(ctx, raw, ds)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printReport(out, report)
}

func applyOverrides(cmd *cobra.Command, cfg *app.EvaluationConfig, opts evaluateOptions) error {
	flags := cmd.Flags()
	if flags.Changed("estimator") {
		m, err := ope.ParseMethod(opts.estimator)
		if err != nil {
			return err
		}
		cfg.Estimator = m
	}
	if flags.Changed("model") {
		fam, err := gcomp.ParseFamily(opts.model)
		if err != nil {
			return err
		}
		cfg.GComp.Family = fam
	}
	if flags.Changed("bootstrap") {
		if opts.bootstrap < 2 {
			return fmt.Errorf("--bootstrap must be at least 2")
		}
		cfg.GComp.Bootstrap = opts.bootstrap
	}
	if flags.Changed("seed") {
		cfg.GComp.Seed = opts.seed
		cfg.GComp.Model.Seed = opts.seed
	}
	if flags.Changed("alpha") {
		if opts.alpha <= 0 || opts.alpha >= 1 {
			return fmt.Errorf("--alpha must lie in (0,1)")
		}
		cfg.Alpha = opts.alpha
		cfg.GComp.Alpha = opts.alpha
	}
	if flags.Changed("strict") {
		cfg.Strict = opts.strict
	}
	return nil
}

func loadMapping(path string) (dataset.RoleMapping, error) {
	if path == "" {
		return dataset.DefaultRoleMapping(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return dataset.RoleMapping{}, fmt.Errorf("read mapping: %w", err)
	}
	var m dataset.RoleMapping
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return dataset.RoleMapping{}, fmt.Errorf("parse mapping: %w", err)
	}
	return m, nil
}

func printReport(w io.Writer, r *run.Report) error {
	fmt.Fprintf(w, "Evaluation %s\n", r.ID())
	fmt.Fprintf(w, "Scenario   %s (%d rows, %d treated, coverage %.3f)\n", r.Manifest.ScenarioID, r.Manifest.Rows, r.Assignment.Treated, r.Assignment.Coverage)
	fmt.Fprintf(w, "Decision   %s   CAS %.3f (%s)   data quality %s\n\n", r.Decision(), r.CAS.Overall, r.CAS.Grade, r.Gates.DataQuality)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ESTIMATOR\tBASELINE\tSCENARIO\tDELTA\tSCENARIO CI")
	for _, m := range ope.Methods {
		pair, ok := r.OPE[string(m)]
		if !ok {
			continue
		}
		name := string(m)
		if name == r.PrimaryMethod {
			name += "*"
		}
		printPair(tw, name, pair)
	}
	if r.GComp != nil {
		printPair(tw, r.GComp.Scenario.Estimator, *r.GComp)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if r.Comparison != nil {
		fmt.Fprintf(w, "\nOPE vs outcome model: %s agreement (relative diff %.3f, CIs overlap: %t)\n", r.Comparison.Agreement, r.Comparison.RelativeDiff, r.Comparison.CIOverlap)
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GATE\tCATEGORY\tTHRESHOLD\tVALUE\tSTATUS")
	for _, g := range r.Gates.Gates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4g\t%s\n", g.Name, g.Category, g.Threshold, g.Scenario, g.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nPass rate %.2f (%d pass, %d fail, %d warning, %d NA)\n", r.Gates.PassRate, r.Gates.PassCount, r.Gates.FailCount, r.Gates.WarningCount, r.Gates.NACount)
	for _, line := range r.Gates.Rationale {
		fmt.Fprintf(w, "  - %s\n", line)
	}
	if len(r.Gates.BlockingGates) > 0 {
		fmt.Fprintf(w, "Blocking: %s\n", strings.Join(r.Gates.BlockingGates, ", "))
	}
	return nil
}

func printPair(w io.Writer, name string, p run.EstimatePair) {
	s := p.Scenario
	ci := fmt.Sprintf("[%.4g, %.4g]", s.CILower, s.CIUpper)
	if s.Degenerate {
		ci = "degenerate"
	}
	fmt.Fprintf(w, "%s\t%.4g\t%.4g\t%+.4g\t%s\n", name, p.Baseline.Value, s.Value, p.Delta(), ci)
}
