package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"counterfact/domain/dataset"
)

// Extra columns emitted by the generator
const (
	ColumnUpliftScore = "uplift_score"
	ColumnUnitCost    = "unit_cost"
	ColumnRiskScore   = "risk_score"
)

// LoggedGeneratorConfig configures the logged-policy data generator
type LoggedGeneratorConfig struct {
	Rows       int      `json:"rows"`
	Covariates int      `json:"covariates"`
	Groups     []string `json:"groups"`
	Periods    int      `json:"periods"`
	Instrument bool     `json:"instrument"`
	WithCost   bool     `json:"with_cost"`

	BaseOutcome    float64 `json:"base_outcome"`
	Effect         float64 `json:"effect"`
	Heterogeneity  float64 `json:"heterogeneity"`
	Confounding    float64 `json:"confounding"`
	InstrumentPull float64 `json:"instrument_pull"`
	NoiseSD        float64 `json:"noise_sd"`
	TreatmentCost  float64 `json:"treatment_cost"`
	// PropensityClip keeps the logging policy away from 0 and 1
	PropensityClip float64 `json:"propensity_clip"`
	// Uniform logs every row with P(T=1)=0.5, ignoring confounding
	Uniform bool  `json:"uniform"`
	Seed    int64 `json:"seed"`
}

// DefaultLoggedConfig returns sensible defaults for logged data generation
func DefaultLoggedConfig() LoggedGeneratorConfig {
	return LoggedGeneratorConfig{
		Rows:           4000,
		Covariates:     3,
		Groups:         []string{"north", "south", "east", "west"},
		Periods:        4,
		Instrument:     true,
		WithCost:       true,
		BaseOutcome:    10,
		Effect:         2,
		Heterogeneity:  1.5,
		Confounding:    0.6,
		InstrumentPull: 0.8,
		NoiseSD:        1,
		TreatmentCost:  0.5,
		PropensityClip: 0.05,
		Seed:           42,
	}
}

// LoggedDataGenerator generates logged observational data with a known
// heterogeneous treatment effect.
type LoggedDataGenerator struct {
	config LoggedGeneratorConfig
	rng    *rand.Rand
}

// NewLoggedDataGenerator creates a new logged data generator
func NewLoggedDataGenerator(config LoggedGeneratorConfig) *LoggedDataGenerator {
	return &LoggedDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds the dataset. The same seed always yields the same rows.
func (g *LoggedDataGenerator) Generate() (*dataset.Dataset, error) {
	cfg := g.config
	if cfg.Rows <= 0 {
		return nil, fmt.Errorf("rows must be positive, got %d", cfg.Rows)
	}
	if cfg.Covariates < 0 {
		return nil, fmt.Errorf("covariates must be non-negative, got %d", cfg.Covariates)
	}
	if cfg.PropensityClip <= 0 || cfg.PropensityClip >= 0.5 {
		return nil, fmt.Errorf("propensity clip must lie in (0,0.5), got %g", cfg.PropensityClip)
	}

	names := make([]string, cfg.Covariates)
	for j := range names {
		names[j] = fmt.Sprintf("x%d", j+1)
	}

	ds := &dataset.Dataset{
		Records:        make([]dataset.LoggedRecord, cfg.Rows),
		CovariateNames: names,
		Columns: dataset.Presence{
			Cost:       cfg.WithCost,
			Group:      len(cfg.Groups) > 0,
			Instrument: cfg.Instrument,
			Period:     cfg.Periods > 0,
		},
		Extra: map[string][]float64{
			ColumnUpliftScore: make([]float64, cfg.Rows),
			ColumnUnitCost:    make([]float64, cfg.Rows),
			ColumnRiskScore:   make([]float64, cfg.Rows),
		},
	}
	if ds.Columns.Group {
		ds.GroupColumn = dataset.RoleGroup
	}

	for i := 0; i < cfg.Rows; i++ {
		x := make([]float64, cfg.Covariates)
		for j := range x {
			x[j] = g.rng.NormFloat64()
		}
		driver := first(x)

		var z float64
		if cfg.Instrument {
			z = g.rng.NormFloat64()
		}

		p1 := 0.5
		if !cfg.Uniform {
			p1 = clip(sigmoid(cfg.Confounding*driver+cfg.InstrumentPull*z), cfg.PropensityClip)
		}
		t := 0
		if g.rng.Float64() < p1 {
			t = 1
		}
		logProp := math.Log(p1)
		if t == 0 {
			logProp = math.Log(1 - p1)
		}

		effect := cfg.Effect + cfg.Heterogeneity*driver
		outcome := cfg.BaseOutcome + driver + 0.5*second(x) + float64(t)*effect + cfg.NoiseSD*g.rng.NormFloat64()

		rec := dataset.LoggedRecord{
			UnitID:        fmt.Sprintf("unit_%05d", i+1),
			Treatment:     t,
			Outcome:       outcome,
			LogPropensity: logProp,
			Covariates:    x,
		}
		unitCost := cfg.TreatmentCost * (1 + 0.5*g.rng.Float64())
		if cfg.WithCost && t == 1 {
			rec.Cost = unitCost
		}
		if ds.Columns.Group {
			rec.Group = cfg.Groups[g.rng.Intn(len(cfg.Groups))]
		}
		if cfg.Instrument {
			rec.Instrument = z
		}
		if cfg.Periods > 0 {
			rec.Period = float64(g.rng.Intn(cfg.Periods))
		}
		ds.Records[i] = rec

		ds.Extra[ColumnUpliftScore][i] = effect + 0.3*g.rng.NormFloat64()
		ds.Extra[ColumnUnitCost][i] = unitCost
		ds.Extra[ColumnRiskScore][i] = g.rng.Float64()
	}

	return ds, nil
}

// MustGenerate is Generate for fixtures
func (g *LoggedDataGenerator) MustGenerate() *dataset.Dataset {
	ds, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return ds
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func clip(p, eps float64) float64 {
	return math.Min(math.Max(p, eps), 1-eps)
}

func first(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return x[0]
}

func second(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return x[1]
}
