package testkit

import (
	"math"
	"testing"

	"counterfact/domain/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggedDataGenerator_Basic(t *testing.T) {
	config := DefaultLoggedConfig()
	config.Rows = 500

	ds, err := NewLoggedDataGenerator(config).Generate()
	require.NoError(t, err)
	require.NoError(t, ds.Validate())

	assert.Equal(t, 500, ds.Len())
	assert.Equal(t, []string{"x1", "x2", "x3"}, ds.CovariateNames)
	assert.True(t, ds.Columns.Cost)
	assert.True(t, ds.Columns.Group)
	assert.True(t, ds.Columns.Instrument)
	assert.True(t, ds.Columns.Period)
	assert.Equal(t, dataset.RoleGroup, ds.GroupColumn)

	treated, control := ds.ArmCounts()
	assert.Greater(t, treated, 50)
	assert.Greater(t, control, 50)

	for i, r := range ds.Records {
		if r.Treatment == 0 {
			assert.Zero(t, r.Cost, "row %d", i)
		}
		p := r.Propensity()
		assert.True(t, p >= config.PropensityClip-1e-12 && p <= 1-config.PropensityClip+1e-12, "row %d propensity %g", i, p)
		assert.Contains(t, config.Groups, r.Group)
		assert.Less(t, r.Period, float64(config.Periods))
	}

	for _, col := range []string{ColumnUpliftScore, ColumnUnitCost, ColumnRiskScore} {
		values, err := ds.NumericColumn(col)
		require.NoError(t, err, col)
		assert.Len(t, values, 500)
	}
}

func TestLoggedDataGenerator_Deterministic(t *testing.T) {
	config := DefaultLoggedConfig()
	config.Rows = 200

	a := NewLoggedDataGenerator(config).MustGenerate()
	b := NewLoggedDataGenerator(config).MustGenerate()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	config.Seed = 7
	c := NewLoggedDataGenerator(config).MustGenerate()
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestLoggedDataGenerator_UniformLogging(t *testing.T) {
	config := DefaultLoggedConfig()
	config.Rows = 100
	config.Uniform = true

	ds := NewLoggedDataGenerator(config).MustGenerate()
	for _, p := range ds.Propensities() {
		assert.InDelta(t, 0.5, p, 1e-12)
	}
}

func TestLoggedDataGenerator_TreatmentEffectIsRecoverable(t *testing.T) {
	config := DefaultLoggedConfig()
	config.Rows = 20000
	config.Uniform = true
	config.Heterogeneity = 0

	ds := NewLoggedDataGenerator(config).MustGenerate()
	var sumT, sumC float64
	var nT, nC int
	for _, r := range ds.Records {
		if r.Treatment == 1 {
			sumT += r.Outcome
			nT++
		} else {
			sumC += r.Outcome
			nC++
		}
	}
	diff := sumT/float64(nT) - sumC/float64(nC)
	assert.InDelta(t, config.Effect, diff, 0.15)
}

func TestLoggedDataGenerator_OptionalColumns(t *testing.T) {
	config := DefaultLoggedConfig()
	config.Rows = 50
	config.Groups = nil
	config.Periods = 0
	config.Instrument = false
	config.WithCost = false

	ds := NewLoggedDataGenerator(config).MustGenerate()
	assert.Equal(t, dataset.Presence{}, ds.Columns)
	assert.Error(t, ds.Require(dataset.RoleGroup))
	assert.Error(t, ds.Require(dataset.RoleInstrument))
	for _, r := range ds.Records {
		assert.False(t, math.IsNaN(r.Outcome))
	}
}

func TestLoggedDataGenerator_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LoggedGeneratorConfig)
	}{
		{"zero rows", func(c *LoggedGeneratorConfig) { c.Rows = 0 }},
		{"negative covariates", func(c *LoggedGeneratorConfig) { c.Covariates = -1 }},
		{"clip too wide", func(c *LoggedGeneratorConfig) { c.PropensityClip = 0.5 }},
		{"clip zero", func(c *LoggedGeneratorConfig) { c.PropensityClip = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultLoggedConfig()
			tt.mutate(&config)
			_, err := NewLoggedDataGenerator(config).Generate()
			assert.Error(t, err)
		})
	}
}
