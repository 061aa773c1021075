package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"counterfact/domain/core"
)

// Built-in role names accepted by NumericColumn in addition to covariates
// and extra columns.
const (
	RoleUnit          = "unit"
	RoleTreatment     = "treatment"
	RoleOutcome       = "outcome"
	RoleLogPropensity = "log_propensity"
	RolePropensity    = "propensity"
	RoleCost          = "cost"
	RoleGroup         = "group"
	RoleInstrument    = "instrument"
	RolePeriod        = "period"
)

// LoggedRecord is one row of the logged dataset
type LoggedRecord struct {
	UnitID        string    `json:"unit_id"`
	Treatment     int       `json:"treatment"`
	Outcome       float64   `json:"outcome"`
	LogPropensity float64   `json:"log_propensity"`
	Cost          float64   `json:"cost,omitempty"`
	Covariates    []float64 `json:"covariates,omitempty"`
	Group         string    `json:"group,omitempty"`
	Instrument    float64   `json:"instrument,omitempty"`
	Period        float64   `json:"period,omitempty"`
}

// Propensity returns the probability the logging policy assigned the observed treatment
func (r LoggedRecord) Propensity() float64 {
	return math.Exp(r.LogPropensity)
}

// Presence flags the optional roles that were mapped for a dataset
type Presence struct {
	Cost       bool `json:"cost"`
	Group      bool `json:"group"`
	Instrument bool `json:"instrument"`
	Period     bool `json:"period"`
}

// Dataset is an immutable logged dataset shared read-only by the evaluators
type Dataset struct {
	Records        []LoggedRecord       `json:"records"`
	CovariateNames []string             `json:"covariate_names,omitempty"`
	Columns        Presence             `json:"columns"`
	GroupColumn    string               `json:"group_column,omitempty"`
	Extra          map[string][]float64 `json:"extra,omitempty"`
}

// Len returns the number of records
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Validate checks the record invariants. It fails closed on the first violation.
func (d *Dataset) Validate() error {
	if d.Len() == 0 {
		return core.NewDataContractError(RoleTreatment, "dataset has no records")
	}
	for i, r := range d.Records {
		if r.Treatment != 0 && r.Treatment != 1 {
			return core.NewRowContractError(i, RoleTreatment, fmt.Sprintf("treatment must be 0 or 1, got %d", r.Treatment))
		}
		p := r.Propensity()
		if math.IsNaN(p) || p <= 0 || p >= 1 {
			return core.NewRowContractError(i, RoleLogPropensity, fmt.Sprintf("propensity must lie strictly in (0,1), got %g", p))
		}
		if math.IsNaN(r.Outcome) || math.IsInf(r.Outcome, 0) {
			return core.NewRowContractError(i, RoleOutcome, "outcome must be finite")
		}
		if len(r.Covariates) != len(d.CovariateNames) {
			return core.NewRowContractError(i, "covariates", fmt.Sprintf("expected %d covariates, got %d", len(d.CovariateNames), len(r.Covariates)))
		}
	}
	for name, col := range d.Extra {
		if len(col) != d.Len() {
			return core.NewDataContractError(name, fmt.Sprintf("expected %d values, got %d", d.Len(), len(col)))
		}
	}
	return nil
}

// Require fails closed when any of the optional roles is not mapped
func (d *Dataset) Require(roles ...string) error {
	for _, role := range roles {
		var ok bool
		switch role {
		case RoleCost:
			ok = d.Columns.Cost
		case RoleGroup:
			ok = d.Columns.Group
		case RoleInstrument:
			ok = d.Columns.Instrument
		case RolePeriod:
			ok = d.Columns.Period
		case RoleUnit, RoleTreatment, RoleOutcome, RoleLogPropensity, RolePropensity:
			ok = true
		default:
			_, ok = d.columnIndex(role)
		}
		if !ok {
			return core.NewDataContractError(role, "required column is not mapped")
		}
	}
	return nil
}

// Treatments returns the logged treatment vector
func (d *Dataset) Treatments() []int {
	out := make([]int, d.Len())
	for i, r := range d.Records {
		out[i] = r.Treatment
	}
	return out
}

// Propensities returns exp(log-propensity) per record
func (d *Dataset) Propensities() []float64 {
	out := make([]float64, d.Len())
	for i, r := range d.Records {
		out[i] = r.Propensity()
	}
	return out
}

// TreatmentProbabilities returns P(T=1|x) as implied by the logged propensity
func (d *Dataset) TreatmentProbabilities() []float64 {
	out := make([]float64, d.Len())
	for i, r := range d.Records {
		p := r.Propensity()
		if r.Treatment == 1 {
			out[i] = p
		} else {
			out[i] = 1 - p
		}
	}
	return out
}

// Outcomes returns the outcome vector
func (d *Dataset) Outcomes() []float64 {
	out := make([]float64, d.Len())
	for i, r := range d.Records {
		out[i] = r.Outcome
	}
	return out
}

// Profit converts outcomes to money: outcome*valuePerY - cost
func (d *Dataset) Profit(valuePerY float64) []float64 {
	out := make([]float64, d.Len())
	for i, r := range d.Records {
		out[i] = r.Outcome * valuePerY
		if d.Columns.Cost {
			out[i] -= r.Cost
		}
	}
	return out
}

// ArmCounts returns the number of treated and control records
func (d *Dataset) ArmCounts() (treated, control int) {
	for _, r := range d.Records {
		if r.Treatment == 1 {
			treated++
		} else {
			control++
		}
	}
	return treated, control
}

// Covariate returns the j-th covariate column
func (d *Dataset) Covariate(j int) []float64 {
	out := make([]float64, d.Len())
	for i, r := range d.Records {
		out[i] = r.Covariates[j]
	}
	return out
}

// NumericColumn resolves a named numeric column from covariates, extra
// columns or built-in roles.
func (d *Dataset) NumericColumn(name string) ([]float64, error) {
	if j, ok := d.columnIndex(name); ok {
		return d.Covariate(j), nil
	}
	if col, ok := d.Extra[name]; ok {
		out := make([]float64, len(col))
		copy(out, col)
		return out, nil
	}

	out := make([]float64, d.Len())
	switch name {
	case RoleOutcome:
		return d.Outcomes(), nil
	case RolePropensity:
		return d.Propensities(), nil
	case RoleLogPropensity:
		for i, r := range d.Records {
			out[i] = r.LogPropensity
		}
	case RoleTreatment:
		for i, r := range d.Records {
			out[i] = float64(r.Treatment)
		}
	case RoleCost:
		if !d.Columns.Cost {
			return nil, core.NewDataContractError(name, "cost column is not mapped")
		}
		for i, r := range d.Records {
			out[i] = r.Cost
		}
	case RoleInstrument:
		if !d.Columns.Instrument {
			return nil, core.NewDataContractError(name, "instrument column is not mapped")
		}
		for i, r := range d.Records {
			out[i] = r.Instrument
		}
	case RolePeriod:
		if !d.Columns.Period {
			return nil, core.NewDataContractError(name, "period column is not mapped")
		}
		for i, r := range d.Records {
			out[i] = r.Period
		}
	default:
		return nil, core.NewDataContractError(name, "unknown numeric column")
	}
	return out, nil
}

// Groups returns the group label per record, resolving the configured group
// column name or the generic role names.
func (d *Dataset) Groups(column string) ([]string, error) {
	if !d.Columns.Group {
		return nil, core.NewDataContractError(column, "group column is not mapped")
	}
	if column != "" && column != d.GroupColumn && column != RoleGroup && column != "cluster" {
		return nil, core.NewDataContractError(column, fmt.Sprintf("group column is mapped as %q", d.GroupColumn))
	}
	out := make([]string, d.Len())
	for i, r := range d.Records {
		out[i] = r.Group
	}
	return out, nil
}

func (d *Dataset) columnIndex(name string) (int, bool) {
	for j, n := range d.CovariateNames {
		if n == name {
			return j, true
		}
	}
	return 0, false
}

// Fingerprint hashes the record contents so identical data yields identical
// run fingerprints.
func (d *Dataset) Fingerprint() core.Hash {
	h := sha256.New()
	for _, r := range d.Records {
		fmt.Fprintf(h, "%s|%d|%g|%g|%g|%v|%s|%g|%g\n", r.UnitID, r.Treatment, r.Outcome, r.LogPropensity, r.Cost, r.Covariates, r.Group, r.Instrument, r.Period)
	}
	fmt.Fprintf(h, "cov:%v|cols:%+v|group:%s", d.CovariateNames, d.Columns, d.GroupColumn)
	return core.Hash(hex.EncodeToString(h.Sum(nil)))
}
