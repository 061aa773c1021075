package dataset

import (
	"strings"

	"counterfact/domain/core"
)

// RoleMapping renames tabular columns to dataset roles. Either LogPropensity
// or Propensity must be set.
type RoleMapping struct {
	Unit          string   `json:"unit" yaml:"unit"`
	Treatment     string   `json:"treatment" yaml:"treatment"`
	Outcome       string   `json:"outcome" yaml:"outcome"`
	LogPropensity string   `json:"log_propensity,omitempty" yaml:"log_propensity,omitempty"`
	Propensity    string   `json:"propensity,omitempty" yaml:"propensity,omitempty"`
	Cost          string   `json:"cost,omitempty" yaml:"cost,omitempty"`
	Group         string   `json:"group,omitempty" yaml:"group,omitempty"`
	Instrument    string   `json:"instrument,omitempty" yaml:"instrument,omitempty"`
	Period        string   `json:"period,omitempty" yaml:"period,omitempty"`
	Covariates    []string `json:"covariates,omitempty" yaml:"covariates,omitempty"`
	Extra         []string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// DefaultRoleMapping maps every role to a column of the same name
func DefaultRoleMapping() RoleMapping {
	return RoleMapping{
		Unit:          RoleUnit,
		Treatment:     RoleTreatment,
		Outcome:       RoleOutcome,
		LogPropensity: RoleLogPropensity,
	}
}

// Check verifies the mandatory roles are named
func (m RoleMapping) Check() error {
	if strings.TrimSpace(m.Treatment) == "" {
		return core.NewDataContractError(RoleTreatment, "treatment role is not mapped")
	}
	if strings.TrimSpace(m.Outcome) == "" {
		return core.NewDataContractError(RoleOutcome, "outcome role is not mapped")
	}
	if strings.TrimSpace(m.LogPropensity) == "" && strings.TrimSpace(m.Propensity) == "" {
		return core.NewDataContractError(RoleLogPropensity, "either log_propensity or propensity must be mapped")
	}
	return nil
}

// Fingerprint is a stable key for caching loads under this mapping
func (m RoleMapping) Fingerprint() core.Hash {
	return core.HashKeyValues(map[string]string{
		"unit":           m.Unit,
		"treatment":      m.Treatment,
		"outcome":        m.Outcome,
		"log_propensity": m.LogPropensity,
		"propensity":     m.Propensity,
		"cost":           m.Cost,
		"group":          m.Group,
		"instrument":     m.Instrument,
		"period":         m.Period,
		"covariates":     strings.Join(m.Covariates, ","),
		"extra":          strings.Join(m.Extra, ","),
	})
}
