package excel

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"counterfact/domain/core"
	"counterfact/domain/dataset"
)

// BuildDataset applies a role mapping to a table. Missing columns and
// unparseable cells fail closed with a DataContractError; nothing is imputed.
func BuildDataset(t *Table, m dataset.RoleMapping) (*dataset.Dataset, error) {
	if err := m.Check(); err != nil {
		return nil, err
	}

	col := func(name string) (int, error) {
		idx, ok := t.ColumnIndex(name)
		if !ok {
			return 0, core.NewDataContractError(name, "column not found")
		}
		return idx, nil
	}
	optional := func(name string) (int, bool, error) {
		if strings.TrimSpace(name) == "" {
			return 0, false, nil
		}
		idx, err := col(name)
		return idx, err == nil, err
	}

	treatCol, err := col(m.Treatment)
	if err != nil {
		return nil, err
	}
	outCol, err := col(m.Outcome)
	if err != nil {
		return nil, err
	}
	propName, isLog := m.LogPropensity, true
	if strings.TrimSpace(propName) == "" {
		propName, isLog = m.Propensity, false
	}
	propCol, err := col(propName)
	if err != nil {
		return nil, err
	}
	unitCol, hasUnit, err := optional(m.Unit)
	if err != nil {
		return nil, err
	}
	costCol, hasCost, err := optional(m.Cost)
	if err != nil {
		return nil, err
	}
	groupCol, hasGroup, err := optional(m.Group)
	if err != nil {
		return nil, err
	}
	instCol, hasInst, err := optional(m.Instrument)
	if err != nil {
		return nil, err
	}
	periodCol, hasPeriod, err := optional(m.Period)
	if err != nil {
		return nil, err
	}
	covCols := make([]int, len(m.Covariates))
	for j, name := range m.Covariates {
		if covCols[j], err = col(name); err != nil {
			return nil, err
		}
	}
	extraCols := make([]int, len(m.Extra))
	for j, name := range m.Extra {
		if extraCols[j], err = col(name); err != nil {
			return nil, err
		}
	}

	n := len(t.Rows)
	ds := &dataset.Dataset{
		Records:        make([]dataset.LoggedRecord, n),
		CovariateNames: append([]string(nil), m.Covariates...),
		Columns: dataset.Presence{
			Cost:       hasCost,
			Group:      hasGroup,
			Instrument: hasInst,
			Period:     hasPeriod,
		},
	}
	if hasGroup {
		ds.GroupColumn = m.Group
	}
	if len(m.Extra) > 0 {
		ds.Extra = make(map[string][]float64, len(m.Extra))
		for _, name := range m.Extra {
			ds.Extra[name] = make([]float64, n)
		}
	}

	for i := range t.Rows {
		num := func(idx int, role string) (float64, error) {
			return parseNumber(t.Cell(i, idx), i, role)
		}
		rec := dataset.LoggedRecord{UnitID: fmt.Sprintf("row_%d", i+1)}
		if hasUnit {
			if rec.UnitID = t.Cell(i, unitCol); rec.UnitID == "" {
				return nil, core.NewRowContractError(i, m.Unit, "unit id is empty")
			}
		}

		tv, err := num(treatCol, m.Treatment)
		if err != nil {
			return nil, err
		}
		if tv != 0 && tv != 1 {
			return nil, core.NewRowContractError(i, m.Treatment, fmt.Sprintf("treatment must be 0 or 1, got %s", t.Cell(i, treatCol)))
		}
		rec.Treatment = int(tv)

		if rec.Outcome, err = num(outCol, m.Outcome); err != nil {
			return nil, err
		}

		pv, err := num(propCol, propName)
		if err != nil {
			return nil, err
		}
		if isLog {
			rec.LogPropensity = pv
		} else {
			if pv <= 0 || pv >= 1 {
				return nil, core.NewRowContractError(i, propName, fmt.Sprintf("propensity must lie strictly in (0,1), got %g", pv))
			}
			rec.LogPropensity = math.Log(pv)
		}

		if hasCost {
			if rec.Cost, err = num(costCol, m.Cost); err != nil {
				return nil, err
			}
		}
		if hasGroup {
			if rec.Group = t.Cell(i, groupCol); rec.Group == "" {
				return nil, core.NewRowContractError(i, m.Group, "group is empty")
			}
		}
		if hasInst {
			if rec.Instrument, err = num(instCol, m.Instrument); err != nil {
				return nil, err
			}
		}
		if hasPeriod {
			if rec.Period, err = num(periodCol, m.Period); err != nil {
				return nil, err
			}
		}
		if len(covCols) > 0 {
			rec.Covariates = make([]float64, len(covCols))
			for j, c := range covCols {
				if rec.Covariates[j], err = num(c, m.Covariates[j]); err != nil {
					return nil, err
				}
			}
		}
		for j, c := range extraCols {
			if ds.Extra[m.Extra[j]][i], err = num(c, m.Extra[j]); err != nil {
				return nil, err
			}
		}
		ds.Records[i] = rec
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func parseNumber(cell string, row int, column string) (float64, error) {
	if cell == "" {
		return 0, core.NewRowContractError(row, column, "value is missing")
	}
	switch strings.ToLower(cell) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, core.NewRowContractError(row, column, fmt.Sprintf("not a finite number: %q", cell))
	}
	return v, nil
}
