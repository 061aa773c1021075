package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"counterfact/domain/dataset"

	"github.com/xuri/excelize/v2"
)

// MappingFor returns the role mapping matching the columns WriteCSV and
// WriteXLSX emit for ds.
func MappingFor(ds *dataset.Dataset) dataset.RoleMapping {
	m := dataset.DefaultRoleMapping()
	if ds.Columns.Cost {
		m.Cost = dataset.RoleCost
	}
	if ds.Columns.Group {
		m.Group = groupHeader(ds)
	}
	if ds.Columns.Instrument {
		m.Instrument = dataset.RoleInstrument
	}
	if ds.Columns.Period {
		m.Period = dataset.RolePeriod
	}
	m.Covariates = append([]string(nil), ds.CovariateNames...)
	m.Extra = extraNames(ds)
	return m
}

// WriteCSV writes ds with one column per mapped role
func WriteCSV(w io.Writer, ds *dataset.Dataset) error {
	out := csv.NewWriter(w)
	if err := out.Write(headerRow(ds)); err != nil {
		return err
	}
	for i := range ds.Records {
		if err := out.Write(recordRow(ds, i)); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

// WriteXLSX writes ds to the first worksheet of a new workbook at path
func WriteXLSX(path string, ds *dataset.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := headerRow(ds)
	if err := setRow(f, sheet, 1, toCells(header)); err != nil {
		return err
	}
	for i := range ds.Records {
		row := recordRow(ds, i)
		cells := make([]interface{}, len(row))
		for j, v := range row {
			if num, err := strconv.ParseFloat(v, 64); err == nil && !isTextColumn(header[j], ds) {
				cells[j] = num
			} else {
				cells[j] = v
			}
		}
		if err := setRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func isTextColumn(header string, ds *dataset.Dataset) bool {
	return header == dataset.RoleUnit || (ds.Columns.Group && header == groupHeader(ds))
}

func headerRow(ds *dataset.Dataset) []string {
	m := MappingFor(ds)
	h := []string{m.Unit, m.Treatment, m.Outcome, m.LogPropensity}
	for _, name := range []string{m.Cost, m.Group, m.Instrument, m.Period} {
		if name != "" {
			h = append(h, name)
		}
	}
	h = append(h, m.Covariates...)
	return append(h, m.Extra...)
}

func recordRow(ds *dataset.Dataset, i int) []string {
	r := ds.Records[i]
	row := []string{r.UnitID, strconv.Itoa(r.Treatment), formatFloat(r.Outcome), formatFloat(r.LogPropensity)}
	if ds.Columns.Cost {
		row = append(row, formatFloat(r.Cost))
	}
	if ds.Columns.Group {
		row = append(row, r.Group)
	}
	if ds.Columns.Instrument {
		row = append(row, formatFloat(r.Instrument))
	}
	if ds.Columns.Period {
		row = append(row, formatFloat(r.Period))
	}
	for _, v := range r.Covariates {
		row = append(row, formatFloat(v))
	}
	for _, name := range extraNames(ds) {
		row = append(row, formatFloat(ds.Extra[name][i]))
	}
	return row
}

func groupHeader(ds *dataset.Dataset) string {
	if ds.GroupColumn != "" {
		return ds.GroupColumn
	}
	return dataset.RoleGroup
}

func extraNames(ds *dataset.Dataset) []string {
	names := make([]string, 0, len(ds.Extra))
	for name := range ds.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
