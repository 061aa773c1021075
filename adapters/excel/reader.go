package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// File types understood by DataReader
const (
	FileTypeCSV  = "csv"
	FileTypeXLSX = "xlsx"
)

// DataReader reads Excel and CSV files
type DataReader struct {
	filePath string
	fileType string
	sheet    string
}

// NewDataReader creates a reader, choosing the format from the extension
func NewDataReader(filePath string) *DataReader {
	fileType := FileTypeXLSX
	if strings.EqualFold(filepath.Ext(filePath), ".csv") {
		fileType = FileTypeCSV
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// WithSheet reads the named worksheet instead of the first one
func (r *DataReader) WithSheet(sheet string) *DataReader {
	r.sheet = sheet
	return r
}

// FileType returns "csv" or "xlsx"
func (r *DataReader) FileType() string {
	return r.fileType
}

// ReadData reads the file into a Table
func (r *DataReader) ReadData() (*Table, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case FileTypeCSV:
		return r.readCSVData()
	case FileTypeXLSX:
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

func (r *DataReader) readExcelData() (*Table, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("Excel file has no worksheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	return processRows(rows, "Excel")
}

func (r *DataReader) readCSVData() (*Table, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// ReadCSV reads CSV content from any reader
func ReadCSV(in io.Reader) (*Table, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return processRows(rows, "CSV")
}

// processRows splits off the header row and trims every cell
func processRows(rows [][]string, kind string) (*Table, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s file must have at least a header row and one data row", kind)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		cells := make([]string, len(headers))
		for j := 0; j < len(row) && j < len(headers); j++ {
			cells[j] = strings.TrimSpace(row[j])
		}
		data = append(data, cells)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s file has no data rows", kind)
	}
	return &Table{Headers: headers, Rows: data}, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
