package tabular

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Template download names.
const (
	TemplateCSVName  = "Ternary_Plot_Template.csv"
	TemplateXLSXName = "Ternary_Plot_Template.xlsx"
)

//go:embed Ternary_Plot_Template.csv
var templateCSV []byte

// TemplateCSV returns the example upload file.
func TemplateCSV() []byte {
	return bytes.Clone(templateCSV)
}

// templateRows parses the embedded template.
func templateRows() ([][]string, error) {
	return csv.NewReader(bytes.NewReader(templateCSV)).ReadAll()
}

// WriteTemplateXLSX writes the template rows as a single-sheet workbook.
// Value cells are stored as text, matching what ReadXLSX yields for them.
func WriteTemplateXLSX(w io.Writer) error {
	rows, err := templateRows()
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write template row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 14); err != nil {
		return fmt.Errorf("failed to size template columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
