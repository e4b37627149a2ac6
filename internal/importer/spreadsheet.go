package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"outletops/pkg/domain"
)

// TemplateFilename is the download name of the blank import template.
const TemplateFilename = "Outlet_Import_Template.xlsx"

const (
	templateSheet = "Template"
	exportSheet   = "Outlets"
	liveDateFmt   = "2006-01-02"
)

// Format selects the export encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "xlsx" or "csv", case-insensitively, with an optional dot.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), ".")) {
	case FormatXLSX, "":
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// templateHeader is the column layout of the import template.
var templateHeader = []string{"Outlet Name", "Brand", "Cities", "Pipeline Stage", "Outlet Status", "Live Date"}

// exportHeader extends the template layout with the description column.
var exportHeader = append(append([]string(nil), templateHeader...), "Description")

var templateRows = [][]string{
	{"Dil Daily - Koramangala", "Dil Daily", "Bangalore", "ONBOARDING REQUEST", "onboarding in progress", "2023-12-26"},
	{"Bihari Bowl - Indiranagar", "Bihari Bowl", "Bangalore", "FASSI APPLY", "onboarding in progress", "2023-11-05"},
}

// WriteTemplate writes the sample import workbook.
func WriteTemplate(w io.Writer) error {
	return writeWorkbook(w, templateSheet, templateHeader, templateRows)
}

// Export writes outlets in the import layout so the file can be edited and
// imported back, where every row matches as an Update.
func Export(w io.Writer, format Format, outlets []domain.Outlet) error {
	rows := make([][]string, 0, len(outlets))
	for _, o := range outlets {
		rows = append(rows, []string{
			o.Name,
			o.Brand,
			o.City,
			o.CurrentStage.Code(),
			string(o.Status),
			o.LastMovedAt.UTC().Format(liveDateFmt),
			o.Description,
		})
	}
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(exportHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		if err := cw.WriteAll(rows); err != nil {
			return fmt.Errorf("write csv rows: %w", err)
		}
		return nil
	case FormatXLSX:
		return writeWorkbook(w, exportSheet, exportHeader, rows)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func writeWorkbook(w io.Writer, sheet string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	all := append([][]string{header}, rows...)
	for r, values := range all {
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(sheet, cell, v); err != nil {
				return fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
