package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnreadableFile reports a file that could not be parsed at all.
	ErrUnreadableFile = errors.New("unreadable import file")
	// ErrUnsupportedFormat reports a file extension no source handles.
	ErrUnsupportedFormat = errors.New("unsupported import format")
)

// RowSource turns an uploaded spreadsheet into keyed rows. The first line is
// the header; cells are returned as text and blank rows are skipped.
type RowSource interface {
	ReadRows(ctx context.Context, r io.Reader) ([]Row, error)
}

// XLSXSource reads the first worksheet of an Office Open XML workbook.
type XLSXSource struct{}

// CSVSource reads comma separated text.
type CSVSource struct {
	Comma rune
}

// SourceFor picks a RowSource by file extension.
func SourceFor(filename string) (RowSource, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return XLSXSource{}, nil
	case ".csv":
		return CSVSource{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// ReadRows parses r with the source matching filename.
func ReadRows(ctx context.Context, filename string, r io.Reader) ([]Row, error) {
	src, err := SourceFor(filename)
	if err != nil {
		return nil, err
	}
	return src.ReadRows(ctx, r)
}

// ReadRows implements RowSource.
func (XLSXSource) ReadRows(ctx context.Context, r io.Reader) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableFile)
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrUnreadableFile, sheets[0], err)
	}
	if len(grid) == 0 {
		return []Row{}, nil
	}
	header := grid[0]
	rows := make([]Row, 0, len(grid)-1)
	for i, cells := range grid[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := buildRow(header, cells, i+2)
		if row.Blank() {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadRows implements RowSource.
func (s CSVSource) ReadRows(ctx context.Context, r io.Reader) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reader := csv.NewReader(r)
	if s.Comma != 0 {
		reader.Comma = s.Comma
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rows := make([]Row, 0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
		}
		line, _ := reader.FieldPos(0)
		row := buildRow(header, cells, line)
		if row.Blank() {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// buildRow zips header and cells. Unnamed columns are dropped and the first
// occurrence of a repeated header wins.
func buildRow(header, cells []string, number int) Row {
	values := make(map[string]string, len(header))
	for i, key := range header {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if _, seen := values[key]; seen {
			continue
		}
		if i < len(cells) {
			values[key] = cells[i]
		} else {
			values[key] = ""
		}
	}
	return Row{Number: number, Values: values}
}
