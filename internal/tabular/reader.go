package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/banshee-data/signal.viewer/internal/apperr"
)

// Messages reported to the caller.
const (
	msgInvalidFormat = "Invalid file format"
	msgBadShape      = "CSV file must contain columns: title, class, value1, value2, value3 (case insensitive)"
)

// ReadOptions controls how an uploaded table is read.
type ReadOptions struct {
	// HeaderAbsent treats the first row as data. Rows are then keyed
	// positionally by the canonical keys.
	HeaderAbsent bool
	// MaxRows caps the number of data rows; 0 means unlimited.
	MaxRows int
}

// Result is the outcome of reading one uploaded table.
type Result struct {
	Data        []Record          `json:"data"`
	ColumnNames map[string]string `json:"column_names"`

	// Header is the header row as read, nil when the file had none.
	Header  []string      `json:"-"`
	Mapping ColumnMapping `json:"-"`
}

// Process reads an uploaded table, dispatching on the filename extension
// (.csv or .xlsx, ignoring case).
func Process(ctx context.Context, filename string, r io.Reader, opts ReadOptions) (*Result, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ReadCSV(ctx, r, opts)
	case ".xlsx":
		return ReadXLSX(ctx, r, opts)
	default:
		return nil, apperr.New(apperr.InvalidInputFormat, msgInvalidFormat)
	}
}

// ReadCSV reads a CSV table. A leading byte order mark is honored and input
// that is not valid UTF-8 is decoded as Windows-1252.
func ReadCSV(ctx context.Context, r io.Reader, opts ReadOptions) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	text, err := decodeText(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInputFormat, msgInvalidFormat, err).WithDetails(err.Error())
	}

	cr := csv.NewReader(bytes.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInputFormat, msgInvalidFormat, err).WithDetails(err.Error())
		}
		rows = append(rows, rec)
		if err := checkRowLimit(len(rows), opts); err != nil {
			return nil, err
		}
	}
	return build(ctx, rows, opts)
}

// ReadXLSX reads the first sheet of an Excel workbook. Entirely empty rows
// are skipped and rows are padded to the header width, since the workbook
// omits trailing blank cells.
func ReadXLSX(ctx context.Context, r io.Reader, opts ReadOptions) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInputFormat, msgInvalidFormat, err).WithDetails(err.Error())
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, apperr.New(apperr.InvalidInputFormat, msgInvalidFormat).WithDetails("workbook has no sheets")
	}
	sheetRows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInputFormat, msgInvalidFormat, err).WithDetails(err.Error())
	}

	rows := make([][]string, 0, len(sheetRows))
	for _, row := range sheetRows {
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
		if err := checkRowLimit(len(rows), opts); err != nil {
			return nil, err
		}
	}

	width := expectedColumns
	if !opts.HeaderAbsent && len(rows) > 0 {
		width = len(rows[0])
	}
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
	return build(ctx, rows, opts)
}

// decodeText returns the UTF-8 form of an uploaded text file.
func decodeText(raw []byte) ([]byte, error) {
	fallback := transform.Transformer(transform.Nop)
	if !utf8.Valid(raw) {
		fallback = charmap.Windows1252.NewDecoder()
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(fallback), raw)
	return out, err
}

// checkRowLimit fails once the number of rows read exceeds the data row cap
// plus the header row.
func checkRowLimit(n int, opts ReadOptions) error {
	if opts.MaxRows <= 0 {
		return nil
	}
	limit := opts.MaxRows
	if !opts.HeaderAbsent {
		limit++
	}
	if n > limit {
		return apperr.Newf(apperr.InvalidInputFormat, "Too many rows (> %d)", opts.MaxRows)
	}
	return nil
}

// build validates the header and projects every data row. Nothing is
// returned when any row fails.
func build(ctx context.Context, rows [][]string, opts ReadOptions) (*Result, error) {
	var header []string
	data := rows
	if !opts.HeaderAbsent && len(rows) > 0 {
		header = rows[0]
		data = rows[1:]
	}

	if !Validate(header) {
		return nil, apperr.New(apperr.InvalidInputFormat, msgBadShape)
	}
	mapping := Resolve(header)

	keys := header
	if keys == nil {
		keys = CanonicalKeys[:]
	}

	records := make([]Record, 0, len(data))
	for i, row := range data {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := Project(rowMap(keys, row), mapping)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return &Result{
		Data:        records,
		ColumnNames: mapping.ColumnNames(),
		Header:      header,
		Mapping:     mapping,
	}, nil
}

// rowMap keys the fields of row by keys. Fields beyond len(keys) are
// dropped; keys beyond len(row) are absent. A repeated key keeps its last
// field.
func rowMap(keys, row []string) map[string]string {
	n := min(len(keys), len(row))
	m := make(map[string]string, n)
	for i := 0; i < n; i++ {
		m[keys[i]] = row[i]
	}
	return m
}
