package gasdata

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"gasnotifier/internal/textnorm"
)

// DefaultSheet is the worksheet holding the readings.
const DefaultSheet = "Gas_2025"

// LoadOptions controls LoadWorkbook.
type LoadOptions struct {
	Sheet string
	// Month optionally restricts the batch to "MM/YYYY" or "M".
	Month       string
	DefaultYear int
	Logger      *zap.Logger
}

// LoadWorkbook reads the readings sheet of an .xlsx workbook. The first
// non-empty row is the header; rows missing the date or the apartment are
// dropped one by one and the remaining order is kept.
func LoadWorkbook(r io.Reader, opts LoadOptions) (Batch, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sheet := opts.Sheet
	if sheet == "" {
		sheet = DefaultSheet
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return Batch{}, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		return Batch{}, fmt.Errorf("sheet %q not found (have %s)", sheet, strings.Join(f.GetSheetList(), ", "))
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Batch{}, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	readings := parseRows(rows, logger)
	if opts.Month != "" {
		readings, err = FilterMonth(readings, opts.Month, opts.DefaultYear)
		if err != nil {
			return Batch{}, err
		}
		logger.Debug("month filter applied", zap.String("month", opts.Month), zap.Int("rows", len(readings)))
	}
	if len(readings) == 0 {
		return Batch{}, ErrNoData
	}
	return Batch{TargetDate: TargetDateOf(readings), Data: readings}, nil
}

func parseRows(rows [][]string, logger *zap.Logger) []Reading {
	var columns []field
	var out []Reading

	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		if columns == nil {
			columns = make([]field, len(row))
			for c, h := range row {
				columns[c] = fieldFor(h)
			}
			continue
		}

		var r Reading
		for c, cell := range row {
			if c >= len(columns) || columns[c] == fieldNone {
				continue
			}
			r.set(columns[c], cell)
		}

		if isHeaderEcho(r) {
			continue
		}
		date, ok := normalizeDate(r.Date)
		if !ok || r.Apartment == "" {
			logger.Debug("skipping row", zap.Int("row", i+1), zap.String("date", r.Date), zap.String("apartment", r.Apartment))
			continue
		}
		r.Date = date
		out = append(out, r)
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// isHeaderEcho reports a header row repeated inside the data.
func isHeaderEcho(r Reading) bool {
	return textnorm.Key(r.Date) == "data leitura" || textnorm.Key(r.Apartment) == "apartamento"
}
