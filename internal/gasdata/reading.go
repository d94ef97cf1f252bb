// Package gasdata loads monthly gas readings from the building's workbook and
// from JSON payloads into one canonical row shape.
package gasdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/cast"

	"gasnotifier/internal/textnorm"
)

// ErrNoData is returned when no valid row survives loading and filtering.
var ErrNoData = errors.New("no valid data found")

// UnknownDate is the batch label used when no row carries a date.
const UnknownDate = "Data desconhecida"

// Reading is one apartment's row for a reading date.
type Reading struct {
	Date           string  `json:"data_leitura"`
	Apartment      string  `json:"apartamento"`
	CurrentReading float64 `json:"leitura_atual"`
	ConsumptionM3  float64 `json:"consumo_m3"`
	Calculation    float64 `json:"calculo"`
	FinalAmount    float64 `json:"valor_final_rs"`
}

// Batch is the {target_date, data} document exchanged with the transports.
type Batch struct {
	TargetDate string    `json:"target_date"`
	Data       []Reading `json:"data"`
}

type field int

const (
	fieldNone field = iota
	fieldDate
	fieldApartment
	fieldCurrent
	fieldConsumption
	fieldCalculation
	fieldFinal
)

// headerAliases maps folded header names (see textnorm.Key) to fields. Both
// the workbook captions and the JSON keys are listed.
var headerAliases = map[string]field{
	"data leitura":    fieldDate,
	"data_leitura":    fieldDate,
	"apartamento":     fieldApartment,
	"leitura atual":   fieldCurrent,
	"leitura_atual":   fieldCurrent,
	"consumo(m)":      fieldConsumption,
	"consumo(m3)":     fieldConsumption,
	"consumo m3":      fieldConsumption,
	"consumo_m3":      fieldConsumption,
	"calculo":         fieldCalculation,
	"valor final(r$)": fieldFinal,
	"valor final":     fieldFinal,
	"valor_final_rs":  fieldFinal,
}

func fieldFor(header string) field {
	return headerAliases[textnorm.Key(header)]
}

// round rounds v to the given number of decimal places.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// set stores raw into the reading field f, coercing and rounding numerics.
func (r *Reading) set(f field, raw any) {
	switch f {
	case fieldDate:
		r.Date = strings.TrimSpace(cast.ToString(raw))
	case fieldApartment:
		r.Apartment = strings.TrimSpace(cast.ToString(raw))
	case fieldCurrent:
		r.CurrentReading = round(ParseNumber(raw), 4)
	case fieldConsumption:
		r.ConsumptionM3 = round(ParseNumber(raw), 4)
	case fieldCalculation:
		r.Calculation = round(ParseNumber(raw), 4)
	case fieldFinal:
		r.FinalAmount = round(ParseNumber(raw), 2)
	}
}

// FromRecords converts loosely typed JSON rows into readings. Numeric fields
// accept numbers or locale-formatted strings. Records with no recognised
// field at all are skipped; a missing apartment is left for the renderer to
// reject.
func FromRecords(records []map[string]any) []Reading {
	out := make([]Reading, 0, len(records))
	for _, rec := range records {
		var r Reading
		matched := false
		for k, v := range rec {
			f := fieldFor(k)
			if f == fieldNone || v == nil {
				continue
			}
			r.set(f, v)
			matched = true
		}
		if !matched {
			continue
		}
		if d, ok := normalizeDate(r.Date); ok {
			r.Date = d
		}
		out = append(out, r)
	}
	return out
}

// TargetDateOf returns the first non-empty reading date, or UnknownDate.
func TargetDateOf(rows []Reading) string {
	for _, r := range rows {
		if r.Date != "" {
			return r.Date
		}
	}
	return UnknownDate
}

type batchFile struct {
	TargetDate string           `json:"target_date"`
	Data       []map[string]any `json:"data"`
}

// LoadBatchFile reads an output.json style {target_date, data} document.
func LoadBatchFile(path string) (Batch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("reading batch file: %w", err)
	}
	var doc batchFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Batch{}, fmt.Errorf("parsing batch file %s: %w", path, err)
	}

	rows := FromRecords(doc.Data)
	if len(rows) == 0 {
		return Batch{}, ErrNoData
	}
	target := strings.TrimSpace(doc.TargetDate)
	if target == "" {
		target = TargetDateOf(rows)
	}
	return Batch{TargetDate: target, Data: rows}, nil
}
