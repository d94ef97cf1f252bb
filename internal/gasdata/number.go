package gasdata

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

var numberNoise = strings.NewReplacer("R$", "", "r$", "", "%", "", " ", "", "\u00a0", "", "\t", "")

// ParseNumber coerces a cell or JSON value into a float. It understands
// Brazilian formatting ("1.234,56", "R$ 45,00") as well as plain decimals.
// Anything it cannot read becomes 0; it never panics.
func ParseNumber(v any) float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		f = parseNumericString(t)
	case []byte:
		f = parseNumericString(string(t))
	default:
		var err error
		f, err = cast.ToFloat64E(v)
		if err != nil {
			return 0
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parseNumericString(s string) float64 {
	s = numberNoise.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}

	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		// the right-most separator is the decimal one
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
