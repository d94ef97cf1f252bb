package gasdata

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"nil", nil, 0},
		{"int", 42, 42},
		{"float", 12.5, 12.5},
		{"json number", json.Number("3.25"), 3.25},
		{"plain decimal", "12.5", 12.5},
		{"comma decimal", "12,5", 12.5},
		{"brazilian thousands", "1.234,56", 1234.56},
		{"us thousands", "1,234.56", 1234.56},
		{"currency", "R$ 45,00", 45},
		{"percent", "12%", 12},
		{"repeated dots", "1.234.567", 1234567},
		{"repeated commas", "1,234,567", 1234567},
		{"negative", "-3,5", -3.5},
		{"blank", "   ", 0},
		{"garbage", "abc", 0},
		{"nan", math.NaN(), 0},
		{"struct", struct{}{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseNumber(tt.in), 1e-9)
		})
	}
}
