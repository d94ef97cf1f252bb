// Package report renders a batch of gas readings into the chat message sent
// to residents.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gasnotifier/internal/gasdata"
	"gasnotifier/internal/textnorm"
)

const (
	intro = "Esta é uma mensagem automática do sistema de consumo de gás."
	// Separator closes every apartment block.
	Separator = "-------------------------"
)

// ValidationError reports rows the renderer cannot format.
type ValidationError struct {
	Row    int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row+1, e.Reason)
}

// Render formats rows under label. Output is ASCII only.
func Render(rows []gasdata.Reading, label string) (string, error) {
	for i, r := range rows {
		if strings.TrimSpace(r.Apartment) == "" {
			return "", &ValidationError{Row: i, Reason: "missing apartamento"}
		}
	}
	if strings.TrimSpace(label) == "" {
		label = gasdata.TargetDateOf(rows)
	}

	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "*Consumo de gas e valor a pagar %s*\n\n", label)

	for _, r := range rows {
		fmt.Fprintf(&b, "Apartamento: *%s*\n", r.Apartment)
		fmt.Fprintf(&b, "Leitura atual: %s\n", formatNumber(r.CurrentReading))
		fmt.Fprintf(&b, "Consumo: _%s_\n", formatNumber(r.ConsumptionM3))
		fmt.Fprintf(&b, "Valor final: *%s*\n", FormatBRL(r.FinalAmount))
		b.WriteString(Separator)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "_Relatorio gerado em %s_\n", label)
	fmt.Fprintf(&b, "_Total de apartamentos: %d_", len(rows))

	return textnorm.ASCII(b.String()), nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatBRL formats v as Brazilian currency: "R$ 1.234,56".
func FormatBRL(v float64) string {
	neg := v < 0
	cents := int64(math.Round(math.Abs(v) * 100))
	whole := strconv.FormatInt(cents/100, 10)

	var grouped strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(c)
	}

	sign := ""
	if neg && cents > 0 {
		sign = "-"
	}
	return fmt.Sprintf("R$ %s%s,%02d", sign, grouped.String(), cents%100)
}
