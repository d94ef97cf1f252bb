package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestASCII(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"gás", "gas"},
		{"Cálculo", "Calculo"},
		{"Relatório gerado", "Relatorio gerado"},
		{"Consumo(m³)", "Consumo(m)"},
		{"🔥 Consumo", " Consumo"},
		{"linha 1\r\nlinha 2", "linha 1\nlinha 2"},
		{"─────", ""},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ASCII(tt.in), "input %q", tt.in)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "valor final(r$)", Key("  Valor   final(R$) "))
	assert.Equal(t, Key("Data Leitura"), Key("data leitura"))
}
