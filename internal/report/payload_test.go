package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePayload(t *testing.T) {
	require.NoError(t, ValidatePayload([]byte(`{"target_date":"01/03/2025","data":[{"apartamento":"101"}]}`)))

	assert.Error(t, ValidatePayload([]byte(`{"data":[]}`)))
	assert.Error(t, ValidatePayload([]byte(`{"target_date":"","data":[]}`)))
	assert.Error(t, ValidatePayload([]byte(`{"target_date":"x"}`)))
	assert.Error(t, ValidatePayload([]byte(`{"target_date":"x","data":"rows"}`)))
}

func TestDecodePayload(t *testing.T) {
	label, rows, err := DecodePayload([]byte(`{"target_date":"01/03/2025","data":[{"apartamento":"101","valor_final_rs":"R$ 45,00"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "01/03/2025", label)
	require.Len(t, rows, 1)
	assert.Equal(t, 45.0, rows[0].FinalAmount)

	msg, err := Render(rows, label)
	require.NoError(t, err)
	assert.Contains(t, msg, "R$ 45,00")
}
