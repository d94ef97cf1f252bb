package report

import (
	"encoding/json"
	"fmt"

	"gasnotifier/internal/gasdata"
	"gasnotifier/internal/validation"
)

// Payload is the {target_date, data} body accepted by the format endpoints.
// Rows stay loosely typed so locale-formatted numbers survive decoding.
type Payload struct {
	TargetDate string           `json:"target_date" jsonschema:"required,minLength=1"`
	Data       []map[string]any `json:"data" jsonschema:"required"`
}

var payloadSchema = validation.MustCompile("report-payload", &Payload{})

// ValidatePayload checks a raw request body against the Payload schema.
func ValidatePayload(raw []byte) error {
	return payloadSchema.Validate(raw)
}

// DecodePayload validates raw and converts its rows to readings.
func DecodePayload(raw []byte) (string, []gasdata.Reading, error) {
	if err := ValidatePayload(raw); err != nil {
		return "", nil, err
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", nil, fmt.Errorf("decoding payload: %w", err)
	}
	return p.TargetDate, gasdata.FromRecords(p.Data), nil
}
