// Package validation checks JSON request bodies against schemas reflected
// from the Go structs they decode into.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON Schema for one payload type.
type Schema struct {
	name     string
	compiled *jsonschemav5.Schema
}

// ConvertStructToJSONSchema converts a Go struct to JSON Schema format.
// Required fields come from `jsonschema:"required"` tags; unknown fields are allowed.
func ConvertStructToJSONSchema(schemaStruct interface{}) ([]byte, error) {
	if schemaStruct == nil {
		return nil, fmt.Errorf("schema struct is nil")
	}

	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  true,
	}
	schema := reflector.Reflect(schemaStruct)

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON schema: %w", err)
	}
	return schemaBytes, nil
}

// Compile reflects schemaStruct and compiles it under the given name.
func Compile(name string, schemaStruct interface{}) (*Schema, error) {
	schemaBytes, err := ConvertStructToJSONSchema(schemaStruct)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema struct for '%s': %w", name, err)
	}

	compiler := jsonschemav5.NewCompiler()
	schemaID := fmt.Sprintf("schema://%s", name)
	if err := compiler.AddResource(schemaID, bytes.NewReader(schemaBytes)); err != nil {
		return nil, fmt.Errorf("failed to add schema '%s': %w", name, err)
	}
	compiled, err := compiler.Compile(schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema '%s': %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompile is Compile for package-level schemas built from static types.
func MustCompile(name string, schemaStruct interface{}) *Schema {
	s, err := Compile(name, schemaStruct)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a raw JSON document.
func (s *Schema) Validate(raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON for '%s': %w", s.name, err)
	}
	return s.ValidateValue(doc)
}

// ValidateValue checks an already decoded value (maps, slices, scalars).
// Typed Go values are round-tripped through JSON first.
func (s *Schema) ValidateValue(v interface{}) error {
	switch v.(type) {
	case map[string]interface{}, []interface{}, string, float64, bool, nil:
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal input for '%s': %w", s.name, err)
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("failed to unmarshal input for '%s': %w", s.name, err)
		}
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("schema validation failed for '%s': %w", s.name, err)
	}
	return nil
}
