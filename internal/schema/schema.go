// Package schema turns caller-supplied field lists into the strict JSON
// schema sent to the language model as a response format.
package schema

import (
	"errors"
	"fmt"
)

const maxFieldNameLen = 100

type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
)

var (
	ErrUnsupportedFieldType = errors.New("unsupported field type")
	ErrInvalidFieldName     = errors.New("invalid field name")
)

// FieldDefinition is a pure value type; ordering of a field list is
// significant for fingerprinting.
type FieldDefinition struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Validate checks boundary constraints on a single field definition.
func (f FieldDefinition) Validate() error {
	if f.Name == "" || len(f.Name) > maxFieldNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidFieldName, f.Name)
	}
	if f.Type != FieldTypeString && f.Type != FieldTypeNumber {
		return fmt.Errorf("%w: %q", ErrUnsupportedFieldType, f.Type)
	}
	return nil
}

type Property struct {
	Type string `json:"type"`
}

// JSONSchema is the strict object schema the model must conform to: every
// property required, nothing extra allowed.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// Build converts an ordered field list into a strict JSON schema. Duplicate
// names are not an error: the last definition wins and the required list
// carries each name once. Field types outside {string, number} are rejected
// here even though the boundary validates them too.
func Build(fields []FieldDefinition) (JSONSchema, error) {
	properties := make(map[string]Property, len(fields))
	required := make([]string, 0, len(fields))

	for _, f := range fields {
		var propType string
		switch f.Type {
		case FieldTypeString:
			propType = "string"
		case FieldTypeNumber:
			propType = "number"
		default:
			return JSONSchema{}, fmt.Errorf("%w: %q", ErrUnsupportedFieldType, f.Type)
		}

		if _, seen := properties[f.Name]; !seen {
			required = append(required, f.Name)
		}
		properties[f.Name] = Property{Type: propType}
	}

	return JSONSchema{
		Type:                 "object",
		Properties:           properties,
		Required:             required,
		AdditionalProperties: false,
	}, nil
}
