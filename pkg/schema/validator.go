// Package schema validates policy configuration payloads before the admin
// control surface installs them as the active policy: a struct-tagged Go
// config is checked with go-playground/validator, and a loosely-typed JSON
// config is checked against a minimal declared shape.
package schema

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var structValidate = validator.New()

// Validator validates data against a schema
type Validator interface {
	// Validate validates data against the schema
	// Returns an error if validation fails
	Validate(data interface{}) error

	// JSONSchema returns the JSON Schema representation of this validator
	// This is used when sending schemas to AI providers
	JSONSchema() map[string]interface{}
}

// Schema represents a validation schema
// Can be implemented as JSON Schema or Go struct-based schema
type Schema interface {
	// Validator returns the validator for this schema
	Validator() Validator
}

// JSONSchemaValidator validates using JSON Schema
type JSONSchemaValidator struct {
	schema map[string]interface{}
}

// NewJSONSchema creates a new JSON Schema validator
func NewJSONSchema(schema map[string]interface{}) *JSONSchemaValidator {
	return &JSONSchemaValidator{schema: schema}
}

// Validate checks data (expected to be a map[string]interface{} decoded
// from the admin-submitted policy config JSON) against the declared
// "required" and "properties"/"type" entries of the schema. This is a
// deliberately minimal structural check, not a full JSON Schema
// implementation: it covers what the admin policy-swap endpoint needs
// (reject a config missing a required field or carrying the wrong JSON
// type) without pulling in a general-purpose validator.
func (v *JSONSchemaValidator) Validate(data interface{}) error {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf("schema: config must be a JSON object")
	}

	if required, ok := v.schema["required"].([]string); ok {
		for _, field := range required {
			if _, present := obj[field]; !present {
				return fmt.Errorf("schema: missing required field %q", field)
			}
		}
	}

	properties, _ := v.schema["properties"].(map[string]interface{})
	for field, value := range obj {
		propSchema, ok := properties[field].(map[string]interface{})
		if !ok {
			continue
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if !matchesJSONType(value, wantType) {
			return fmt.Errorf("schema: field %q must be of type %q", field, wantType)
		}
	}

	return nil
}

func matchesJSONType(value interface{}, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	default:
		return true
	}
}

// JSONSchema returns the JSON Schema
func (v *JSONSchemaValidator) JSONSchema() map[string]interface{} {
	return v.schema
}

// StructValidator validates using Go struct tags
type StructValidator struct {
	targetType reflect.Type
}

// NewStructSchema creates a new struct-based schema validator
func NewStructSchema(targetType reflect.Type) *StructValidator {
	return &StructValidator{targetType: targetType}
}

// Validate validates data against the struct schema using its `validate`
// struct tags. data's concrete type must match v.targetType.
func (v *StructValidator) Validate(data interface{}) error {
	t := reflect.TypeOf(data)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if v.targetType != nil && t != v.targetType {
		return fmt.Errorf("schema: expected %s, got %T", v.targetType, data)
	}
	if err := structValidate.Struct(data); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// JSONSchema generates a JSON Schema from the struct type
func (v *StructValidator) JSONSchema() map[string]interface{} {
	// Only a bare object schema is returned; the struct's fields and
	// validate tags are not translated into properties.
	return map[string]interface{}{
		"type": "object",
	}
}

// SimpleJSONSchema is a simple implementation of Schema
type SimpleJSONSchema struct {
	validator *JSONSchemaValidator
}

// NewSimpleJSONSchema creates a simple JSON Schema
func NewSimpleJSONSchema(schema map[string]interface{}) *SimpleJSONSchema {
	return &SimpleJSONSchema{
		validator: NewJSONSchema(schema),
	}
}

// Validator returns the validator
func (s *SimpleJSONSchema) Validator() Validator {
	return s.validator
}

// SimpleStructSchema is a simple implementation of Schema using structs
type SimpleStructSchema struct {
	validator *StructValidator
}

// NewSimpleStructSchema creates a simple struct schema
func NewSimpleStructSchema(targetType reflect.Type) *SimpleStructSchema {
	return &SimpleStructSchema{
		validator: NewStructSchema(targetType),
	}
}

// Validator returns the validator
func (s *SimpleStructSchema) Validator() Validator {
	return s.validator
}
