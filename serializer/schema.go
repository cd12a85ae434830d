// Package serializer implements the text-wire codec of §4.2: JSON-schema
// validation followed by tagged-variant decode, and version-aware encode.
package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator validates a raw JSON payload against the published
// message schema before it is ever handed to message.DecodeEnvelope. Kept
// as an interface so tests can substitute a permissive stub without
// shipping the real (large) schema document.
type SchemaValidator interface {
	Validate(payload []byte) error
}

// JSONSchemaValidator wraps github.com/xeipuuv/gojsonschema against a single
// compiled schema document, following the same "validate before decode"
// shape the spec requires of every server-side serializer.
type JSONSchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewJSONSchemaValidator compiles schemaJSON (the published message schema)
// once at construction time.
func NewJSONSchemaValidator(schemaJSON []byte) (*JSONSchemaValidator, error) {
	loader := gojsonschema.NewBytesLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("compiling message schema: %w", err)
	}
	return &JSONSchemaValidator{schema: schema}, nil
}

func (v *JSONSchemaValidator) Validate(payload []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) == 0 {
			return fmt.Errorf("schema validation failed")
		}
		return fmt.Errorf("schema validation failed: %s", errs[0].String())
	}
	return nil
}

// NoopValidator accepts every payload that is at least syntactically valid
// JSON. Used by tests and by deployments that ship without the schema file
// (the schema document itself is out of scope per spec §1).
type NoopValidator struct{}

func (NoopValidator) Validate(payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("payload is not valid JSON")
	}
	return nil
}
