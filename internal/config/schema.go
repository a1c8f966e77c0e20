package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator validates a decoded plugin configuration against an
// optional JSON Schema the plugin supplies, grounded on the teacher's
// gojsonschema-based policy validation idiom. Most plugins don't need
// this — struct decoding plus UnknownKeysFor already catches typos and
// unknown fields — but it's available for plugins whose configuration
// has cross-field constraints a struct tag can't express.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

func NewSchemaValidator(schemaJSON string) (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// ConfigInvalidError reports every schema violation with a JSON-pointer
// field path, so the operator can fix a config without guessing which
// key is wrong.
type ConfigInvalidError struct {
	Messages []string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("config invalid: %s", strings.Join(e.Messages, "; "))
}

// Validate checks decoded (typically the same struct DecodePlugin just
// populated) against the compiled schema.
func (v *SchemaValidator) Validate(decoded any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(decoded))
	if err != nil {
		return fmt.Errorf("run config schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	messages := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		messages = append(messages, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return &ConfigInvalidError{Messages: messages}
}
