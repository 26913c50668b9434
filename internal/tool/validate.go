package tool

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ValidateParams checks params against a JSON-schema document (stored as a
// generic map on the descriptor). A nil schema accepts anything.
func ValidateParams(schemaDoc map[string]any, params map[string]any) error {
	if len(schemaDoc) == 0 {
		return nil
	}
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return resolved.Validate(params)
}
