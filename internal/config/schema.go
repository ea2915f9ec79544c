package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	kverrors "github.com/systmms/kvenv/internal/errors"
)

// definitionSchema constrains the shape of kvenv.yaml before the typed
// unmarshal, so misconfigurations surface as one readable message instead
// of a zero-valued struct.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "version": {
      "type": "integer",
      "enum": [1]
    },
    "backends": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {
            "type": "string",
            "enum": ["aws", "azure", "google", "vault"]
          },
          "timeout_ms": {
            "type": "integer",
            "minimum": 1
          }
        }
      }
    }
  }
}`

func validateDefinition(document interface{}) error {
	// yaml.v3 produces map[string]interface{} nodes, which marshal to
	// the JSON document the schema expects.
	jsonDoc, err := json.Marshal(document)
	if err != nil {
		return kverrors.ConfigError{
			Field:   "config",
			Message: fmt.Sprintf("cannot validate configuration: %v", err),
		}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return kverrors.ConfigError{
			Field:   "config",
			Message: fmt.Sprintf("schema validation failed: %v", err),
		}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return kverrors.ConfigError{
		Field:      "config",
		Message:    strings.Join(problems, "; "),
		Suggestion: "Review the backends section of your kvenv.yaml",
	}
}
