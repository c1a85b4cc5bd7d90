package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const profileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "columns", "leadColumn", "leadPattern"],
  "definitions": {
    "marker": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "contains": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "pattern": {"type": "string"}
      },
      "anyOf": [
        {"required": ["contains"]},
        {"required": ["pattern"]}
      ]
    },
    "markers": {"type": "array", "items": {"$ref": "#/definitions/marker"}}
  },
  "properties": {
    "name": {"type": "string", "pattern": "^[a-z0-9][a-z0-9_-]*$"},
    "description": {"type": "string"},
    "columns": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "xStart", "xEnd"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "xStart": {"type": "number", "minimum": 0},
          "xEnd": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    },
    "leadColumn": {"type": "string", "minLength": 1},
    "leadPattern": {"type": "string", "minLength": 1},
    "rowTolerance": {"type": "number", "minimum": 0, "maximum": 20},
    "detect": {"$ref": "#/definitions/markers"},
    "pageFilter": {"$ref": "#/definitions/markers"},
    "accountEnd": {"$ref": "#/definitions/markers"},
    "sectionStart": {"$ref": "#/definitions/markers"},
    "sectionEnd": {"$ref": "#/definitions/markers"},
    "headers": {"$ref": "#/definitions/markers"},
    "accountStart": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pattern", "key"],
        "properties": {
          "pattern": {"type": "string", "minLength": 1},
          "key": {"type": "string", "minLength": 1},
          "currencyGroup": {"type": "integer", "minimum": 0}
        }
      }
    },
    "amounts": {
      "type": "object",
      "required": ["rule", "targets"],
      "properties": {
        "rule": {"enum": ["trailing-pair", "signed-split"]},
        "format": {"enum": ["us", "br"]},
        "targets": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "balanceSource": {"type": "string"},
        "dropSource": {"type": "boolean"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("profile.schema.json", strings.NewReader(profileSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("profile.schema.json")
	})
	return schema, schemaErr
}

// Validate checks a decoded profile against the profile JSON schema and
// then compiles it.
func Validate(p *Profile) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("unmarshal profile: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return &ValidationError{Profile: p.Name, Problems: []string{err.Error()}}
	}
	return p.Compile()
}
