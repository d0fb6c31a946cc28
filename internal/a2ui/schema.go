package a2ui

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// messageSchema is the structural schema every template and rendered
// message list must satisfy.
const messageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "anyOf": [
      {
        "required": ["surfaceUpdate"],
        "properties": {
          "surfaceUpdate": {
            "type": "object",
            "required": ["surfaceId", "components"],
            "properties": {
              "surfaceId": {"type": "string"},
              "components": {"type": "array"}
            }
          }
        }
      },
      {
        "required": ["dataModelUpdate"],
        "properties": {
          "dataModelUpdate": {
            "type": "object",
            "required": ["surfaceId", "contents"],
            "properties": {
              "surfaceId": {"type": "string"},
              "contents": {"type": "array"}
            }
          }
        }
      },
      {
        "required": ["beginRendering"],
        "properties": {
          "beginRendering": {
            "type": "object",
            "required": ["surfaceId", "root"],
            "properties": {
              "surfaceId": {"type": "string"},
              "root": {"type": "string"}
            }
          }
        }
      }
    ]
  }
}`

const schemaURL = "https://aibank.local/schemas/a2ui-messages.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString(schemaURL, messageSchema)
	})
	return compiledSchema, schemaErr
}

// Validate checks a decoded message list against the A2UI schema.
func Validate(messages any) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile a2ui schema: %w", err)
	}
	if err := s.Validate(messages); err != nil {
		return fmt.Errorf("a2ui schema violation: %w", err)
	}
	return nil
}
