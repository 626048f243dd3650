package indexing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// artifactSchema describes the generated search index artifact.
// Only location and page are required on each record. An empty location
// is the site root; an empty page name is not allowed.
const artifactSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["docs"],
  "properties": {
    "docs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["location", "page"],
        "properties": {
          "location": {"type": "string"},
          "page": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "text": {"type": "string"},
          "category": {"enum": ["section", "page", ""]}
        }
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var schemaDoc interface{}
	if err := json.Unmarshal([]byte(artifactSchema), &schemaDoc); err != nil {
		return nil, fmt.Errorf("invalid artifact schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(artifactSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to add artifact schema: %w", err)
	}
	return compiler.Compile(artifactSchemaURL)
})

// validateShape checks a decoded artifact against the artifact schema
func validateShape(doc interface{}) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile artifact schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			leaf := deepestCause(validationErr)
			return &MalformedIndexError{
				Path:   jsonPath(leaf.InstanceLocation),
				Reason: strings.TrimSpace(leaf.Error()),
			}
		}
		return &MalformedIndexError{Reason: err.Error()}
	}
	return nil
}

// deepestCause follows the first cause chain down to the most specific error
func deepestCause(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}

func jsonPath(location []string) string {
	if len(location) == 0 {
		return "$"
	}
	return "$." + strings.Join(location, ".")
}
