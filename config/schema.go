package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for the settings file. Each entry
// of sections adds a top-level property reflected from the given value, so
// packages that own a section (such as logging) describe it themselves.
func GenerateSchema(sections map[string]interface{}) ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	s := r.Reflect(&Config{})
	s.Title = "watchd settings"
	s.Description = "Settings for the watchd directory watcher."
	s.Version = "http://json-schema.org/draft-07/schema#"
	s.Required = nil

	for key, value := range sections {
		s.Properties.Set(key, r.Reflect(value))
	}

	return json.MarshalIndent(s, "", "  ")
}
