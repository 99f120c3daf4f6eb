// Command schema-generator regenerates schema/settings.schema.json from the
// settings types. Run it from the repository root after changing them.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/logging"
)

func main() {
	out := flag.String("out", filepath.Join("schema", "settings.schema.json"), "output file")
	flag.Parse()

	schemaBytes, err := config.GenerateSchema(map[string]interface{}{
		"logging": &logging.Config{},
	})
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}
	if err := os.WriteFile(*out, append(schemaBytes, '\n'), 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}

	log.Printf("Generated settings schema at %s", *out)
}
