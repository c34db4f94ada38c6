package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/offlinebay/offlinebay/app/job"
)

//go:generate go run ./internal/schema schema.json

//go:embed schema.json
var embeddedSchemaData []byte

// Verify checks the workers file content. Embedded schema must be valid json.
func Verify(f File) error {
	var schema map[string]any
	if err := json.Unmarshal(embeddedSchemaData, &schema); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	if len(f.Workers) == 0 {
		return errors.New("at least one worker is required")
	}

	names := make([]string, 0, len(f.Workers))
	for name := range f.Workers {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := map[job.Kind]string{}
	for _, name := range names {
		kind, err := job.ParseKind(name)
		if err != nil {
			return fmt.Errorf("worker %q: %w", name, err)
		}
		if prev, found := seen[kind]; found {
			return fmt.Errorf("worker %q: %s worker already defined as %q", name, kind, prev)
		}
		seen[kind] = name

		w := f.Workers[name]
		if len(w.Command) == 0 || strings.TrimSpace(w.Command[0]) == "" {
			return fmt.Errorf("worker %q: command is required", name)
		}
		for k := range w.Env {
			if k == "" || strings.ContainsAny(k, "= ") {
				return fmt.Errorf("worker %q: invalid env name %q", name, k)
			}
		}
	}
	return nil
}

// Schema returns embedded json schema of the workers file
func Schema() []byte {
	return embeddedSchemaData
}

// GenerateSchema generates json schema for File
func GenerateSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&File{})
}
