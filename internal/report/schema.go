package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/detection-report-v1.schema.json
var schemaJSON []byte

const schemaURL = "https://clueless.local/schema/detection-report-v1.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Validate checks a JSON-encoded report against the report schema.
func Validate(data []byte) error {
	s, err := compiled()
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal report: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("report schema: %w", err)
	}
	return nil
}

// Schema returns the raw JSON schema for reports.
func Schema() []byte {
	return bytes.Clone(schemaJSON)
}
