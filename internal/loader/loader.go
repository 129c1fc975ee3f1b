package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/fieldflow/pkg/schema"
)

// LoadFile reads a survey definition from disk, choosing the decoder by
// file extension (.json, .yaml, .yml).
func LoadFile(path string) (*schema.SurveyDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDefinition, "read definition file: %v", err).WithCause(err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(data)
	case ".yaml", ".yml":
		return LoadYAML(data)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeDefinition,
			"unsupported definition format %q (expected .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// LoadJSON decodes a survey definition from JSON. Unknown fields are rejected
// so typos in authored definitions surface as errors instead of silent drops.
func LoadJSON(data []byte) (*schema.SurveyDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var def schema.SurveyDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDefinition, "decode JSON definition: %v", err).WithCause(err)
	}
	return &def, nil
}

// LoadYAML decodes a survey definition from YAML with strict field checking.
func LoadYAML(data []byte) (*schema.SurveyDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def schema.SurveyDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDefinition, "decode YAML definition: %v", err).WithCause(err)
	}
	return &def, nil
}

// Dump serializes a definition back to JSON, e.g. for storage or echo output.
func Dump(def *schema.SurveyDefinition) ([]byte, error) {
	b, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode definition: %w", err)
	}
	return b, nil
}
