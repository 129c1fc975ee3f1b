package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/fieldflow/pkg/schema"
)

// surveySchemaJSON is the JSON Schema for SurveyDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const surveySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://fieldflow.dev/schemas/survey.json",
  "type": "object",
  "required": ["sections", "questions"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string" },
    "dialect": {
      "type": "string",
      "enum": ["expr", "cel", "jq"]
    },
    "eligibility_script": { "type": "string" },
    "require_consent": { "type": "boolean" },
    "require_sample": { "type": "boolean" },
    "sections": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/section" }
    },
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/question" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "section": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "type": {
          "type": "string",
          "enum": ["eligibility", "survey", "consent", "testing", "conclusion"]
        }
      },
      "additionalProperties": false
    },
    "question": {
      "type": "object",
      "required": ["id", "short_name", "type", "text", "section_id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "short_name": {
          "type": "string",
          "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"
        },
        "language": { "type": "string" },
        "type": {
          "type": "string",
          "enum": ["single_choice", "numeric", "free_text", "multi_select"]
        },
        "text": { "type": "string", "minLength": 1 },
        "section_id": { "type": "string", "minLength": 1 },
        "pre_script": { "type": "string" },
        "validation_script": { "type": "string" },
        "validation_error_text": { "type": "string" },
        "skip_to_script": { "type": "string" },
        "skip_to_target": { "type": "string" },
        "min_selections": { "type": "integer", "minimum": 0 },
        "max_selections": { "type": "integer", "minimum": 1 },
        "options": {
          "type": "array",
          "items": { "$ref": "#/$defs/option" }
        }
      },
      "additionalProperties": false
    },
    "option": {
      "type": "object",
      "required": ["index", "text"],
      "properties": {
        "index": { "type": "integer", "minimum": 0 },
        "text": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates survey definitions against the embedded
// JSON Schema Draft 2020-12 document. Safe for concurrent use.
type JSONSchemaValidator struct {
	surveySchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the survey schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(surveySchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal survey schema: %w", err)
	}
	if err := c.AddResource("https://fieldflow.dev/schemas/survey.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add survey schema resource: %w", err)
	}

	compiled, err := c.Compile("https://fieldflow.dev/schemas/survey.json")
	if err != nil {
		return nil, fmt.Errorf("compile survey schema: %w", err)
	}

	return &JSONSchemaValidator{surveySchema: compiled}, nil
}

// ValidateDefinition validates a SurveyDefinition against the survey JSON Schema.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.SurveyDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeDefinition, "survey definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeDefinition, "failed to serialize survey definition").WithCause(err)
	}

	if err := v.surveySchema.Validate(doc); err != nil {
		return toFieldflowError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFieldflowError converts a jsonschema.ValidationError into a FieldflowError
// with one message per violated constraint.
func toFieldflowError(err error) *schema.FieldflowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeDefinition, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeDefinition, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeDefinition, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("definition failed schema validation with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeDefinition, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
