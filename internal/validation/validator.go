package validation

import "github.com/rendis/fieldflow/pkg/schema"

// Validator checks survey definitions for correctness before sessions are
// started against them.
type Validator interface {
	// ValidateDefinition runs the full pipeline (structural then semantic)
	// and returns all issues found. Warnings do not make a definition invalid.
	ValidateDefinition(def *schema.SurveyDefinition) *schema.ValidationResult
}

// DefinitionValidator is the default pipeline: JSON Schema structural checks
// followed by semantic analysis of cross-references and script wiring.
type DefinitionValidator struct {
	structural *JSONSchemaValidator
}

// NewDefinitionValidator creates a validator with the survey schema pre-compiled.
func NewDefinitionValidator() (*DefinitionValidator, error) {
	structural, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &DefinitionValidator{structural: structural}, nil
}

func (v *DefinitionValidator) ValidateDefinition(def *schema.SurveyDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if def == nil {
		result.AddError("", schema.ErrCodeDefinition, "survey definition is nil")
		return result
	}

	if err := v.structural.ValidateDefinition(def); err != nil {
		appendStructuralError(result, err)
		// Semantic checks assume a structurally valid document.
		return result
	}

	result.Merge(validateSemantic(def))
	return result
}

// appendStructuralError unpacks a FieldflowError carrying schema violations
// into individual issues, or records the error verbatim.
func appendStructuralError(result *schema.ValidationResult, err error) {
	if ferr, ok := err.(*schema.FieldflowError); ok {
		if violations, ok := ferr.Details["violations"].([]string); ok && len(violations) > 0 {
			for _, v := range violations {
				result.AddError("", schema.ErrCodeDefinition, v)
			}
			return
		}
		result.AddError("", schema.ErrCodeDefinition, ferr.Message)
		return
	}
	result.AddError("", schema.ErrCodeDefinition, err.Error())
}
