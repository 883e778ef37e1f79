// Package validate checks tool invocation requests against a server's
// advertised schema before any network call is made.
package validate

import (
	"fmt"

	"github.com/toolgate/toolgate/internal/model"
	"github.com/toolgate/toolgate/pkg/types"
)

// Validator checks invocation parameters against tool descriptors.
// The zero value is the permissive validator.
type Validator struct {
	// Strict promotes type mismatches from warnings to errors.
	Strict bool
}

// Validate checks the named tool and its parameters against the given
// descriptors. An unknown tool or a missing required parameter is an
// error-level finding; parameters the schema does not declare are accepted
// silently, and a declared-type mismatch is a warning unless Strict is set.
func (v *Validator) Validate(toolName string, params map[string]any, tools []model.ToolDescriptor) []types.ValidationReason {
	tool, ok := findTool(toolName, tools)
	if !ok {
		return []types.ValidationReason{{
			Message:  fmt.Sprintf("tool %q is not advertised by this server", toolName),
			Severity: types.SeverityError,
		}}
	}

	var reasons []types.ValidationReason
	for _, spec := range tool.Params {
		value, present := params[spec.Name]
		if !present {
			if spec.Required {
				reasons = append(reasons, types.ValidationReason{
					Parameter: spec.Name,
					Message:   fmt.Sprintf("required parameter %q is missing", spec.Name),
					Severity:  types.SeverityError,
				})
			}
			continue
		}
		if spec.Type == "" || matchesType(value, spec.Type) {
			continue
		}
		severity := types.SeverityWarning
		if v.Strict {
			severity = types.SeverityError
		}
		reasons = append(reasons, types.ValidationReason{
			Parameter: spec.Name,
			Message:   fmt.Sprintf("parameter %q should be of type %s", spec.Name, spec.Type),
			Severity:  severity,
		})
	}
	return reasons
}

// HasErrors reports whether any reason is error-level.
func HasErrors(reasons []types.ValidationReason) bool {
	for _, r := range reasons {
		if r.Severity == types.SeverityError {
			return true
		}
	}
	return false
}

// Warnings filters the reasons down to the warning-level ones.
func Warnings(reasons []types.ValidationReason) []types.ValidationReason {
	var warnings []types.ValidationReason
	for _, r := range reasons {
		if r.Severity == types.SeverityWarning {
			warnings = append(warnings, r)
		}
	}
	return warnings
}

func findTool(name string, tools []model.ToolDescriptor) (*model.ToolDescriptor, bool) {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i], true
		}
	}
	return nil, false
}

// matchesType checks a decoded JSON value against a JSON-Schema primitive
// type name. Unknown type names match anything.
func matchesType(value any, typeName string) bool {
	switch typeName {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}
