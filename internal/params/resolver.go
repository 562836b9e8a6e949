package params

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bpm-tools/bpm/internal/descriptor"
	"github.com/bpm-tools/bpm/internal/interpolation"
)

const (
	missingParametersTemplateConstant = "missing required parameters: %s"
	coercionFailureTemplateConstant   = "parameter %q: cannot coerce %v to %s"
	parameterListSeparatorConstant    = ", "
)

// Truthy spellings accepted for bool coercion.
var truthyBoolSpellings = map[string]struct{}{
	"1":    {},
	"true": {},
	"yes":  {},
	"y":    {},
	"on":   {},
}

// MissingParametersError aggregates every required parameter left unset
// after precedence resolution, so the caller sees one actionable message.
type MissingParametersError struct {
	Names []string
}

// Error implements the error interface.
func (errorDetails MissingParametersError) Error() string {
	return fmt.Sprintf(missingParametersTemplateConstant, strings.Join(errorDetails.Names, parameterListSeparatorConstant))
}

// CoercionError indicates a value that cannot be converted to its declared type.
type CoercionError struct {
	Parameter string
	Value     any
	Type      string
}

// Error implements the error interface.
func (errorDetails CoercionError) Error() string {
	return fmt.Sprintf(coercionFailureTemplateConstant, errorDetails.Parameter, errorDetails.Value, errorDetails.Type)
}

// Resolve computes the final parameter values for one operation.
//
// Precedence, lowest to highest: descriptor defaults, parameters already
// stored for the instance (project mode only), CLI-supplied pairs. After
// merging, values are coerced to their declared types and string values
// containing ${ctx.*} placeholders are expanded against the interpolation
// root. Required parameters still unset afterwards fail as one aggregated
// error.
func Resolve(
	loadedDescriptor descriptor.Descriptor,
	cliParameters map[string]string,
	storedParameters map[string]any,
	interpolationRoot any,
) (map[string]any, error) {
	resolvedParameters := map[string]any{}

	for parameterName, parameterSpec := range loadedDescriptor.Params {
		if parameterSpec.Default != nil {
			resolvedParameters[parameterName] = parameterSpec.Default
		}
	}

	for parameterName, storedValue := range storedParameters {
		resolvedParameters[parameterName] = storedValue
	}

	for parameterName, cliValue := range cliParameters {
		if _, isDeclared := loadedDescriptor.Params[parameterName]; isDeclared {
			resolvedParameters[parameterName] = cliValue
		}
	}

	for parameterName, parameterSpec := range loadedDescriptor.Params {
		rawValue, hasValue := resolvedParameters[parameterName]
		if !hasValue {
			continue
		}
		coercedValue, coercionError := coerce(parameterName, rawValue, parameterSpec.Type)
		if coercionError != nil {
			return nil, coercionError
		}
		resolvedParameters[parameterName] = coercedValue
	}

	for parameterName, resolvedValue := range resolvedParameters {
		stringValue, isString := resolvedValue.(string)
		if isString && interpolation.ContainsPlaceholder(stringValue) {
			resolvedParameters[parameterName] = interpolation.Expand(stringValue, interpolationRoot)
		}
	}

	var missingParameterNames []string
	for parameterName, parameterSpec := range loadedDescriptor.Params {
		if parameterSpec.Required {
			if _, hasValue := resolvedParameters[parameterName]; !hasValue {
				missingParameterNames = append(missingParameterNames, parameterName)
			}
		}
	}
	if len(missingParameterNames) > 0 {
		sort.Strings(missingParameterNames)
		return nil, MissingParametersError{Names: missingParameterNames}
	}

	return resolvedParameters, nil
}

func coerce(parameterName string, rawValue any, parameterType string) (any, error) {
	if rawValue == nil {
		return nil, nil
	}

	switch parameterType {
	case descriptor.ParamTypeInt:
		switch typedValue := rawValue.(type) {
		case int:
			return typedValue, nil
		case int64:
			return int(typedValue), nil
		case float64:
			return int(typedValue), nil
		case string:
			parsedValue, parseError := strconv.Atoi(strings.TrimSpace(typedValue))
			if parseError != nil {
				return nil, CoercionError{Parameter: parameterName, Value: rawValue, Type: parameterType}
			}
			return parsedValue, nil
		default:
			return nil, CoercionError{Parameter: parameterName, Value: rawValue, Type: parameterType}
		}
	case descriptor.ParamTypeFloat:
		switch typedValue := rawValue.(type) {
		case float64:
			return typedValue, nil
		case int:
			return float64(typedValue), nil
		case string:
			parsedValue, parseError := strconv.ParseFloat(strings.TrimSpace(typedValue), 64)
			if parseError != nil {
				return nil, CoercionError{Parameter: parameterName, Value: rawValue, Type: parameterType}
			}
			return parsedValue, nil
		default:
			return nil, CoercionError{Parameter: parameterName, Value: rawValue, Type: parameterType}
		}
	case descriptor.ParamTypeBool:
		switch typedValue := rawValue.(type) {
		case bool:
			return typedValue, nil
		default:
			_, isTruthy := truthyBoolSpellings[strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", typedValue)))]
			return isTruthy, nil
		}
	default:
		// 'str' and unknown types pass through unchanged.
		return rawValue, nil
	}
}
