package hooks

import (
	"fmt"
	"strings"
)

const (
	referenceSeparatorConstant       = ":"
	defaultFunctionNameConstant      = "main"
	builtinModuleNameConstant        = "builtin"
	emptyReferenceMessageConstant    = "empty hook reference"
	invalidReferenceTemplateConstant = "invalid hook reference %q"
)

// Reference names one callable inside a bundle: a module (a builtin group
// or an executable script name) and a function within it.
type Reference struct {
	Module   string
	Function string
}

// InvalidReferenceError reports a hook reference that could not be parsed.
type InvalidReferenceError struct {
	Raw string
}

// Error implements the error interface.
func (errorDetails InvalidReferenceError) Error() string {
	if len(errorDetails.Raw) == 0 {
		return emptyReferenceMessageConstant
	}
	return fmt.Sprintf(invalidReferenceTemplateConstant, errorDetails.Raw)
}

// ParseReference parses "module" or "module:function" spellings. The
// function defaults to main when omitted.
func ParseReference(rawReference string) (Reference, error) {
	trimmedReference := strings.TrimSpace(rawReference)
	if len(trimmedReference) == 0 {
		return Reference{}, InvalidReferenceError{Raw: rawReference}
	}

	moduleName, functionName, hasSeparator := strings.Cut(trimmedReference, referenceSeparatorConstant)
	moduleName = strings.TrimSpace(moduleName)
	functionName = strings.TrimSpace(functionName)
	if len(moduleName) == 0 {
		return Reference{}, InvalidReferenceError{Raw: rawReference}
	}
	if !hasSeparator || len(functionName) == 0 {
		functionName = defaultFunctionNameConstant
	}
	return Reference{Module: moduleName, Function: functionName}, nil
}

// String renders the reference in module:function form.
func (reference Reference) String() string {
	return reference.Module + referenceSeparatorConstant + reference.Function
}
