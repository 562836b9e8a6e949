// Package tools verifies that external programs a template depends on are
// reachable through PATH before any file is written.
package tools

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

const missingToolsTemplateConstant = "required tools not found on PATH: %s"

// MissingToolsError aggregates every required tool absent from PATH.
type MissingToolsError struct {
	Names []string
}

// Error implements the error interface.
func (errorDetails MissingToolsError) Error() string {
	return fmt.Sprintf(missingToolsTemplateConstant, strings.Join(errorDetails.Names, ", "))
}

// Check looks up every declared tool. Missing required tools fail the
// operation as one aggregate error; missing optional tools are returned
// for the caller to warn about.
func Check(requiredTools []string, optionalTools []string) ([]string, error) {
	var missingRequired []string
	for _, toolName := range requiredTools {
		if _, lookupError := exec.LookPath(toolName); lookupError != nil {
			missingRequired = append(missingRequired, toolName)
		}
	}

	var missingOptional []string
	for _, toolName := range optionalTools {
		if _, lookupError := exec.LookPath(toolName); lookupError != nil {
			missingOptional = append(missingOptional, toolName)
		}
	}
	sort.Strings(missingOptional)

	if len(missingRequired) > 0 {
		sort.Strings(missingRequired)
		return missingOptional, MissingToolsError{Names: missingRequired}
	}
	return missingOptional, nil
}
