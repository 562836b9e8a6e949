package services

import (
	"fmt"
	"strings"
)

const (
	kindMismatchTemplateConstant        = "%s is a %s, not a %s"
	missingDependenciesTemplateConstant = "required templates not rendered in this project: %s"
	noRunEntryTemplateConstant          = "%s declares no run entry"
	noTemplateEntryTemplateConstant     = "no rendered instance %q in this project"
	dependencyNameSeparatorConstant     = ", "
)

// KindMismatchError reports an identifier resolving to the wrong kind of
// descriptor, such as running a workflow through the template commands.
type KindMismatchError struct {
	ID       string
	Actual   string
	Expected string
}

// Error implements the error interface.
func (errorDetails KindMismatchError) Error() string {
	return fmt.Sprintf(kindMismatchTemplateConstant, errorDetails.ID, errorDetails.Actual, errorDetails.Expected)
}

// MissingDependenciesError aggregates required templates the project has
// not rendered yet.
type MissingDependenciesError struct {
	Names []string
}

// Error implements the error interface.
func (errorDetails MissingDependenciesError) Error() string {
	return fmt.Sprintf(missingDependenciesTemplateConstant, strings.Join(errorDetails.Names, dependencyNameSeparatorConstant))
}

// NoRunEntryError reports a run attempt against a descriptor without an
// entry point.
type NoRunEntryError struct {
	ID string
}

// Error implements the error interface.
func (errorDetails NoRunEntryError) Error() string {
	return fmt.Sprintf(noRunEntryTemplateConstant, errorDetails.ID)
}

// NoTemplateEntryError reports an operation against an instance the
// project manifest does not record.
type NoTemplateEntryError struct {
	InstanceID string
}

// Error implements the error interface.
func (errorDetails NoTemplateEntryError) Error() string {
	return fmt.Sprintf(noTemplateEntryTemplateConstant, errorDetails.InstanceID)
}
