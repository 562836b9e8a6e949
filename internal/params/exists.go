package params

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bpm-tools/bpm/internal/descriptor"
	"github.com/bpm-tools/bpm/internal/hostpath"
)

const (
	pathExistenceFailureTemplateConstant = "path checks failed: %s"
	pathExistenceDetailTemplateConstant  = "%s: %s (expected %s)"
	pathFailureSeparatorConstant         = "; "
)

// PathFailure records one parameter whose resolved path failed its
// existence requirement.
type PathFailure struct {
	Parameter    string
	ResolvedPath string
	Requirement  descriptor.ExistsRequirement
}

// PathExistenceError aggregates every failed path check into one error
// listing parameter names and resolved paths.
type PathExistenceError struct {
	Failures []PathFailure
}

// Error implements the error interface.
func (errorDetails PathExistenceError) Error() string {
	detailMessages := make([]string, 0, len(errorDetails.Failures))
	for _, failure := range errorDetails.Failures {
		requirementLabel := string(failure.Requirement)
		if failure.Requirement == descriptor.ExistsAny {
			requirementLabel = "existing path"
		}
		detailMessages = append(detailMessages, fmt.Sprintf(pathExistenceDetailTemplateConstant, failure.Parameter, failure.ResolvedPath, requirementLabel))
	}
	return fmt.Sprintf(pathExistenceFailureTemplateConstant, strings.Join(detailMessages, pathFailureSeparatorConstant))
}

// ValidateExists checks every path parameter declaring an existence
// requirement against the local filesystem. Host-aware values are
// materialized through the mount table first; relative paths resolve
// against the supplied base directory. All failures aggregate into one
// PathExistenceError.
func ValidateExists(
	loadedDescriptor descriptor.Descriptor,
	resolvedParameters map[string]any,
	baseDirectory string,
	mountPrefixes map[string]string,
) error {
	var failures []PathFailure

	for parameterName, parameterSpec := range loadedDescriptor.Params {
		if parameterSpec.Exists == descriptor.ExistsNone {
			continue
		}
		rawValue, hasValue := resolvedParameters[parameterName]
		if !hasValue || rawValue == nil {
			continue
		}

		localPath := fmt.Sprintf("%v", rawValue)
		if hostpath.IsHostAware(localPath) {
			localPath = hostpath.Parse(localPath, "").Materialize(mountPrefixes, "")
		}
		if !filepath.IsAbs(localPath) {
			localPath = filepath.Join(baseDirectory, localPath)
		}

		if !satisfiesRequirement(localPath, parameterSpec.Exists) {
			failures = append(failures, PathFailure{
				Parameter:    parameterName,
				ResolvedPath: localPath,
				Requirement:  parameterSpec.Exists,
			})
		}
	}

	if len(failures) > 0 {
		sort.Slice(failures, func(firstIndex, secondIndex int) bool {
			return failures[firstIndex].Parameter < failures[secondIndex].Parameter
		})
		return PathExistenceError{Failures: failures}
	}
	return nil
}

func satisfiesRequirement(localPath string, requirement descriptor.ExistsRequirement) bool {
	fileInformation, statError := os.Stat(localPath)
	if statError != nil {
		return false
	}
	switch requirement {
	case descriptor.ExistsFile:
		return fileInformation.Mode().IsRegular()
	case descriptor.ExistsDir:
		return fileInformation.IsDir()
	default:
		return true
	}
}
