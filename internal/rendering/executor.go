package rendering

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/descriptor"
	"github.com/bpm-tools/bpm/internal/execution"
)

const (
	strictTemplateOptionConstant        = "missingkey=error"
	renderedFilePermissionConstant      = 0o644
	createdDirectoryPermissionConstant  = 0o755
	executableModeBitsConstant          = 0o111
	templateNotFoundTemplateConstant    = "template source not found: %s"
	templateRenderFailureTemplateConstant = "failed to render %s: %w"
	copyFailureTemplateConstant         = "failed to copy %s: %w"
	unknownActionTemplateConstant       = "unknown plan action: %s"
	planActionLogMessageConstant        = "plan action applied"
	actionLogFieldNameConstant          = "action"
	destinationLogFieldNameConstant     = "destination"
)

// TemplateNotFoundError indicates a render source missing from the
// template directory, reported by its bundle-relative path.
type TemplateNotFoundError struct {
	RelativePath string
}

// Error implements the error interface.
func (errorDetails TemplateNotFoundError) Error() string {
	return fmt.Sprintf(templateNotFoundTemplateConstant, errorDetails.RelativePath)
}

// Render computes the plan for the descriptor and, unless dryRun is set,
// executes it in order. The returned plan is identical in both modes.
//
// Template execution is strict: an undefined variable reference inside a
// rendered file fails the operation instead of producing a blank, so a
// generated script can never be silently wrong.
func Render(
	loadedDescriptor descriptor.Descriptor,
	executionContext execution.Context,
	templateRootDirectory string,
	dryRun bool,
	logger *zap.Logger,
) ([]PlanItem, error) {
	plan := BuildPlan(loadedDescriptor, executionContext, templateRootDirectory)
	if dryRun {
		return plan, nil
	}
	if executionError := Execute(plan, executionContext, templateRootDirectory, logger); executionError != nil {
		return nil, executionError
	}
	return plan, nil
}

// Execute applies the plan's actions strictly in emitted order.
func Execute(plan []PlanItem, executionContext execution.Context, templateRootDirectory string, logger *zap.Logger) error {
	for _, planItem := range plan {
		var actionError error
		switch planItem.Action {
		case ActionMkdir:
			actionError = os.MkdirAll(planItem.Destination, createdDirectoryPermissionConstant)
		case ActionRender:
			actionError = renderTemplatedFile(planItem, executionContext, templateRootDirectory)
		case ActionCopy:
			actionError = copyFile(planItem.Source, planItem.Destination)
		case ActionChmod:
			actionError = markExecutable(planItem.Destination)
		default:
			actionError = fmt.Errorf(unknownActionTemplateConstant, planItem.Action)
		}
		if actionError != nil {
			return actionError
		}
		if logger != nil {
			logger.Debug(planActionLogMessageConstant,
				zap.String(actionLogFieldNameConstant, string(planItem.Action)),
				zap.String(destinationLogFieldNameConstant, planItem.Destination),
			)
		}
	}
	return nil
}

func renderTemplatedFile(planItem PlanItem, executionContext execution.Context, templateRootDirectory string) error {
	relativeSourcePath, relativeError := filepath.Rel(templateRootDirectory, planItem.Source)
	if relativeError != nil {
		relativeSourcePath = planItem.Source
	}

	templateContent, readError := os.ReadFile(planItem.Source)
	if readError != nil {
		if os.IsNotExist(readError) {
			return TemplateNotFoundError{RelativePath: relativeSourcePath}
		}
		return readError
	}

	parsedTemplate, parseError := template.New(relativeSourcePath).
		Option(strictTemplateOptionConstant).
		Parse(string(templateContent))
	if parseError != nil {
		return fmt.Errorf(templateRenderFailureTemplateConstant, relativeSourcePath, parseError)
	}

	var renderedContent bytes.Buffer
	if executeError := parsedTemplate.Execute(&renderedContent, executionContext.TemplateData()); executeError != nil {
		return fmt.Errorf(templateRenderFailureTemplateConstant, relativeSourcePath, executeError)
	}

	if directoryError := os.MkdirAll(filepath.Dir(planItem.Destination), createdDirectoryPermissionConstant); directoryError != nil {
		return directoryError
	}
	return os.WriteFile(planItem.Destination, renderedContent.Bytes(), renderedFilePermissionConstant)
}

// copyFile copies content and preserves the source file mode and
// modification time, creating missing destination directories.
func copyFile(sourcePath string, destinationPath string) error {
	sourceInformation, statError := os.Stat(sourcePath)
	if statError != nil {
		if os.IsNotExist(statError) {
			return TemplateNotFoundError{RelativePath: filepath.Base(sourcePath)}
		}
		return statError
	}

	sourceContent, readError := os.ReadFile(sourcePath)
	if readError != nil {
		return fmt.Errorf(copyFailureTemplateConstant, sourcePath, readError)
	}

	if directoryError := os.MkdirAll(filepath.Dir(destinationPath), createdDirectoryPermissionConstant); directoryError != nil {
		return directoryError
	}
	if writeError := os.WriteFile(destinationPath, sourceContent, sourceInformation.Mode().Perm()); writeError != nil {
		return fmt.Errorf(copyFailureTemplateConstant, sourcePath, writeError)
	}
	return os.Chtimes(destinationPath, sourceInformation.ModTime(), sourceInformation.ModTime())
}

// markExecutable adds the user/group/other execute bits. A missing target
// is a no-op rather than a failure: in dry-run mode no file was written.
func markExecutable(targetPath string) error {
	fileInformation, statError := os.Stat(targetPath)
	if statError != nil {
		if os.IsNotExist(statError) {
			return nil
		}
		return statError
	}
	return os.Chmod(targetPath, fileInformation.Mode()|executableModeBitsConstant)
}
