package rendering

import (
	"path/filepath"
	"strings"

	"github.com/bpm-tools/bpm/internal/descriptor"
	"github.com/bpm-tools/bpm/internal/execution"
	"github.com/bpm-tools/bpm/internal/interpolation"
)

// TemplateSuffix marks render sources that pass through the template engine;
// every other source is copied verbatim.
const TemplateSuffix = ".tmpl"

// Action identifies one kind of filesystem step in a render plan.
type Action string

// Supported plan actions.
const (
	ActionMkdir  Action = "mkdir"
	ActionRender Action = "render"
	ActionCopy   Action = "copy"
	ActionChmod  Action = "chmod"
)

// PlanItem is one ordered step of a render plan. Source is empty for mkdir
// and chmod actions.
type PlanItem struct {
	Action      Action
	Source      string
	Destination string
}

// TargetDirectory expands the descriptor's render.into pattern against the
// context and anchors it under the context working directory.
func TargetDirectory(loadedDescriptor descriptor.Descriptor, executionContext execution.Context) string {
	expandedPattern := interpolation.Expand(loadedDescriptor.RenderInto, executionContext.InterpolationRoot())
	if filepath.IsAbs(expandedPattern) {
		return filepath.Clean(expandedPattern)
	}
	return filepath.Join(executionContext.Cwd, expandedPattern)
}

// BuildPlan computes the ordered action sequence for rendering the
// descriptor. The same plan is produced whether or not it is executed:
// dry-run output is exactly the execution plan.
func BuildPlan(loadedDescriptor descriptor.Descriptor, executionContext execution.Context, templateRootDirectory string) []PlanItem {
	targetDirectory := TargetDirectory(loadedDescriptor, executionContext)
	plan := []PlanItem{{Action: ActionMkdir, Destination: targetDirectory}}

	for _, renderFile := range loadedDescriptor.RenderFiles {
		sourcePath := filepath.Join(templateRootDirectory, renderFile.Source)
		destinationPath := filepath.Join(targetDirectory, renderFile.Destination)
		if strings.HasSuffix(renderFile.Source, TemplateSuffix) {
			plan = append(plan, PlanItem{Action: ActionRender, Source: sourcePath, Destination: destinationPath})
		} else {
			plan = append(plan, PlanItem{Action: ActionCopy, Source: sourcePath, Destination: destinationPath})
		}
	}

	if len(loadedDescriptor.RunEntry) > 0 {
		plan = append(plan, PlanItem{Action: ActionChmod, Destination: filepath.Join(targetDirectory, loadedDescriptor.RunEntry)})
	}

	return plan
}
