package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/descriptor"
	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/execution"
	"github.com/bpm-tools/bpm/internal/hostpath"
	"github.com/bpm-tools/bpm/internal/params"
	"github.com/bpm-tools/bpm/internal/project"
	"github.com/bpm-tools/bpm/internal/rendering"
	"github.com/bpm-tools/bpm/internal/store"
	"github.com/bpm-tools/bpm/internal/tools"
)

// WorkflowService renders and executes workflow descriptors. Unlike
// templates, workflows never add entries to the project's template list;
// runs are recorded as history instead.
type WorkflowService struct {
	dependencies serviceDependencies
}

// NewWorkflowService builds a workflow service over the given bundle
// provider and command runner.
func NewWorkflowService(bundles store.BundleProvider, runner execshell.CommandRunner, logger *zap.Logger) *WorkflowService {
	return &WorkflowService{dependencies: newServiceDependencies(bundles, runner, logger)}
}

type preparedWorkflow struct {
	descriptor       descriptor.Descriptor
	source           descriptor.Source
	executionContext execution.Context
	targetDirectory  string
	resolvedParams   map[string]any
	missingOptional  []string
}

func (service *WorkflowService) prepare(mode Mode, workflowID string, parameters map[string]string) (preparedWorkflow, error) {
	bundlePaths, bundleConfig, bundleError := service.dependencies.loadBundle()
	if bundleError != nil {
		return preparedWorkflow{}, bundleError
	}

	loadedDescriptor, descriptorSource, loadError := descriptor.Load(bundlePaths, workflowID)
	if loadError != nil {
		return preparedWorkflow{}, loadError
	}
	if kindError := ensureKind(descriptorSource, descriptor.KindWorkflow, workflowID); kindError != nil {
		return preparedWorkflow{}, kindError
	}

	var projectView *execution.ProjectView
	var workingDirectory string
	switch typedMode := mode.(type) {
	case ProjectMode:
		projectDocument, projectError := project.Load(typedMode.Directory)
		if projectError != nil {
			return preparedWorkflow{}, projectError
		}
		if missing := missingDependencies(projectDocument, loadedDescriptor.RequiredTemplates); len(missing) > 0 {
			return preparedWorkflow{}, MissingDependenciesError{Names: missing}
		}
		projectView = &execution.ProjectView{Name: projectDocument.Name, ProjectPath: projectDocument.ProjectPath}
		workingDirectory = typedMode.Directory
	case AdHocMode:
		workingDirectory = typedMode.OutputDirectory
		loadedDescriptor.RenderInto = adHocRenderTargetConstant
	}

	missingOptionalTools, toolsError := tools.Check(loadedDescriptor.ToolsRequired, loadedDescriptor.ToolsOptional)
	if toolsError != nil {
		return preparedWorkflow{}, toolsError
	}
	service.dependencies.warnMissingOptionalTools(missingOptionalTools)

	brsView := brsViewFromConfig(bundleConfig)
	preliminaryContext := execution.Build(projectView, workflowID, nil, brsView, workingDirectory)

	resolvedParameters, resolveError := params.Resolve(loadedDescriptor, parameters, nil, preliminaryContext.InterpolationRoot())
	if resolveError != nil {
		return preparedWorkflow{}, resolveError
	}
	if existsError := params.ValidateExists(loadedDescriptor, resolvedParameters, preliminaryContext.ProjectDir(), hostpath.MountPrefixes(bundleConfig.Hosts)); existsError != nil {
		return preparedWorkflow{}, existsError
	}

	executionContext := execution.Build(projectView, workflowID, resolvedParameters, brsView, workingDirectory)
	return preparedWorkflow{
		descriptor:       loadedDescriptor,
		source:           descriptorSource,
		executionContext: executionContext,
		targetDirectory:  rendering.TargetDirectory(loadedDescriptor, executionContext),
		resolvedParams:   resolvedParameters,
		missingOptional:  missingOptionalTools,
	}, nil
}

// Render materializes the workflow's files without executing anything and
// without touching project state.
func (service *WorkflowService) Render(operationContext context.Context, mode Mode, workflowID string, options RenderOptions) (RenderResult, error) {
	prepared, prepareError := service.prepare(mode, workflowID, options.Parameters)
	if prepareError != nil {
		return RenderResult{}, prepareError
	}

	bundlePaths, bundlePathsError := service.dependencies.bundles.BundlePaths()
	if bundlePathsError != nil {
		return RenderResult{}, bundlePathsError
	}
	hookRegistry, registryError := service.dependencies.newRegistry(bundlePaths)
	if registryError != nil {
		return RenderResult{}, registryError
	}

	if !options.DryRun {
		if hookError := hookRegistry.RunHooks(operationContext, descriptor.StagePreRender, prepared.descriptor.Hooks[descriptor.StagePreRender], prepared.executionContext); hookError != nil {
			return RenderResult{}, hookError
		}
	}

	plan, renderError := rendering.Render(prepared.descriptor, prepared.executionContext, prepared.source.Directory, options.DryRun, service.dependencies.logger)
	if renderError != nil {
		return RenderResult{}, renderError
	}

	if !options.DryRun {
		if hookError := hookRegistry.RunHooks(operationContext, descriptor.StagePostRender, prepared.descriptor.Hooks[descriptor.StagePostRender], prepared.executionContext); hookError != nil {
			return RenderResult{}, hookError
		}
	}

	return RenderResult{
		Plan:                 plan,
		TargetDirectory:      prepared.targetDirectory,
		Params:               prepared.resolvedParams,
		MissingOptionalTools: prepared.missingOptional,
	}, nil
}

// Run renders the workflow and executes its entry point. In project mode
// the outcome is appended to the project's workflow history whether the
// run succeeded or failed.
func (service *WorkflowService) Run(operationContext context.Context, mode Mode, workflowID string, options RenderOptions) (execshell.ExecutionResult, error) {
	prepared, prepareError := service.prepare(mode, workflowID, options.Parameters)
	if prepareError != nil {
		return execshell.ExecutionResult{}, prepareError
	}
	if len(prepared.descriptor.RunEntry) == 0 {
		return execshell.ExecutionResult{}, NoRunEntryError{ID: workflowID}
	}

	bundlePaths, bundlePathsError := service.dependencies.bundles.BundlePaths()
	if bundlePathsError != nil {
		return execshell.ExecutionResult{}, bundlePathsError
	}
	hookRegistry, registryError := service.dependencies.newRegistry(bundlePaths)
	if registryError != nil {
		return execshell.ExecutionResult{}, registryError
	}
	shellExecutor, executorError := service.dependencies.newShellExecutor()
	if executorError != nil {
		return execshell.ExecutionResult{}, executorError
	}

	if hookError := hookRegistry.RunHooks(operationContext, descriptor.StagePreRender, prepared.descriptor.Hooks[descriptor.StagePreRender], prepared.executionContext); hookError != nil {
		return execshell.ExecutionResult{}, hookError
	}
	if _, renderError := rendering.Render(prepared.descriptor, prepared.executionContext, prepared.source.Directory, false, service.dependencies.logger); renderError != nil {
		return execshell.ExecutionResult{}, renderError
	}
	if hookError := hookRegistry.RunHooks(operationContext, descriptor.StagePostRender, prepared.descriptor.Hooks[descriptor.StagePostRender], prepared.executionContext); hookError != nil {
		return execshell.ExecutionResult{}, hookError
	}

	workflowRun := project.WorkflowRun{
		ID:      workflowID,
		Started: project.Timestamp(),
		Params:  prepared.resolvedParams,
	}

	runError := hookRegistry.RunHooks(operationContext, descriptor.StagePreRun, prepared.descriptor.Hooks[descriptor.StagePreRun], prepared.executionContext)
	var executionResult execshell.ExecutionResult
	if runError == nil {
		executionResult, runError = shellExecutor.Execute(operationContext, execshell.ShellCommand{
			Path:             runEntryPathPrefixConstant + prepared.descriptor.RunEntry,
			WorkingDirectory: prepared.targetDirectory,
		})
	}
	if runError == nil {
		runError = hookRegistry.RunHooks(operationContext, descriptor.StagePostRun, prepared.descriptor.Hooks[descriptor.StagePostRun], prepared.executionContext)
	}

	workflowRun.Finished = project.Timestamp()
	workflowRun.Status = project.WorkflowStatusCompleted
	if runError != nil {
		workflowRun.Status = project.WorkflowStatusFailed
	}

	if projectMode, isProjectMode := mode.(ProjectMode); isProjectMode {
		if historyError := appendWorkflowHistory(projectMode.Directory, workflowRun); historyError != nil {
			if runError == nil {
				runError = historyError
			} else {
				service.dependencies.logger.Warn(workflowHistoryWriteFailedMessageConstant, zap.Error(historyError))
			}
		}
	}

	return executionResult, runError
}

const workflowHistoryWriteFailedMessageConstant = "failed to record workflow run"

// appendWorkflowHistory re-reads the manifest before appending, so a hook
// that edited project state during the run is not clobbered.
func appendWorkflowHistory(projectDirectory string, workflowRun project.WorkflowRun) error {
	projectDocument, loadError := project.Load(projectDirectory)
	if loadError != nil {
		return loadError
	}
	projectDocument.Workflows = append(projectDocument.Workflows, workflowRun)
	return project.Save(projectDirectory, projectDocument)
}
