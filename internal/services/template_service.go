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

// TemplateService runs the template pipeline end to end against the
// active bundle.
type TemplateService struct {
	dependencies serviceDependencies
}

// NewTemplateService builds a template service over the given bundle
// provider and command runner.
func NewTemplateService(bundles store.BundleProvider, runner execshell.CommandRunner, logger *zap.Logger) *TemplateService {
	return &TemplateService{dependencies: newServiceDependencies(bundles, runner, logger)}
}

// RenderOptions carries per-invocation render inputs.
type RenderOptions struct {
	Parameters map[string]string
	InstanceID string
	DryRun     bool
}

// RenderResult reports what a render produced or, in dry-run mode, would
// produce. The plan is identical in both modes.
type RenderResult struct {
	Plan                 []rendering.PlanItem
	TargetDirectory      string
	Params               map[string]any
	MissingOptionalTools []string
}

// Render resolves parameters, runs render-stage hooks, and materializes the
// template into the target directory. Dry-run computes the identical plan
// but skips hooks, filesystem writes, and state persistence.
func (service *TemplateService) Render(operationContext context.Context, mode Mode, templateID string, options RenderOptions) (RenderResult, error) {
	bundlePaths, bundleConfig, bundleError := service.dependencies.loadBundle()
	if bundleError != nil {
		return RenderResult{}, bundleError
	}

	loadedDescriptor, descriptorSource, loadError := descriptor.Load(bundlePaths, templateID)
	if loadError != nil {
		return RenderResult{}, loadError
	}
	if kindError := ensureKind(descriptorSource, descriptor.KindTemplate, templateID); kindError != nil {
		return RenderResult{}, kindError
	}

	instanceID := options.InstanceID
	if len(instanceID) == 0 {
		instanceID = templateID
	}

	var projectView *execution.ProjectView
	var projectDocument project.Document
	var storedParameters map[string]any
	var workingDirectory string

	switch typedMode := mode.(type) {
	case ProjectMode:
		var projectError error
		projectDocument, projectError = project.Load(typedMode.Directory)
		if projectError != nil {
			return RenderResult{}, projectError
		}
		if missing := missingDependencies(projectDocument, loadedDescriptor.RequiredTemplates); len(missing) > 0 {
			return RenderResult{}, MissingDependenciesError{Names: missing}
		}
		if existingEntry := projectDocument.FindTemplate(instanceID); existingEntry != nil {
			storedParameters = existingEntry.Params
		}
		projectView = &execution.ProjectView{Name: projectDocument.Name, ProjectPath: projectDocument.ProjectPath}
		workingDirectory = typedMode.Directory
	case AdHocMode:
		workingDirectory = typedMode.OutputDirectory
		loadedDescriptor.RenderInto = adHocRenderTargetConstant
	}

	missingOptionalTools, toolsError := tools.Check(loadedDescriptor.ToolsRequired, loadedDescriptor.ToolsOptional)
	if toolsError != nil {
		return RenderResult{}, toolsError
	}
	service.dependencies.warnMissingOptionalTools(missingOptionalTools)

	brsView := brsViewFromConfig(bundleConfig)
	preliminaryContext := execution.Build(projectView, instanceID, nil, brsView, workingDirectory)

	resolvedParameters, resolveError := params.Resolve(loadedDescriptor, options.Parameters, storedParameters, preliminaryContext.InterpolationRoot())
	if resolveError != nil {
		return RenderResult{}, resolveError
	}
	if existsError := params.ValidateExists(loadedDescriptor, resolvedParameters, preliminaryContext.ProjectDir(), hostpath.MountPrefixes(bundleConfig.Hosts)); existsError != nil {
		return RenderResult{}, existsError
	}

	executionContext := execution.Build(projectView, instanceID, resolvedParameters, brsView, workingDirectory)
	targetDirectory := rendering.TargetDirectory(loadedDescriptor, executionContext)

	hookRegistry, registryError := service.dependencies.newRegistry(bundlePaths)
	if registryError != nil {
		return RenderResult{}, registryError
	}

	if !options.DryRun {
		if hookError := hookRegistry.RunHooks(operationContext, descriptor.StagePreRender, loadedDescriptor.Hooks[descriptor.StagePreRender], executionContext); hookError != nil {
			return RenderResult{}, hookError
		}
	}

	plan, renderError := rendering.Render(loadedDescriptor, executionContext, descriptorSource.Directory, options.DryRun, service.dependencies.logger)
	if renderError != nil {
		return RenderResult{}, renderError
	}

	renderResult := RenderResult{
		Plan:                 plan,
		TargetDirectory:      targetDirectory,
		Params:               resolvedParameters,
		MissingOptionalTools: missingOptionalTools,
	}
	if options.DryRun {
		return renderResult, nil
	}

	if hookError := hookRegistry.RunHooks(operationContext, descriptor.StagePostRender, loadedDescriptor.Hooks[descriptor.StagePostRender], executionContext); hookError != nil {
		return RenderResult{}, hookError
	}

	switch typedMode := mode.(type) {
	case ProjectMode:
		templateEntry := projectDocument.EnsureTemplate(instanceID, templateID)
		templateEntry.Params = resolvedParameters
		templateEntry.Rendered = project.Timestamp()
		templateEntry.Status = project.TemplateStatusActive
		projectDocument.Status = project.StatusActive
		if saveError := project.Save(typedMode.Directory, projectDocument); saveError != nil {
			return RenderResult{}, saveError
		}
	case AdHocMode:
		metaRecord := project.MetaRecord{
			Source: project.MetaSource{
				BRSID:      bundleConfig.BundleID(),
				BRSVersion: bundleConfig.BundleVersion(),
				TemplateID: templateID,
			},
			Rendered: project.Timestamp(),
			Status:   project.TemplateStatusActive,
			Params:   resolvedParameters,
		}
		if saveError := project.SaveMeta(targetDirectory, metaRecord); saveError != nil {
			return RenderResult{}, saveError
		}
	}

	return renderResult, nil
}

// Run executes a rendered instance's entry point inside its render
// directory, bracketed by the run-stage hooks, and records completion.
func (service *TemplateService) Run(operationContext context.Context, mode Mode, instanceID string) (execshell.ExecutionResult, error) {
	bundlePaths, bundleConfig, bundleError := service.dependencies.loadBundle()
	if bundleError != nil {
		return execshell.ExecutionResult{}, bundleError
	}

	var projectView *execution.ProjectView
	var projectDocument project.Document
	var templateEntry *project.TemplateEntry
	var metaRecord project.MetaRecord
	var sourceTemplateID string
	var storedParameters map[string]any
	var publishedValues map[string]any
	var workingDirectory string

	switch typedMode := mode.(type) {
	case ProjectMode:
		var projectError error
		projectDocument, projectError = project.Load(typedMode.Directory)
		if projectError != nil {
			return execshell.ExecutionResult{}, projectError
		}
		templateEntry = projectDocument.FindTemplate(instanceID)
		if templateEntry == nil {
			return execshell.ExecutionResult{}, NoTemplateEntryError{InstanceID: instanceID}
		}
		sourceTemplateID = templateEntry.SourceTemplate
		if len(sourceTemplateID) == 0 {
			sourceTemplateID = templateEntry.ID
		}
		storedParameters = templateEntry.Params
		publishedValues = templateEntry.Published
		projectView = &execution.ProjectView{Name: projectDocument.Name, ProjectPath: projectDocument.ProjectPath}
		workingDirectory = typedMode.Directory
	case AdHocMode:
		var metaError error
		metaRecord, metaError = project.LoadMeta(typedMode.OutputDirectory)
		if metaError != nil {
			return execshell.ExecutionResult{}, metaError
		}
		sourceTemplateID = metaRecord.Source.TemplateID
		storedParameters = metaRecord.Params
		publishedValues = metaRecord.Published
		workingDirectory = typedMode.OutputDirectory
	}

	loadedDescriptor, descriptorSource, loadError := descriptor.Load(bundlePaths, sourceTemplateID)
	if loadError != nil {
		return execshell.ExecutionResult{}, loadError
	}
	if kindError := ensureKind(descriptorSource, descriptor.KindTemplate, sourceTemplateID); kindError != nil {
		return execshell.ExecutionResult{}, kindError
	}
	if len(loadedDescriptor.RunEntry) == 0 {
		return execshell.ExecutionResult{}, NoRunEntryError{ID: sourceTemplateID}
	}
	if _, isAdHoc := mode.(AdHocMode); isAdHoc {
		loadedDescriptor.RenderInto = adHocRenderTargetConstant
	}

	brsView := brsViewFromConfig(bundleConfig)
	preliminaryContext := execution.Build(projectView, instanceID, nil, brsView, workingDirectory)
	executionContext := execution.Build(projectView, instanceID, materializeParameters(preliminaryContext, storedParameters), brsView, workingDirectory)
	if publishedValues != nil {
		executionContext.Template.Published = publishedValues
	}
	targetDirectory := rendering.TargetDirectory(loadedDescriptor, executionContext)

	hookRegistry, registryError := service.dependencies.newRegistry(bundlePaths)
	if registryError != nil {
		return execshell.ExecutionResult{}, registryError
	}
	shellExecutor, executorError := service.dependencies.newShellExecutor()
	if executorError != nil {
		return execshell.ExecutionResult{}, executorError
	}

	if hookError := hookRegistry.RunHooks(operationContext, descriptor.StagePreRun, loadedDescriptor.Hooks[descriptor.StagePreRun], executionContext); hookError != nil {
		return execshell.ExecutionResult{}, hookError
	}

	executionResult, executionError := shellExecutor.Execute(operationContext, execshell.ShellCommand{
		Path:             runEntryPathPrefixConstant + loadedDescriptor.RunEntry,
		WorkingDirectory: targetDirectory,
	})
	if executionError != nil {
		return executionResult, executionError
	}

	if hookError := hookRegistry.RunHooks(operationContext, descriptor.StagePostRun, loadedDescriptor.Hooks[descriptor.StagePostRun], executionContext); hookError != nil {
		return executionResult, hookError
	}

	switch typedMode := mode.(type) {
	case ProjectMode:
		templateEntry.Status = project.TemplateStatusCompleted
		if saveError := project.Save(typedMode.Directory, projectDocument); saveError != nil {
			return executionResult, saveError
		}
	case AdHocMode:
		metaRecord.Status = project.TemplateStatusCompleted
		if saveError := project.SaveMeta(typedMode.OutputDirectory, metaRecord); saveError != nil {
			return executionResult, saveError
		}
	}

	return executionResult, nil
}

// Publish computes every declared published value through the bundle's
// resolvers and merges the results into the instance's record. Repeating a
// publish overwrites previous values key by key.
func (service *TemplateService) Publish(operationContext context.Context, mode Mode, instanceID string) (map[string]any, error) {
	bundlePaths, bundleConfig, bundleError := service.dependencies.loadBundle()
	if bundleError != nil {
		return nil, bundleError
	}

	var projectView *execution.ProjectView
	var projectDocument project.Document
	var templateEntry *project.TemplateEntry
	var metaRecord project.MetaRecord
	var sourceTemplateID string
	var storedParameters map[string]any
	var publishedValues map[string]any
	var workingDirectory string

	switch typedMode := mode.(type) {
	case ProjectMode:
		var projectError error
		projectDocument, projectError = project.Load(typedMode.Directory)
		if projectError != nil {
			return nil, projectError
		}
		templateEntry = projectDocument.FindTemplate(instanceID)
		if templateEntry == nil {
			return nil, NoTemplateEntryError{InstanceID: instanceID}
		}
		sourceTemplateID = templateEntry.SourceTemplate
		if len(sourceTemplateID) == 0 {
			sourceTemplateID = templateEntry.ID
		}
		storedParameters = templateEntry.Params
		publishedValues = templateEntry.Published
		projectView = &execution.ProjectView{Name: projectDocument.Name, ProjectPath: projectDocument.ProjectPath}
		workingDirectory = typedMode.Directory
	case AdHocMode:
		var metaError error
		metaRecord, metaError = project.LoadMeta(typedMode.OutputDirectory)
		if metaError != nil {
			return nil, metaError
		}
		sourceTemplateID = metaRecord.Source.TemplateID
		storedParameters = metaRecord.Params
		publishedValues = metaRecord.Published
		workingDirectory = typedMode.OutputDirectory
	}

	loadedDescriptor, descriptorSource, loadError := descriptor.Load(bundlePaths, sourceTemplateID)
	if loadError != nil {
		return nil, loadError
	}
	if kindError := ensureKind(descriptorSource, descriptor.KindTemplate, sourceTemplateID); kindError != nil {
		return nil, kindError
	}

	brsView := brsViewFromConfig(bundleConfig)
	executionContext := execution.Build(projectView, instanceID, storedParameters, brsView, workingDirectory)
	if publishedValues != nil {
		executionContext.Template.Published = publishedValues
	}

	hookRegistry, registryError := service.dependencies.newRegistry(bundlePaths)
	if registryError != nil {
		return nil, registryError
	}

	resolvedValues, resolveError := hookRegistry.ResolveAll(operationContext, loadedDescriptor.Publish, executionContext)
	if resolveError != nil {
		return nil, resolveError
	}

	if publishedValues == nil {
		publishedValues = map[string]any{}
	}
	for publishKey, publishValue := range resolvedValues {
		publishedValues[publishKey] = publishValue
	}

	switch typedMode := mode.(type) {
	case ProjectMode:
		templateEntry.Published = publishedValues
		if saveError := project.Save(typedMode.Directory, projectDocument); saveError != nil {
			return nil, saveError
		}
	case AdHocMode:
		metaRecord.Published = publishedValues
		if saveError := project.SaveMeta(typedMode.OutputDirectory, metaRecord); saveError != nil {
			return nil, saveError
		}
	}

	return publishedValues, nil
}
