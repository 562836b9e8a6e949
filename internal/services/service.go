// Package services orchestrates the full template and workflow pipelines:
// descriptor loading, parameter resolution, lifecycle hooks, rendering,
// entry execution, publishing, and state persistence.
package services

import (
	"sort"

	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/descriptor"
	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/execution"
	"github.com/bpm-tools/bpm/internal/hooks"
	"github.com/bpm-tools/bpm/internal/hostpath"
	"github.com/bpm-tools/bpm/internal/project"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	missingOptionalToolsMessageConstant = "optional tools not found on PATH"
	toolNamesFieldNameConstant          = "tools"
	runEntryPathPrefixConstant          = "./"
	adHocRenderTargetConstant           = "."
)

type serviceDependencies struct {
	bundles store.BundleProvider
	runner  execshell.CommandRunner
	logger  *zap.Logger
}

func newServiceDependencies(bundles store.BundleProvider, runner execshell.CommandRunner, logger *zap.Logger) serviceDependencies {
	if logger == nil {
		logger = zap.NewNop()
	}
	return serviceDependencies{bundles: bundles, runner: runner, logger: logger}
}

func (dependencies serviceDependencies) loadBundle() (store.Paths, store.Config, error) {
	bundlePaths, pathsError := dependencies.bundles.BundlePaths()
	if pathsError != nil {
		return store.Paths{}, store.Config{}, pathsError
	}
	bundleConfig, configError := dependencies.bundles.BundleConfig()
	if configError != nil {
		return store.Paths{}, store.Config{}, configError
	}
	return bundlePaths, bundleConfig, nil
}

// newRegistry builds a fresh hook registry for one operation, so a bundle
// switched between invocations is always picked up.
func (dependencies serviceDependencies) newRegistry(bundlePaths store.Paths) (*hooks.Registry, error) {
	shellExecutor, executorError := execshell.NewShellExecutor(dependencies.logger, dependencies.runner)
	if executorError != nil {
		return nil, executorError
	}
	return hooks.NewRegistry(bundlePaths, shellExecutor, dependencies.logger), nil
}

func (dependencies serviceDependencies) newShellExecutor() (*execshell.ShellExecutor, error) {
	return execshell.NewShellExecutor(dependencies.logger, dependencies.runner)
}

func (dependencies serviceDependencies) warnMissingOptionalTools(missingOptionalTools []string) {
	if len(missingOptionalTools) > 0 {
		dependencies.logger.Warn(missingOptionalToolsMessageConstant,
			zap.Strings(toolNamesFieldNameConstant, missingOptionalTools),
		)
	}
}

func brsViewFromConfig(bundleConfig store.Config) execution.BRSView {
	return execution.BRSView{
		Repo:     bundleConfig.Repo,
		Authors:  bundleConfig.Authors,
		Hosts:    bundleConfig.Hosts,
		Settings: bundleConfig.Settings,
	}
}

// materializeParameters converts host-aware string parameter values into
// local paths before an entry executes on this machine.
func materializeParameters(executionContext execution.Context, storedParameters map[string]any) map[string]any {
	materialized := make(map[string]any, len(storedParameters))
	for parameterName, parameterValue := range storedParameters {
		if stringValue, isString := parameterValue.(string); isString && hostpath.IsHostAware(stringValue) {
			materialized[parameterName] = executionContext.Materialize(stringValue)
			continue
		}
		materialized[parameterName] = parameterValue
	}
	return materialized
}

func missingDependencies(document project.Document, requiredTemplates []string) []string {
	var missing []string
	for _, requiredTemplate := range requiredTemplates {
		if !document.HasDependency(requiredTemplate) {
			missing = append(missing, requiredTemplate)
		}
	}
	sort.Strings(missing)
	return missing
}

func ensureKind(source descriptor.Source, expectedKind descriptor.Kind, requestedID string) error {
	if source.Kind != expectedKind {
		return KindMismatchError{
			ID:       requestedID,
			Actual:   string(source.Kind),
			Expected: string(expectedKind),
		}
	}
	return nil
}
