package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bpm-tools/bpm/internal/descriptor"
	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/execution"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	hookStartMessageConstant              = "hook starting"
	hookCompletedMessageConstant          = "hook completed"
	resolverCompletedMessageConstant      = "resolver completed"
	stageFieldNameConstant                = "stage"
	referenceFieldNameConstant            = "reference"
	publishKeyFieldNameConstant           = "key"
	unknownBuiltinTemplateConstant        = "unknown builtin function %q"
	scriptNotFoundTemplateConstant        = "%s script not found: %s"
	hookFailureTemplateConstant           = "hook %s at stage %s: %w"
	resolverFailureTemplateConstant       = "resolver %s for %s: %w"
	scriptOutputDecodeTemplateConstant    = "decoding %s output: %w"
	hookScriptKindLabelConstant           = "hook"
	resolverScriptKindLabelConstant       = "resolver"
)

// UnknownFunctionError reports a builtin reference naming no compiled-in
// function.
type UnknownFunctionError struct {
	Function string
}

// Error implements the error interface.
func (errorDetails UnknownFunctionError) Error() string {
	return fmt.Sprintf(unknownBuiltinTemplateConstant, errorDetails.Function)
}

// ScriptNotFoundError reports a module reference with no matching
// executable in the bundle.
type ScriptNotFoundError struct {
	Kind       string
	ScriptPath string
}

// Error implements the error interface.
func (errorDetails ScriptNotFoundError) Error() string {
	return fmt.Sprintf(scriptNotFoundTemplateConstant, errorDetails.Kind, errorDetails.ScriptPath)
}

// Registry dispatches hook and resolver references against one bundle.
// Builtins are compiled in under the builtin module; any other module name
// is an executable in the bundle's hooks/ or resolvers/ directory. A
// registry is built per operation from the active bundle's paths, so
// switching bundles never serves stale callables.
type Registry struct {
	bundlePaths store.Paths
	executor    *execshell.ShellExecutor
	builtins    map[string]BuiltinFunction
	logger      *zap.Logger
}

// NewRegistry builds a registry over the given bundle paths.
func NewRegistry(bundlePaths store.Paths, executor *execshell.ShellExecutor, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		bundlePaths: bundlePaths,
		executor:    executor,
		builtins:    builtinFunctions(),
		logger:      logger,
	}
}

type scriptPayload struct {
	Context map[string]any `json:"context"`
	Args    map[string]any `json:"args"`
}

// Invoke calls a single hook or resolver reference and returns its value.
func (registry *Registry) Invoke(
	invocationContext context.Context,
	reference Reference,
	scriptKind string,
	executionContext execution.Context,
	arguments map[string]any,
) (any, error) {
	if reference.Module == builtinModuleNameConstant {
		builtinFunction, isKnown := registry.builtins[reference.Function]
		if !isKnown {
			return nil, UnknownFunctionError{Function: reference.Function}
		}
		return builtinFunction(executionContext, arguments)
	}
	return registry.invokeScript(invocationContext, reference, scriptKind, executionContext, arguments)
}

func (registry *Registry) invokeScript(
	invocationContext context.Context,
	reference Reference,
	scriptKind string,
	executionContext execution.Context,
	arguments map[string]any,
) (any, error) {
	scriptDirectory := registry.bundlePaths.HooksDir
	if scriptKind == resolverScriptKindLabelConstant {
		scriptDirectory = registry.bundlePaths.ResolversDir
	}
	scriptPath := filepath.Join(scriptDirectory, reference.Module)

	if _, statError := os.Stat(scriptPath); statError != nil {
		if os.IsNotExist(statError) {
			return nil, ScriptNotFoundError{Kind: scriptKind, ScriptPath: scriptPath}
		}
		return nil, statError
	}

	payloadBytes, marshalError := json.Marshal(scriptPayload{
		Context: executionContext.InterpolationRoot(),
		Args:    arguments,
	})
	if marshalError != nil {
		return nil, marshalError
	}

	executionResult, executionError := registry.executor.Execute(invocationContext, execshell.ShellCommand{
		Path:             scriptPath,
		Arguments:        []string{reference.Function},
		WorkingDirectory: executionContext.Cwd,
		StandardInput:    payloadBytes,
	})
	if executionError != nil {
		return nil, executionError
	}

	trimmedOutput := strings.TrimSpace(executionResult.StandardOutput)
	if len(trimmedOutput) == 0 {
		return nil, nil
	}
	var decodedValue any
	if decodeError := yaml.Unmarshal([]byte(trimmedOutput), &decodedValue); decodeError != nil {
		return nil, fmt.Errorf(scriptOutputDecodeTemplateConstant, reference.String(), decodeError)
	}
	return decodedValue, nil
}

// RunHooks invokes every reference of a lifecycle stage in declared order,
// aborting on the first failure.
func (registry *Registry) RunHooks(
	invocationContext context.Context,
	stage string,
	references []string,
	executionContext execution.Context,
) error {
	for _, rawReference := range references {
		reference, parseError := ParseReference(rawReference)
		if parseError != nil {
			return fmt.Errorf(hookFailureTemplateConstant, rawReference, stage, parseError)
		}

		registry.logger.Info(hookStartMessageConstant,
			zap.String(stageFieldNameConstant, stage),
			zap.String(referenceFieldNameConstant, reference.String()),
		)
		if _, invokeError := registry.Invoke(invocationContext, reference, hookScriptKindLabelConstant, executionContext, nil); invokeError != nil {
			return fmt.Errorf(hookFailureTemplateConstant, reference.String(), stage, invokeError)
		}
		registry.logger.Info(hookCompletedMessageConstant,
			zap.String(stageFieldNameConstant, stage),
			zap.String(referenceFieldNameConstant, reference.String()),
		)
	}
	return nil
}

// ResolveAll computes every published value in sorted key order.
func (registry *Registry) ResolveAll(
	invocationContext context.Context,
	publishSpecs map[string]descriptor.PublishSpec,
	executionContext execution.Context,
) (map[string]any, error) {
	publishKeys := make([]string, 0, len(publishSpecs))
	for publishKey := range publishSpecs {
		publishKeys = append(publishKeys, publishKey)
	}
	sort.Strings(publishKeys)

	publishedValues := make(map[string]any, len(publishKeys))
	for _, publishKey := range publishKeys {
		publishSpec := publishSpecs[publishKey]
		reference, parseError := ParseReference(publishSpec.Resolver)
		if parseError != nil {
			return nil, fmt.Errorf(resolverFailureTemplateConstant, publishSpec.Resolver, publishKey, parseError)
		}

		resolvedValue, invokeError := registry.Invoke(invocationContext, reference, resolverScriptKindLabelConstant, executionContext, publishSpec.Args)
		if invokeError != nil {
			return nil, fmt.Errorf(resolverFailureTemplateConstant, reference.String(), publishKey, invokeError)
		}
		publishedValues[publishKey] = resolvedValue
		registry.logger.Info(resolverCompletedMessageConstant,
			zap.String(publishKeyFieldNameConstant, publishKey),
			zap.String(referenceFieldNameConstant, reference.String()),
		)
	}
	return publishedValues, nil
}
