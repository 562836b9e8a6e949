package hooks_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/descriptor"
	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/execution"
	"github.com/bpm-tools/bpm/internal/hooks"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	hooksSubtestNameTemplateConstant = "%d_%s"
	echoHookScriptContentConstant    = "#!/bin/sh\necho \"function: $1\"\n"
	scalarResolverScriptConstant     = "#!/bin/sh\necho resolved-value\n"
	failingHookScriptConstant        = "#!/bin/sh\necho broken >&2\nexit 1\n"
	payloadEchoScriptConstant        = "#!/bin/sh\ncat\n"
	firstRevisionScriptConstant      = "#!/bin/sh\necho first-revision\n"
	secondRevisionScriptConstant     = "#!/bin/sh\necho second-revision\n"
)

func TestParseReference(testInstance *testing.T) {
	testCases := []struct {
		name              string
		rawReference      string
		expectedReference hooks.Reference
		expectError       bool
	}{
		{
			name:              "module_only_defaults_to_main",
			rawReference:      "prepare",
			expectedReference: hooks.Reference{Module: "prepare", Function: "main"},
		},
		{
			name:              "module_and_function",
			rawReference:      "builtin:timestamp",
			expectedReference: hooks.Reference{Module: "builtin", Function: "timestamp"},
		},
		{
			name:              "trailing_separator_defaults_to_main",
			rawReference:      "prepare:",
			expectedReference: hooks.Reference{Module: "prepare", Function: "main"},
		},
		{
			name:         "empty_reference_fails",
			rawReference: "",
			expectError:  true,
		},
		{
			name:         "blank_module_fails",
			rawReference: ":main",
			expectError:  true,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(hooksSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			parsedReference, parseError := hooks.ParseReference(testCase.rawReference)
			if testCase.expectError {
				var invalidError hooks.InvalidReferenceError
				require.ErrorAs(testInstance, parseError, &invalidError)
				return
			}
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectedReference, parsedReference)
		})
	}
}

func buildExecutionContext(workingDirectory string) execution.Context {
	return execution.Build(
		&execution.ProjectView{Name: "250901_Demo_UKA", ProjectPath: workingDirectory},
		"hello",
		map[string]any{"name": "Alice"},
		execution.BRSView{},
		workingDirectory,
	)
}

func buildRegistry(testInstance *testing.T, bundleRoot string) *hooks.Registry {
	executor, executorError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner())
	require.NoError(testInstance, executorError)
	return hooks.NewRegistry(store.GetPaths(bundleRoot), executor, zap.NewNop())
}

func writeBundleScript(testInstance *testing.T, bundleRoot string, directoryName string, moduleName string, scriptContent string) {
	scriptDirectory := filepath.Join(bundleRoot, directoryName)
	require.NoError(testInstance, os.MkdirAll(scriptDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(scriptDirectory, moduleName), []byte(scriptContent), 0o755))
}

func TestBuiltinFunctions(testInstance *testing.T) {
	workingDirectory := testInstance.TempDir()
	registry := buildRegistry(testInstance, testInstance.TempDir())
	executionContext := buildExecutionContext(workingDirectory)

	cwdValue, cwdError := registry.Invoke(context.Background(), hooks.Reference{Module: "builtin", Function: "cwd"}, "hook", executionContext, nil)
	require.NoError(testInstance, cwdError)
	require.Equal(testInstance, workingDirectory, cwdValue)

	hostnameValue, hostnameError := registry.Invoke(context.Background(), hooks.Reference{Module: "builtin", Function: "hostname"}, "hook", executionContext, nil)
	require.NoError(testInstance, hostnameError)
	require.NotEmpty(testInstance, hostnameValue)

	timestampValue, timestampError := registry.Invoke(context.Background(), hooks.Reference{Module: "builtin", Function: "timestamp"}, "hook", executionContext, nil)
	require.NoError(testInstance, timestampError)
	require.Regexp(testInstance, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`, timestampValue)
}

func TestBuiltinRawBasename(testInstance *testing.T) {
	registry := buildRegistry(testInstance, testInstance.TempDir())
	executionContext := buildExecutionContext(testInstance.TempDir())

	basenameValue, basenameError := registry.Invoke(
		context.Background(),
		hooks.Reference{Module: "builtin", Function: "raw_basename"},
		"resolver",
		executionContext,
		map[string]any{"path": "/data/raw/sample01.fastq.gz"},
	)
	require.NoError(testInstance, basenameError)
	require.Equal(testInstance, "sample01", basenameValue)

	_, missingArgumentError := registry.Invoke(
		context.Background(),
		hooks.Reference{Module: "builtin", Function: "raw_basename"},
		"resolver",
		executionContext,
		nil,
	)
	require.Error(testInstance, missingArgumentError)
}

func TestBuiltinIdleThreads(testInstance *testing.T) {
	registry := buildRegistry(testInstance, testInstance.TempDir())
	executionContext := buildExecutionContext(testInstance.TempDir())

	defaultThreads, defaultError := registry.Invoke(
		context.Background(),
		hooks.Reference{Module: "builtin", Function: "idle_threads"},
		"resolver",
		executionContext,
		nil,
	)
	require.NoError(testInstance, defaultError)
	require.GreaterOrEqual(testInstance, defaultThreads.(int), 1)

	minimumThreads, minimumError := registry.Invoke(
		context.Background(),
		hooks.Reference{Module: "builtin", Function: "idle_threads"},
		"resolver",
		executionContext,
		map[string]any{"percentage": 0},
	)
	require.NoError(testInstance, minimumError)
	require.Equal(testInstance, 1, minimumThreads)

	_, rangeError := registry.Invoke(
		context.Background(),
		hooks.Reference{Module: "builtin", Function: "idle_threads"},
		"resolver",
		executionContext,
		map[string]any{"percentage": 250},
	)
	require.Error(testInstance, rangeError)
}

func TestInvokeUnknownBuiltinFails(testInstance *testing.T) {
	registry := buildRegistry(testInstance, testInstance.TempDir())

	_, invokeError := registry.Invoke(
		context.Background(),
		hooks.Reference{Module: "builtin", Function: "unheard_of"},
		"hook",
		buildExecutionContext(testInstance.TempDir()),
		nil,
	)
	var unknownError hooks.UnknownFunctionError
	require.ErrorAs(testInstance, invokeError, &unknownError)
	require.Equal(testInstance, "unheard_of", unknownError.Function)
}

func TestInvokeBundleScriptParsesOutput(testInstance *testing.T) {
	bundleRoot := testInstance.TempDir()
	writeBundleScript(testInstance, bundleRoot, "hooks", "prepare", echoHookScriptContentConstant)
	registry := buildRegistry(testInstance, bundleRoot)

	scriptValue, invokeError := registry.Invoke(
		context.Background(),
		hooks.Reference{Module: "prepare", Function: "warmup"},
		"hook",
		buildExecutionContext(testInstance.TempDir()),
		nil,
	)
	require.NoError(testInstance, invokeError)
	require.Equal(testInstance, map[string]any{"function": "warmup"}, scriptValue)
}

func TestInvokeBundleScriptReceivesContextPayload(testInstance *testing.T) {
	bundleRoot := testInstance.TempDir()
	writeBundleScript(testInstance, bundleRoot, "resolvers", "inspect", payloadEchoScriptConstant)
	registry := buildRegistry(testInstance, bundleRoot)

	payloadValue, invokeError := registry.Invoke(
		context.Background(),
		hooks.Reference{Module: "inspect", Function: "main"},
		"resolver",
		buildExecutionContext(testInstance.TempDir()),
		map[string]any{"suffix": ".bam"},
	)
	require.NoError(testInstance, invokeError)

	payloadDocument, isMap := payloadValue.(map[string]any)
	require.True(testInstance, isMap)
	require.Contains(testInstance, payloadDocument, "context")
	require.Contains(testInstance, payloadDocument, "args")

	contextDocument := payloadDocument["context"].(map[string]any)
	require.Equal(testInstance, "hello", contextDocument["template"].(map[string]any)["id"])
	require.Equal(testInstance, ".bam", payloadDocument["args"].(map[string]any)["suffix"])
}

func TestFreshRegistryObservesBundleSwitch(testInstance *testing.T) {
	executionContext := buildExecutionContext(testInstance.TempDir())
	reference := hooks.Reference{Module: "prepare", Function: "main"}

	firstBundleRoot := testInstance.TempDir()
	writeBundleScript(testInstance, firstBundleRoot, "hooks", "prepare", firstRevisionScriptConstant)
	firstValue, firstError := buildRegistry(testInstance, firstBundleRoot).Invoke(context.Background(), reference, "hook", executionContext, nil)
	require.NoError(testInstance, firstError)
	require.Equal(testInstance, "first-revision", firstValue)

	secondBundleRoot := testInstance.TempDir()
	writeBundleScript(testInstance, secondBundleRoot, "hooks", "prepare", secondRevisionScriptConstant)
	secondValue, secondError := buildRegistry(testInstance, secondBundleRoot).Invoke(context.Background(), reference, "hook", executionContext, nil)
	require.NoError(testInstance, secondError)
	require.Equal(testInstance, "second-revision", secondValue)
}

func TestInvokeObservesEditedScript(testInstance *testing.T) {
	bundleRoot := testInstance.TempDir()
	executionContext := buildExecutionContext(testInstance.TempDir())
	reference := hooks.Reference{Module: "prepare", Function: "main"}

	writeBundleScript(testInstance, bundleRoot, "hooks", "prepare", firstRevisionScriptConstant)
	firstValue, firstError := buildRegistry(testInstance, bundleRoot).Invoke(context.Background(), reference, "hook", executionContext, nil)
	require.NoError(testInstance, firstError)
	require.Equal(testInstance, "first-revision", firstValue)

	writeBundleScript(testInstance, bundleRoot, "hooks", "prepare", secondRevisionScriptConstant)
	secondValue, secondError := buildRegistry(testInstance, bundleRoot).Invoke(context.Background(), reference, "hook", executionContext, nil)
	require.NoError(testInstance, secondError)
	require.Equal(testInstance, "second-revision", secondValue)
}

func TestInvokeMissingScriptFails(testInstance *testing.T) {
	registry := buildRegistry(testInstance, testInstance.TempDir())

	_, invokeError := registry.Invoke(
		context.Background(),
		hooks.Reference{Module: "absent", Function: "main"},
		"hook",
		buildExecutionContext(testInstance.TempDir()),
		nil,
	)
	var notFoundError hooks.ScriptNotFoundError
	require.ErrorAs(testInstance, invokeError, &notFoundError)
	require.Equal(testInstance, "hook", notFoundError.Kind)
}

func TestRunHooksAbortsOnFirstFailure(testInstance *testing.T) {
	bundleRoot := testInstance.TempDir()
	writeBundleScript(testInstance, bundleRoot, "hooks", "failing", failingHookScriptConstant)
	registry := buildRegistry(testInstance, bundleRoot)

	runError := registry.RunHooks(
		context.Background(),
		descriptor.StagePreRender,
		[]string{"failing", "builtin:cwd"},
		buildExecutionContext(testInstance.TempDir()),
	)
	require.Error(testInstance, runError)
	require.Contains(testInstance, runError.Error(), descriptor.StagePreRender)
	require.Contains(testInstance, runError.Error(), "failing:main")
}

func TestRunHooksSucceedsWithBuiltins(testInstance *testing.T) {
	registry := buildRegistry(testInstance, testInstance.TempDir())

	require.NoError(testInstance, registry.RunHooks(
		context.Background(),
		descriptor.StagePostRender,
		[]string{"builtin:cwd", "builtin:timestamp"},
		buildExecutionContext(testInstance.TempDir()),
	))
}

func TestResolveAllComputesEveryPublishedValue(testInstance *testing.T) {
	bundleRoot := testInstance.TempDir()
	writeBundleScript(testInstance, bundleRoot, "resolvers", "locate", scalarResolverScriptConstant)
	registry := buildRegistry(testInstance, bundleRoot)

	publishedValues, resolveError := registry.ResolveAll(
		context.Background(),
		map[string]descriptor.PublishSpec{
			"output_dir": {Resolver: "locate"},
			"sample":     {Resolver: "builtin:raw_basename", Args: map[string]any{"path": "/raw/s1.fastq.gz"}},
		},
		buildExecutionContext(testInstance.TempDir()),
	)
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, map[string]any{
		"output_dir": "resolved-value",
		"sample":     "s1",
	}, publishedValues)
}

func TestResolveAllFailsOnBrokenResolver(testInstance *testing.T) {
	registry := buildRegistry(testInstance, testInstance.TempDir())

	_, resolveError := registry.ResolveAll(
		context.Background(),
		map[string]descriptor.PublishSpec{"output_dir": {Resolver: "missing"}},
		buildExecutionContext(testInstance.TempDir()),
	)
	require.Error(testInstance, resolveError)
	require.Contains(testInstance, resolveError.Error(), "output_dir")
}
