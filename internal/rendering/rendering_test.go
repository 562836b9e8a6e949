package rendering_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/descriptor"
	"github.com/bpm-tools/bpm/internal/execution"
	"github.com/bpm-tools/bpm/internal/rendering"
)

const (
	testGreetingTemplateConstant = "Hello {{ .ctx.params.name }}\n"
	testUndefinedTemplateConstant = "Hello {{ .ctx.params.nickname }}\n"
	testStaticContentConstant    = "threads = 8\n"
)

func buildRenderingContext(workingDirectory string) execution.Context {
	return execution.Build(
		&execution.ProjectView{Name: "250901_Demo_UKA", ProjectPath: "nextgen:/projects/250901_Demo_UKA"},
		"hello",
		map[string]any{"name": "Alice"},
		execution.BRSView{},
		workingDirectory,
	)
}

func buildRenderingDescriptor() descriptor.Descriptor {
	return descriptor.Descriptor{
		ID:         "hello",
		RenderInto: "${ctx.project.name}/${ctx.template.id}/",
		RenderFiles: []descriptor.RenderFile{
			{Source: "greeting.txt.tmpl", Destination: "greeting.txt"},
			{Source: "static.cfg", Destination: "conf/static.cfg"},
		},
		RunEntry: "run.sh",
	}
}

func writeTemplateFixture(testInstance *testing.T, templateContent string) string {
	templateRootDirectory := testInstance.TempDir()
	require.NoError(testInstance, os.WriteFile(filepath.Join(templateRootDirectory, "greeting.txt.tmpl"), []byte(templateContent), 0o644))
	require.NoError(testInstance, os.WriteFile(filepath.Join(templateRootDirectory, "static.cfg"), []byte(testStaticContentConstant), 0o644))
	return templateRootDirectory
}

func TestBuildPlanOrdering(testInstance *testing.T) {
	workingDirectory := testInstance.TempDir()
	executionContext := buildRenderingContext(workingDirectory)
	loadedDescriptor := buildRenderingDescriptor()

	plan := rendering.BuildPlan(loadedDescriptor, executionContext, "/bundle/templates/hello")

	targetDirectory := filepath.Join(workingDirectory, "250901_Demo_UKA", "hello")
	require.Equal(testInstance, []rendering.PlanItem{
		{Action: rendering.ActionMkdir, Destination: targetDirectory},
		{Action: rendering.ActionRender, Source: "/bundle/templates/hello/greeting.txt.tmpl", Destination: filepath.Join(targetDirectory, "greeting.txt")},
		{Action: rendering.ActionCopy, Source: "/bundle/templates/hello/static.cfg", Destination: filepath.Join(targetDirectory, "conf", "static.cfg")},
		{Action: rendering.ActionChmod, Destination: filepath.Join(targetDirectory, "run.sh")},
	}, plan)
}

func TestDryRunPlanMatchesExecutionPlan(testInstance *testing.T) {
	templateRootDirectory := writeTemplateFixture(testInstance, testGreetingTemplateConstant)
	workingDirectory := testInstance.TempDir()
	executionContext := buildRenderingContext(workingDirectory)
	loadedDescriptor := buildRenderingDescriptor()

	dryRunPlan, dryRunError := rendering.Render(loadedDescriptor, executionContext, templateRootDirectory, true, zap.NewNop())
	require.NoError(testInstance, dryRunError)

	executedPlan, executionError := rendering.Render(loadedDescriptor, executionContext, templateRootDirectory, false, zap.NewNop())
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, dryRunPlan, executedPlan)

	renderedFilePath := filepath.Join(workingDirectory, "250901_Demo_UKA", "hello", "greeting.txt")
	renderedContent, readError := os.ReadFile(renderedFilePath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "Hello Alice\n", string(renderedContent))
}

func TestDryRunWritesNothing(testInstance *testing.T) {
	templateRootDirectory := writeTemplateFixture(testInstance, testGreetingTemplateConstant)
	workingDirectory := testInstance.TempDir()

	_, renderError := rendering.Render(buildRenderingDescriptor(), buildRenderingContext(workingDirectory), templateRootDirectory, true, zap.NewNop())
	require.NoError(testInstance, renderError)

	directoryEntries, readError := os.ReadDir(workingDirectory)
	require.NoError(testInstance, readError)
	require.Empty(testInstance, directoryEntries)
}

func TestRenderCopiesStaticFilesAndMarksEntryExecutable(testInstance *testing.T) {
	templateRootDirectory := writeTemplateFixture(testInstance, testGreetingTemplateConstant)
	workingDirectory := testInstance.TempDir()
	targetDirectory := filepath.Join(workingDirectory, "250901_Demo_UKA", "hello")

	// Pre-create the run entry so chmod has a target, as a post_render hook would.
	require.NoError(testInstance, os.MkdirAll(targetDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(targetDirectory, "run.sh"), []byte("#!/bin/sh\n"), 0o644))

	_, renderError := rendering.Render(buildRenderingDescriptor(), buildRenderingContext(workingDirectory), templateRootDirectory, false, zap.NewNop())
	require.NoError(testInstance, renderError)

	copiedContent, readError := os.ReadFile(filepath.Join(targetDirectory, "conf", "static.cfg"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, testStaticContentConstant, string(copiedContent))

	entryInformation, statError := os.Stat(filepath.Join(targetDirectory, "run.sh"))
	require.NoError(testInstance, statError)
	require.NotZero(testInstance, entryInformation.Mode()&0o111)
}

func TestRenderChmodMissingTargetIsNoOp(testInstance *testing.T) {
	templateRootDirectory := writeTemplateFixture(testInstance, testGreetingTemplateConstant)

	_, renderError := rendering.Render(buildRenderingDescriptor(), buildRenderingContext(testInstance.TempDir()), templateRootDirectory, false, zap.NewNop())
	require.NoError(testInstance, renderError)
}

func TestRenderUndefinedVariableFails(testInstance *testing.T) {
	templateRootDirectory := writeTemplateFixture(testInstance, testUndefinedTemplateConstant)

	_, renderError := rendering.Render(buildRenderingDescriptor(), buildRenderingContext(testInstance.TempDir()), templateRootDirectory, false, zap.NewNop())
	require.Error(testInstance, renderError)
	require.Contains(testInstance, renderError.Error(), "greeting.txt.tmpl")
}

func TestRenderMissingSourceFails(testInstance *testing.T) {
	templateRootDirectory := testInstance.TempDir()

	_, renderError := rendering.Render(buildRenderingDescriptor(), buildRenderingContext(testInstance.TempDir()), templateRootDirectory, false, zap.NewNop())
	require.Error(testInstance, renderError)

	var notFoundError rendering.TemplateNotFoundError
	require.ErrorAs(testInstance, renderError, &notFoundError)
	require.Equal(testInstance, "greeting.txt.tmpl", notFoundError.RelativePath)
}

func TestRenderAbsoluteTargetPattern(testInstance *testing.T) {
	executionContext := buildRenderingContext("/unused")
	loadedDescriptor := buildRenderingDescriptor()
	loadedDescriptor.RenderInto = "/explicit/target"

	plan := rendering.BuildPlan(loadedDescriptor, executionContext, "/bundle/templates/hello")
	require.Equal(testInstance, "/explicit/target", plan[0].Destination)
}
