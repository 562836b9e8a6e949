package services_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/project"
	"github.com/bpm-tools/bpm/internal/services"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	fixtureBundleRepoConstant = "id: acme-brs\nversion: 1.4.0\n"

	fixtureHelloDescriptorConstant = `id: hello
params:
  name:
    type: str
    required: true
render:
  files:
    - greeting.txt.tmpl -> greeting.txt
    - run.sh -> run.sh
run:
  entry: run.sh
publish:
  sample:
    resolver: builtin:raw_basename
    args:
      path: /raw/s1.fastq.gz
hooks:
  post_render:
    - builtin:timestamp
`

	fixtureDependentDescriptorConstant = `id: variant_call
requires:
  - align
render:
  files: []
`

	fixtureWorkflowDescriptorConstant = `id: qc
render:
  files:
    - check.sh -> check.sh
run:
  entry: check.sh
`

	fixtureFailingWorkflowDescriptorConstant = `id: broken
render:
  files:
    - fail.sh -> fail.sh
run:
  entry: fail.sh
`

	fixtureGreetingTemplateConstant = "Hello {{ .ctx.params.name }}\n"
	fixtureRunScriptConstant        = "#!/bin/sh\necho ran > ran.txt\n"
	fixtureCheckScriptConstant      = "#!/bin/sh\necho done > qc.txt\n"
	fixtureFailScriptConstant       = "#!/bin/sh\nexit 1\n"

	fixtureProjectNameConstant = "250901_Demo_UKA"
)

func writeFixtureFile(testInstance *testing.T, filePath string, content string, permissions os.FileMode) {
	require.NoError(testInstance, os.MkdirAll(filepath.Dir(filePath), 0o755))
	require.NoError(testInstance, os.WriteFile(filePath, []byte(content), permissions))
}

func writeFixtureBundle(testInstance *testing.T) string {
	bundleRoot := testInstance.TempDir()
	writeFixtureFile(testInstance, filepath.Join(bundleRoot, "repo.yaml"), fixtureBundleRepoConstant, 0o644)

	helloDirectory := filepath.Join(bundleRoot, "templates", "hello")
	writeFixtureFile(testInstance, filepath.Join(helloDirectory, "template_config.yaml"), fixtureHelloDescriptorConstant, 0o644)
	writeFixtureFile(testInstance, filepath.Join(helloDirectory, "greeting.txt.tmpl"), fixtureGreetingTemplateConstant, 0o644)
	writeFixtureFile(testInstance, filepath.Join(helloDirectory, "run.sh"), fixtureRunScriptConstant, 0o755)

	dependentDirectory := filepath.Join(bundleRoot, "templates", "variant_call")
	writeFixtureFile(testInstance, filepath.Join(dependentDirectory, "template_config.yaml"), fixtureDependentDescriptorConstant, 0o644)

	workflowDirectory := filepath.Join(bundleRoot, "workflows", "qc")
	writeFixtureFile(testInstance, filepath.Join(workflowDirectory, "workflow.yaml"), fixtureWorkflowDescriptorConstant, 0o644)
	writeFixtureFile(testInstance, filepath.Join(workflowDirectory, "check.sh"), fixtureCheckScriptConstant, 0o755)

	failingDirectory := filepath.Join(bundleRoot, "workflows", "broken")
	writeFixtureFile(testInstance, filepath.Join(failingDirectory, "workflow.yaml"), fixtureFailingWorkflowDescriptorConstant, 0o644)
	writeFixtureFile(testInstance, filepath.Join(failingDirectory, "fail.sh"), fixtureFailScriptConstant, 0o755)

	return bundleRoot
}

func writeFixtureProject(testInstance *testing.T) string {
	projectDirectory := testInstance.TempDir()
	document := project.New(fixtureProjectNameConstant, projectDirectory, nil)
	require.NoError(testInstance, project.Save(projectDirectory, document))
	return projectDirectory
}

func newTemplateService(testInstance *testing.T, bundleRoot string) *services.TemplateService {
	return services.NewTemplateService(store.DirectoryProvider{Root: bundleRoot}, execshell.NewOSCommandRunner(), zap.NewNop())
}

func newWorkflowService(testInstance *testing.T, bundleRoot string) *services.WorkflowService {
	return services.NewWorkflowService(store.DirectoryProvider{Root: bundleRoot}, execshell.NewOSCommandRunner(), zap.NewNop())
}

func TestTemplateRenderInProject(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	renderResult, renderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"hello",
		services.RenderOptions{Parameters: map[string]string{"name": "Alice"}},
	)
	require.NoError(testInstance, renderError)

	expectedTarget := filepath.Join(projectDirectory, fixtureProjectNameConstant, "hello")
	require.Equal(testInstance, expectedTarget, renderResult.TargetDirectory)

	renderedContent, readError := os.ReadFile(filepath.Join(expectedTarget, "greeting.txt"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "Hello Alice\n", string(renderedContent))

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, project.StatusActive, loadedDocument.Status)
	require.Len(testInstance, loadedDocument.Templates, 1)
	require.Equal(testInstance, "Alice", loadedDocument.Templates[0].Params["name"])
	require.NotEmpty(testInstance, loadedDocument.Templates[0].Rendered)
}

func TestTemplateRenderDryRunLeavesStateUntouched(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	renderResult, renderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"hello",
		services.RenderOptions{Parameters: map[string]string{"name": "Alice"}, DryRun: true},
	)
	require.NoError(testInstance, renderError)
	require.NotEmpty(testInstance, renderResult.Plan)

	_, statError := os.Stat(filepath.Join(projectDirectory, fixtureProjectNameConstant))
	require.True(testInstance, os.IsNotExist(statError))

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, project.StatusInitiated, loadedDocument.Status)
	require.Empty(testInstance, loadedDocument.Templates)
}

func TestTemplateRenderMissingParameterFails(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	_, renderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"hello",
		services.RenderOptions{},
	)
	require.Error(testInstance, renderError)
	require.Contains(testInstance, renderError.Error(), "name")
}

func TestTemplateRenderMissingDependencyFails(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	_, renderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"variant_call",
		services.RenderOptions{},
	)
	var missingError services.MissingDependenciesError
	require.ErrorAs(testInstance, renderError, &missingError)
	require.Equal(testInstance, []string{"align"}, missingError.Names)
}

func TestTemplateRenderAdHocWritesMetaRecord(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	outputDirectory := testInstance.TempDir()
	templateService := newTemplateService(testInstance, bundleRoot)

	renderResult, renderError := templateService.Render(
		context.Background(),
		services.AdHocMode{OutputDirectory: outputDirectory},
		"hello",
		services.RenderOptions{Parameters: map[string]string{"name": "Alice"}},
	)
	require.NoError(testInstance, renderError)
	require.Equal(testInstance, outputDirectory, renderResult.TargetDirectory)

	renderedContent, readError := os.ReadFile(filepath.Join(outputDirectory, "greeting.txt"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "Hello Alice\n", string(renderedContent))

	metaRecord, metaError := project.LoadMeta(outputDirectory)
	require.NoError(testInstance, metaError)
	require.Equal(testInstance, "acme-brs", metaRecord.Source.BRSID)
	require.Equal(testInstance, "1.4.0", metaRecord.Source.BRSVersion)
	require.Equal(testInstance, "hello", metaRecord.Source.TemplateID)
	require.Equal(testInstance, project.TemplateStatusActive, metaRecord.Status)
}

func TestTemplateRenderInstanceAlias(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	_, renderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"hello",
		services.RenderOptions{Parameters: map[string]string{"name": "Alice"}, InstanceID: "hello_rna"},
	)
	require.NoError(testInstance, renderError)

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Len(testInstance, loadedDocument.Templates, 1)
	require.Equal(testInstance, "hello_rna", loadedDocument.Templates[0].ID)
	require.Equal(testInstance, "hello", loadedDocument.Templates[0].SourceTemplate)

	renderedPath := filepath.Join(projectDirectory, fixtureProjectNameConstant, "hello_rna", "greeting.txt")
	_, statError := os.Stat(renderedPath)
	require.NoError(testInstance, statError)
}

func TestTemplateRenderTwiceCollapsesToSingleEntry(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	_, firstRenderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"hello",
		services.RenderOptions{Parameters: map[string]string{"name": "Alice"}},
	)
	require.NoError(testInstance, firstRenderError)

	_, secondRenderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"hello",
		services.RenderOptions{Parameters: map[string]string{"name": "Bob"}},
	)
	require.NoError(testInstance, secondRenderError)

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Len(testInstance, loadedDocument.Templates, 1)
	require.Equal(testInstance, "hello", loadedDocument.Templates[0].ID)
	require.Equal(testInstance, "Bob", loadedDocument.Templates[0].Params["name"])

	renderedContent, readError := os.ReadFile(filepath.Join(projectDirectory, fixtureProjectNameConstant, "hello", "greeting.txt"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "Hello Bob\n", string(renderedContent))
}

func TestTemplateRunExecutesEntry(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	_, renderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"hello",
		services.RenderOptions{Parameters: map[string]string{"name": "Alice"}},
	)
	require.NoError(testInstance, renderError)

	_, runError := templateService.Run(context.Background(), services.ProjectMode{Directory: projectDirectory}, "hello")
	require.NoError(testInstance, runError)

	targetDirectory := filepath.Join(projectDirectory, fixtureProjectNameConstant, "hello")
	_, statError := os.Stat(filepath.Join(targetDirectory, "ran.txt"))
	require.NoError(testInstance, statError)

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, project.TemplateStatusCompleted, loadedDocument.Templates[0].Status)
}

func TestTemplateRunUnknownInstanceFails(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	_, runError := templateService.Run(context.Background(), services.ProjectMode{Directory: projectDirectory}, "hello")
	var missingEntryError services.NoTemplateEntryError
	require.ErrorAs(testInstance, runError, &missingEntryError)
	require.Equal(testInstance, "hello", missingEntryError.InstanceID)
}

func TestTemplatePublishMergesValues(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	_, renderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"hello",
		services.RenderOptions{Parameters: map[string]string{"name": "Alice"}},
	)
	require.NoError(testInstance, renderError)

	publishedValues, publishError := templateService.Publish(context.Background(), services.ProjectMode{Directory: projectDirectory}, "hello")
	require.NoError(testInstance, publishError)
	require.Equal(testInstance, "s1", publishedValues["sample"])

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "s1", loadedDocument.Templates[0].Published["sample"])

	repeatedValues, repeatError := templateService.Publish(context.Background(), services.ProjectMode{Directory: projectDirectory}, "hello")
	require.NoError(testInstance, repeatError)
	require.Equal(testInstance, publishedValues, repeatedValues)
}

func TestTemplateServiceRejectsWorkflowID(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	templateService := newTemplateService(testInstance, bundleRoot)

	_, renderError := templateService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"qc",
		services.RenderOptions{},
	)
	var kindError services.KindMismatchError
	require.ErrorAs(testInstance, renderError, &kindError)
	require.Equal(testInstance, "qc", kindError.ID)
}

func TestWorkflowRunRecordsHistory(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	workflowService := newWorkflowService(testInstance, bundleRoot)

	_, runError := workflowService.Run(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"qc",
		services.RenderOptions{},
	)
	require.NoError(testInstance, runError)

	targetDirectory := filepath.Join(projectDirectory, fixtureProjectNameConstant, "qc")
	_, statError := os.Stat(filepath.Join(targetDirectory, "qc.txt"))
	require.NoError(testInstance, statError)

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Len(testInstance, loadedDocument.Workflows, 1)
	require.Equal(testInstance, "qc", loadedDocument.Workflows[0].ID)
	require.Equal(testInstance, project.WorkflowStatusCompleted, loadedDocument.Workflows[0].Status)
	require.Empty(testInstance, loadedDocument.Templates)
}

func TestWorkflowRunFailureIsRecorded(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	workflowService := newWorkflowService(testInstance, bundleRoot)

	_, runError := workflowService.Run(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"broken",
		services.RenderOptions{},
	)
	require.Error(testInstance, runError)

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Len(testInstance, loadedDocument.Workflows, 1)
	require.Equal(testInstance, project.WorkflowStatusFailed, loadedDocument.Workflows[0].Status)
}

func TestWorkflowRenderDoesNotTouchProjectState(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	projectDirectory := writeFixtureProject(testInstance)
	workflowService := newWorkflowService(testInstance, bundleRoot)

	renderResult, renderError := workflowService.Render(
		context.Background(),
		services.ProjectMode{Directory: projectDirectory},
		"qc",
		services.RenderOptions{},
	)
	require.NoError(testInstance, renderError)
	require.NotEmpty(testInstance, renderResult.Plan)

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Empty(testInstance, loadedDocument.Templates)
	require.Empty(testInstance, loadedDocument.Workflows)
	require.Equal(testInstance, project.StatusInitiated, loadedDocument.Status)
}

func TestProjectServiceInit(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	parentDirectory := testInstance.TempDir()
	projectService := services.NewProjectService(store.DirectoryProvider{Root: bundleRoot}, execshell.NewOSCommandRunner(), zap.NewNop())

	document, initError := projectService.Init(parentDirectory, fixtureProjectNameConstant)
	require.NoError(testInstance, initError)
	require.Equal(testInstance, fixtureProjectNameConstant, document.Name)
	require.Equal(testInstance, project.StatusInitiated, document.Status)
	require.Contains(testInstance, document.ProjectPath, fixtureProjectNameConstant)

	loadedDocument, infoError := projectService.Info(filepath.Join(parentDirectory, fixtureProjectNameConstant))
	require.NoError(testInstance, infoError)
	require.Equal(testInstance, document.Name, loadedDocument.Name)

	_, repeatError := projectService.Init(parentDirectory, fixtureProjectNameConstant)
	var existsError services.ProjectAlreadyExistsError
	require.ErrorAs(testInstance, repeatError, &existsError)
}
