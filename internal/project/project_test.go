package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpm-tools/bpm/internal/project"
)

func TestNewManifestDefaults(testInstance *testing.T) {
	document := project.New("250901_Demo_UKA", "nextgen:/projects/250901_Demo_UKA", []string{"jdoe"})

	require.Equal(testInstance, project.SchemaVersion, document.SchemaVersion)
	require.Equal(testInstance, project.StatusInitiated, document.Status)
	require.Equal(testInstance, []string{"jdoe"}, document.Authors)
	require.NotEmpty(testInstance, document.Created)
	require.Empty(testInstance, document.Templates)
}

func TestSaveAndLoadRoundTrip(testInstance *testing.T) {
	projectDirectory := testInstance.TempDir()
	document := project.New("250901_Demo_UKA", projectDirectory, nil)
	document.EnsureTemplate("hello", "hello").Params = map[string]any{"name": "Alice"}

	require.NoError(testInstance, project.Save(projectDirectory, document))

	loadedDocument, loadError := project.Load(projectDirectory)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, document.Name, loadedDocument.Name)
	require.Len(testInstance, loadedDocument.Templates, 1)
	require.Equal(testInstance, "Alice", loadedDocument.Templates[0].Params["name"])
}

func TestLoadMissingManifest(testInstance *testing.T) {
	emptyDirectory := testInstance.TempDir()

	_, loadError := project.Load(emptyDirectory)
	var notFoundError project.NotFoundError
	require.ErrorAs(testInstance, loadError, &notFoundError)
	require.Equal(testInstance, emptyDirectory, notFoundError.Directory)
}

func TestSaveLeavesNoTemporaryFile(testInstance *testing.T) {
	projectDirectory := testInstance.TempDir()
	require.NoError(testInstance, project.Save(projectDirectory, project.New("demo", projectDirectory, nil)))

	directoryEntries, readError := os.ReadDir(projectDirectory)
	require.NoError(testInstance, readError)
	require.Len(testInstance, directoryEntries, 1)
	require.Equal(testInstance, project.DocumentFileName, directoryEntries[0].Name())
}

func TestEnsureTemplateIsIdempotent(testInstance *testing.T) {
	document := project.New("demo", "/projects/demo", nil)

	firstEntry := document.EnsureTemplate("hello_rna", "hello")
	firstEntry.Params = map[string]any{"name": "Alice"}

	secondEntry := document.EnsureTemplate("hello_rna", "hello")
	require.Same(testInstance, firstEntry, secondEntry)
	require.Len(testInstance, document.Templates, 1)
	require.Equal(testInstance, "Alice", secondEntry.Params["name"])
}

func TestEnsureTemplateBackfillsSourceTemplate(testInstance *testing.T) {
	document := project.New("demo", "/projects/demo", nil)
	document.Templates = append(document.Templates, &project.TemplateEntry{ID: "hello", Status: project.TemplateStatusActive})

	entry := document.EnsureTemplate("hello", "hello")
	require.Equal(testInstance, "hello", entry.SourceTemplate)
}

func TestEnsureTemplateRepointsSourceTemplate(testInstance *testing.T) {
	document := project.New("demo", "/projects/demo", nil)
	document.EnsureTemplate("analysis", "hello")

	entry := document.EnsureTemplate("analysis", "variant_call")
	require.Len(testInstance, document.Templates, 1)
	require.Equal(testInstance, "variant_call", entry.SourceTemplate)
}

func TestHasDependency(testInstance *testing.T) {
	document := project.New("demo", "/projects/demo", nil)
	document.EnsureTemplate("hello_rna", "hello")
	document.Templates = append(document.Templates, &project.TemplateEntry{ID: "legacy_template", Status: project.TemplateStatusCompleted})

	require.True(testInstance, document.HasDependency("hello"))
	require.True(testInstance, document.HasDependency("legacy_template"))
	require.False(testInstance, document.HasDependency("absent"))
}

func TestMetaRecordRoundTrip(testInstance *testing.T) {
	outputDirectory := testInstance.TempDir()
	metaRecord := project.MetaRecord{
		Source:   project.MetaSource{BRSID: "acme-brs", BRSVersion: "1.4.0", TemplateID: "hello"},
		Rendered: project.Timestamp(),
		Status:   project.TemplateStatusActive,
		Params:   map[string]any{"name": "Alice"},
	}

	require.NoError(testInstance, project.SaveMeta(outputDirectory, metaRecord))

	loadedRecord, loadError := project.LoadMeta(outputDirectory)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, metaRecord.Source, loadedRecord.Source)
	require.Equal(testInstance, "Alice", loadedRecord.Params["name"])

	metaPath := filepath.Join(outputDirectory, project.MetaFileName)
	_, statError := os.Stat(metaPath)
	require.NoError(testInstance, statError)
}
