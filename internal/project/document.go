package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bpm-tools/bpm/internal/yamlfile"
)

const (
	// DocumentFileName is the project manifest file inside a project directory.
	DocumentFileName = "project.yaml"
	// SchemaVersion is written into every new project manifest.
	SchemaVersion = 1

	projectNotFoundTemplateConstant = "no project manifest in %s"
	timestampLayoutConstant         = "2006-01-02T15:04:05Z07:00"
)

// Project lifecycle statuses.
const (
	StatusInitiated = "initiated"
	StatusActive    = "active"
	StatusClosed    = "closed"
)

// Template instance statuses inside a project.
const (
	TemplateStatusActive    = "active"
	TemplateStatusCompleted = "completed"
)

// Workflow run outcomes recorded in project history.
const (
	WorkflowStatusCompleted = "completed"
	WorkflowStatusFailed    = "failed"
)

// Document is the persisted project manifest. ProjectPath may be
// host-aware so the same manifest is valid from any configured machine.
type Document struct {
	SchemaVersion int              `yaml:"schema_version"`
	Name          string           `yaml:"name"`
	Created       string           `yaml:"created"`
	ProjectPath   string           `yaml:"project_path"`
	Authors       []string         `yaml:"authors,omitempty"`
	Status        string           `yaml:"status"`
	Templates     []*TemplateEntry `yaml:"templates"`
	Workflows     []WorkflowRun    `yaml:"workflows,omitempty"`
}

// TemplateEntry records one rendered template instance.
type TemplateEntry struct {
	ID             string         `yaml:"id"`
	SourceTemplate string         `yaml:"source_template,omitempty"`
	Rendered       string         `yaml:"rendered,omitempty"`
	Status         string         `yaml:"status"`
	Params         map[string]any `yaml:"params,omitempty"`
	Published      map[string]any `yaml:"published,omitempty"`
}

// WorkflowRun is one entry of the project's workflow history.
type WorkflowRun struct {
	ID       string         `yaml:"id"`
	Started  string         `yaml:"started"`
	Finished string         `yaml:"finished,omitempty"`
	Status   string         `yaml:"status"`
	Params   map[string]any `yaml:"params,omitempty"`
}

// NotFoundError indicates a directory without a project manifest.
type NotFoundError struct {
	Directory string
}

// Error implements the error interface.
func (errorDetails NotFoundError) Error() string {
	return fmt.Sprintf(projectNotFoundTemplateConstant, errorDetails.Directory)
}

// Timestamp returns the current UTC time in the manifest timestamp layout.
func Timestamp() string {
	return time.Now().UTC().Truncate(time.Second).Format(timestampLayoutConstant)
}

// New builds a fresh manifest for a project directory.
func New(projectName string, projectPath string, authors []string) Document {
	return Document{
		SchemaVersion: SchemaVersion,
		Name:          projectName,
		Created:       Timestamp(),
		ProjectPath:   projectPath,
		Authors:       authors,
		Status:        StatusInitiated,
		Templates:     []*TemplateEntry{},
	}
}

// Load reads the manifest from a project directory.
func Load(projectDirectory string) (Document, error) {
	documentPath := filepath.Join(projectDirectory, DocumentFileName)
	var document Document
	if loadError := yamlfile.Load(documentPath, &document); loadError != nil {
		if errors.Is(loadError, os.ErrNotExist) {
			return Document{}, NotFoundError{Directory: projectDirectory}
		}
		return Document{}, loadError
	}
	return document, nil
}

// Save writes the manifest atomically into a project directory.
func Save(projectDirectory string, document Document) error {
	return yamlfile.SaveAtomic(filepath.Join(projectDirectory, DocumentFileName), document)
}

// FindTemplate returns the entry with the given instance identifier.
func (document *Document) FindTemplate(instanceID string) *TemplateEntry {
	for _, templateEntry := range document.Templates {
		if templateEntry.ID == instanceID {
			return templateEntry
		}
	}
	return nil
}

// EnsureTemplate returns the entry for the instance identifier, creating it
// when absent. The manifest holds at most one entry per instance, so
// re-rendering updates in place instead of appending duplicates, and the
// entry always records the template behind the latest render.
func (document *Document) EnsureTemplate(instanceID string, sourceTemplate string) *TemplateEntry {
	if existingEntry := document.FindTemplate(instanceID); existingEntry != nil {
		existingEntry.SourceTemplate = sourceTemplate
		return existingEntry
	}
	newEntry := &TemplateEntry{ID: instanceID, SourceTemplate: sourceTemplate, Status: TemplateStatusActive}
	document.Templates = append(document.Templates, newEntry)
	return newEntry
}

// HasDependency reports whether any recorded instance was rendered from the
// given source template. Manifests written before instance aliases existed
// carry the source identifier in ID, so both fields are checked.
func (document *Document) HasDependency(sourceTemplateID string) bool {
	for _, templateEntry := range document.Templates {
		if templateEntry.SourceTemplate == sourceTemplateID || templateEntry.ID == sourceTemplateID {
			return true
		}
	}
	return false
}
