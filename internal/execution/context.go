package execution

import (
	"os"
	"strings"
	"time"

	"github.com/bpm-tools/bpm/internal/hostpath"
)

const (
	contextRootKeyConstant        = "ctx"
	projectDataKeyConstant        = "project"
	projectNameDataKeyConstant    = "name"
	projectPathDataKeyConstant    = "project_path"
	templateDataKeyConstant       = "template"
	templateIDDataKeyConstant     = "id"
	templatePublishedDataKeyConstant = "published"
	paramsDataKeyConstant         = "params"
	brsDataKeyConstant            = "brs"
	brsRepoDataKeyConstant        = "repo"
	brsAuthorsDataKeyConstant     = "authors"
	brsHostsDataKeyConstant       = "hosts"
	brsSettingsDataKeyConstant    = "settings"
	cwdDataKeyConstant            = "cwd"
	hostnameSeparatorConstant     = "."
	timestampLayoutConstant       = "2006-01-02T15:04:05Z07:00"
)

// ProjectView is the minimal project surface exposed to templates, hooks,
// and resolvers. ProjectPath keeps the persisted host-aware form.
type ProjectView struct {
	Name        string
	ProjectPath string
}

// TemplateView is the minimal view of the template instance being operated on.
type TemplateView struct {
	ID        string
	Published map[string]any
}

// BRSView carries the active bundle's configuration documents.
type BRSView struct {
	Repo     map[string]any
	Authors  map[string]any
	Hosts    map[string]any
	Settings map[string]any
}

// Context is the read-only execution context handed to templated files,
// lifecycle hooks, and publish resolvers. The rendering machinery never
// mutates it; only a publish pass reassigns Template.Published.
type Context struct {
	Project  *ProjectView
	Template TemplateView
	Params   map[string]any
	BRS      BRSView
	Cwd      string
}

// Build assembles a Context from already-resolved inputs. Pure constructor:
// no filesystem or clock access happens here.
func Build(project *ProjectView, instanceID string, params map[string]any, brsView BRSView, workingDirectory string) Context {
	if params == nil {
		params = map[string]any{}
	}
	return Context{
		Project:  project,
		Template: TemplateView{ID: instanceID, Published: map[string]any{}},
		Params:   params,
		BRS:      brsView,
		Cwd:      workingDirectory,
	}
}

// ProjectDir returns the local base directory for the operation: the
// materialized project path in project mode, Cwd in ad-hoc mode.
func (executionContext Context) ProjectDir() string {
	if executionContext.Project == nil {
		return executionContext.Cwd
	}
	return executionContext.Materialize(executionContext.Project.ProjectPath)
}

// Materialize converts a host-aware path string into a local path using the
// bundle's hosts configuration.
func (executionContext Context) Materialize(rawPath string) string {
	parsedPath := hostpath.Parse(rawPath, executionContext.Hostname())
	return parsedPath.Materialize(hostpath.MountPrefixes(executionContext.BRS.Hosts), "")
}

// Hostname returns the short local hostname.
func (executionContext Context) Hostname() string {
	fullHostname, hostnameError := os.Hostname()
	if hostnameError != nil {
		return ""
	}
	shortHostname, _, _ := strings.Cut(fullHostname, hostnameSeparatorConstant)
	return shortHostname
}

// Now returns the current UTC time as an ISO-8601 string with second precision.
func (executionContext Context) Now() string {
	return time.Now().UTC().Truncate(time.Second).Format(timestampLayoutConstant)
}

// TemplateData renders the context as the nested data tree exposed to
// templated files, so `{{ .ctx.params.name }}` resolves naturally.
func (executionContext Context) TemplateData() map[string]any {
	return map[string]any{contextRootKeyConstant: executionContext.InterpolationRoot()}
}

// InterpolationRoot renders the context as the tree that ${ctx.*}
// placeholders resolve against.
func (executionContext Context) InterpolationRoot() map[string]any {
	var projectData any
	if executionContext.Project != nil {
		projectData = map[string]any{
			projectNameDataKeyConstant: executionContext.Project.Name,
			projectPathDataKeyConstant: executionContext.Project.ProjectPath,
		}
	}
	return map[string]any{
		projectDataKeyConstant: projectData,
		templateDataKeyConstant: map[string]any{
			templateIDDataKeyConstant:        executionContext.Template.ID,
			templatePublishedDataKeyConstant: executionContext.Template.Published,
		},
		paramsDataKeyConstant: executionContext.Params,
		brsDataKeyConstant: map[string]any{
			brsRepoDataKeyConstant:     executionContext.BRS.Repo,
			brsAuthorsDataKeyConstant:  executionContext.BRS.Authors,
			brsHostsDataKeyConstant:    executionContext.BRS.Hosts,
			brsSettingsDataKeyConstant: executionContext.BRS.Settings,
		},
		cwdDataKeyConstant: executionContext.Cwd,
	}
}
