package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/project"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	projectDirectoryPermissionConstant    = 0o755
	projectAlreadyExistsTemplateConstant  = "project directory already holds a manifest: %s"
	hostPathSeparatorFormatConstant       = "%s:%s"
)

// ProjectAlreadyExistsError reports an init attempt against a directory
// that already contains a project manifest.
type ProjectAlreadyExistsError struct {
	Directory string
}

// Error implements the error interface.
func (errorDetails ProjectAlreadyExistsError) Error() string {
	return fmt.Sprintf(projectAlreadyExistsTemplateConstant, errorDetails.Directory)
}

// ProjectService creates and inspects managed project directories.
type ProjectService struct {
	dependencies serviceDependencies
}

// NewProjectService builds a project service over the given bundle provider.
func NewProjectService(bundles store.BundleProvider, runner execshell.CommandRunner, logger *zap.Logger) *ProjectService {
	return &ProjectService{dependencies: newServiceDependencies(bundles, runner, logger)}
}

// Init creates the project directory under parentDirectory and writes a
// fresh manifest. The recorded project path is host-aware, so the manifest
// stays valid when the directory is reached from another configured host.
func (service *ProjectService) Init(parentDirectory string, projectName string) (project.Document, error) {
	_, bundleConfig, bundleError := service.dependencies.loadBundle()
	if bundleError != nil {
		return project.Document{}, bundleError
	}

	projectDirectory := filepath.Join(parentDirectory, projectName)
	if _, statError := os.Stat(filepath.Join(projectDirectory, project.DocumentFileName)); statError == nil {
		return project.Document{}, ProjectAlreadyExistsError{Directory: projectDirectory}
	}
	if directoryError := os.MkdirAll(projectDirectory, projectDirectoryPermissionConstant); directoryError != nil {
		return project.Document{}, directoryError
	}

	absoluteDirectory, absoluteError := filepath.Abs(projectDirectory)
	if absoluteError != nil {
		return project.Document{}, absoluteError
	}
	projectPath := absoluteDirectory
	if hostName := localHostname(); len(hostName) > 0 {
		projectPath = fmt.Sprintf(hostPathSeparatorFormatConstant, hostName, absoluteDirectory)
	}

	document := project.New(projectName, projectPath, authorIdentifiers(bundleConfig.Authors))
	if saveError := project.Save(projectDirectory, document); saveError != nil {
		return project.Document{}, saveError
	}
	return document, nil
}

// Info loads the manifest of an existing project directory.
func (service *ProjectService) Info(projectDirectory string) (project.Document, error) {
	return project.Load(projectDirectory)
}

func authorIdentifiers(authorsConfiguration map[string]any) []string {
	if len(authorsConfiguration) == 0 {
		return nil
	}
	identifiers := make([]string, 0, len(authorsConfiguration))
	for authorIdentifier := range authorsConfiguration {
		identifiers = append(identifiers, authorIdentifier)
	}
	sort.Strings(identifiers)
	return identifiers
}

func localHostname() string {
	fullHostname, hostnameError := os.Hostname()
	if hostnameError != nil {
		return ""
	}
	shortHostname, _, _ := strings.Cut(fullHostname, ".")
	return shortHostname
}
