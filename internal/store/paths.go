package store

import "path/filepath"

const (
	configDirectoryNameConstant    = "config"
	templatesDirectoryNameConstant = "templates"
	workflowsDirectoryNameConstant = "workflows"
	hooksDirectoryNameConstant     = "hooks"
	resolversDirectoryNameConstant = "resolvers"
)

// Paths describes the standard directory layout inside a BRS bundle root.
type Paths struct {
	Root         string
	ConfigDir    string
	TemplatesDir string
	WorkflowsDir string
	HooksDir     string
	ResolversDir string
}

// GetPaths returns the standard bundle directories for the given root.
func GetPaths(bundleRoot string) Paths {
	return Paths{
		Root:         bundleRoot,
		ConfigDir:    filepath.Join(bundleRoot, configDirectoryNameConstant),
		TemplatesDir: filepath.Join(bundleRoot, templatesDirectoryNameConstant),
		WorkflowsDir: filepath.Join(bundleRoot, workflowsDirectoryNameConstant),
		HooksDir:     filepath.Join(bundleRoot, hooksDirectoryNameConstant),
		ResolversDir: filepath.Join(bundleRoot, resolversDirectoryNameConstant),
	}
}
