package store

// BundleProvider is the boundary the rendering pipeline consumes: given an
// activated bundle, expose its directory layout and configuration. The
// registry implements it for normal CLI use; tests and ad-hoc invocations
// can point a DirectoryProvider at any bundle root directly.
type BundleProvider interface {
	BundlePaths() (Paths, error)
	BundleConfig() (Config, error)
}

// DirectoryProvider serves a fixed bundle root.
type DirectoryProvider struct {
	Root string
}

// BundlePaths returns the directory layout under the fixed root.
func (provider DirectoryProvider) BundlePaths() (Paths, error) {
	return GetPaths(provider.Root), nil
}

// BundleConfig loads the bundle configuration from the fixed root.
func (provider DirectoryProvider) BundleConfig() (Config, error) {
	return LoadConfig(provider.Root)
}

// BundlePaths resolves the active bundle and returns its directory layout.
func (registry *Registry) BundlePaths() (Paths, error) {
	activeRoot, activeError := registry.ActiveRoot()
	if activeError != nil {
		return Paths{}, activeError
	}
	return GetPaths(activeRoot), nil
}

// BundleConfig resolves the active bundle and loads its configuration.
func (registry *Registry) BundleConfig() (Config, error) {
	activeRoot, activeError := registry.ActiveRoot()
	if activeError != nil {
		return Config{}, activeError
	}
	return LoadConfig(activeRoot)
}
