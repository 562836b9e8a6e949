package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/bpm-tools/bpm/internal/yamlfile"
)

const (
	repoMetadataFileNameConstant        = "repo.yaml"
	authorsConfigFileNameConstant       = "authors.yaml"
	hostsConfigFileNameConstant         = "hosts.yaml"
	settingsConfigFileNameConstant      = "settings.yaml"
	repoIdentifierKeyConstant           = "id"
	repoVersionKeyConstant              = "version"
	semanticVersionPrefixConstant       = "v"
	repoMetadataInvalidTemplateConstant = "invalid %s in %s: missing %q or %q"
	repoVersionInvalidTemplateConstant  = "invalid bundle version %q in %s: not a semantic version"
)

// Config holds the bundle-level configuration handed to the execution
// context: repository metadata plus the optional authors/hosts/settings
// documents from the bundle's config directory.
type Config struct {
	Repo     map[string]any
	Authors  map[string]any
	Hosts    map[string]any
	Settings map[string]any
}

// BundleID returns the bundle identifier declared in repo.yaml.
func (configuration Config) BundleID() string {
	identifier, _ := configuration.Repo[repoIdentifierKeyConstant].(string)
	return identifier
}

// BundleVersion returns the bundle version declared in repo.yaml.
func (configuration Config) BundleVersion() string {
	version, _ := configuration.Repo[repoVersionKeyConstant].(string)
	return version
}

// LoadConfig reads repo.yaml plus the optional config documents from the
// bundle root. Missing optional documents yield empty maps; a missing or
// malformed repo.yaml is an error.
func LoadConfig(bundleRoot string) (Config, error) {
	bundlePaths := GetPaths(bundleRoot)

	repoMetadata := map[string]any{}
	repoMetadataPath := filepath.Join(bundlePaths.Root, repoMetadataFileNameConstant)
	if loadError := yamlfile.Load(repoMetadataPath, &repoMetadata); loadError != nil {
		return Config{}, loadError
	}
	if validationError := validateRepoMetadata(repoMetadata, repoMetadataPath); validationError != nil {
		return Config{}, validationError
	}

	authorsConfiguration, authorsError := loadOptionalDocument(filepath.Join(bundlePaths.ConfigDir, authorsConfigFileNameConstant))
	if authorsError != nil {
		return Config{}, authorsError
	}
	hostsConfiguration, hostsError := loadOptionalDocument(filepath.Join(bundlePaths.ConfigDir, hostsConfigFileNameConstant))
	if hostsError != nil {
		return Config{}, hostsError
	}
	settingsConfiguration, settingsError := loadOptionalDocument(filepath.Join(bundlePaths.ConfigDir, settingsConfigFileNameConstant))
	if settingsError != nil {
		return Config{}, settingsError
	}

	return Config{
		Repo:     repoMetadata,
		Authors:  authorsConfiguration,
		Hosts:    hostsConfiguration,
		Settings: settingsConfiguration,
	}, nil
}

func validateRepoMetadata(repoMetadata map[string]any, repoMetadataPath string) error {
	identifier, identifierIsString := repoMetadata[repoIdentifierKeyConstant].(string)
	version, versionIsString := repoMetadata[repoVersionKeyConstant].(string)
	if !identifierIsString || len(identifier) == 0 || !versionIsString || len(version) == 0 {
		return fmt.Errorf(repoMetadataInvalidTemplateConstant, repoMetadataFileNameConstant, repoMetadataPath, repoIdentifierKeyConstant, repoVersionKeyConstant)
	}
	if !isSemanticVersion(version) {
		return fmt.Errorf(repoVersionInvalidTemplateConstant, version, repoMetadataPath)
	}
	return nil
}

// isSemanticVersion accepts both "v1.2.3" and bare "1.2.3" spellings.
func isSemanticVersion(version string) bool {
	if semver.IsValid(version) {
		return true
	}
	if strings.HasPrefix(version, semanticVersionPrefixConstant) {
		return false
	}
	return semver.IsValid(semanticVersionPrefixConstant + version)
}

func loadOptionalDocument(documentPath string) (map[string]any, error) {
	if _, statError := os.Stat(documentPath); statError != nil {
		if os.IsNotExist(statError) {
			return map[string]any{}, nil
		}
		return nil, statError
	}
	document := map[string]any{}
	if loadError := yamlfile.Load(documentPath, &document); loadError != nil {
		return nil, loadError
	}
	return document, nil
}
