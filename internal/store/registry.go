package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bpm-tools/bpm/internal/yamlfile"
)

const (
	cacheRootEnvironmentVariableConstant = "BPM_CACHE"
	defaultCacheDirectoryNameConstant    = ".bpm_cache"
	bundleCacheDirectoryNameConstant     = "brs"
	storeIndexFileNameConstant           = "stores.yaml"
	storeIndexSchemaVersionConstant      = 1
	cacheDirectoryPermissionConstant     = 0o755
	noActiveBundleMessageConstant        = "no active BRS bundle; run `bpm resource activate <id>` first"
	unknownBundleTemplateConstant        = "BRS bundle %q is not registered"
	missingBundlePathTemplateConstant    = "cache path for BRS bundle %q does not exist: %s"
	timestampLayoutConstant              = "2006-01-02T15:04:05Z07:00"
)

// ErrNoActiveBundle indicates that no bundle has been activated yet.
var ErrNoActiveBundle = errors.New(noActiveBundleMessageConstant)

// UnknownBundleError indicates a reference to a bundle id absent from the index.
type UnknownBundleError struct {
	BundleID string
}

// Error implements the error interface.
func (errorDetails UnknownBundleError) Error() string {
	return fmt.Sprintf(unknownBundleTemplateConstant, errorDetails.BundleID)
}

// Record describes one registered bundle in the store index.
type Record struct {
	ID          string `yaml:"id"`
	Source      string `yaml:"source"`
	CachePath   string `yaml:"cache_path"`
	Version     string `yaml:"version"`
	Commit      string `yaml:"commit,omitempty"`
	LastUpdated string `yaml:"last_updated,omitempty"`
}

// Index is the persisted registry of known bundles plus the active selection.
type Index struct {
	SchemaVersion int               `yaml:"schema_version"`
	Updated       string            `yaml:"updated"`
	Active        string            `yaml:"active,omitempty"`
	Stores        map[string]Record `yaml:"stores"`
}

// Registry manages the on-disk bundle cache and store index.
type Registry struct {
	cacheRoot string
}

// NewRegistry constructs a Registry rooted at $BPM_CACHE or ~/.bpm_cache.
func NewRegistry() (*Registry, error) {
	cacheRoot := os.Getenv(cacheRootEnvironmentVariableConstant)
	if len(cacheRoot) == 0 {
		homeDirectory, homeError := os.UserHomeDir()
		if homeError != nil {
			return nil, homeError
		}
		cacheRoot = filepath.Join(homeDirectory, defaultCacheDirectoryNameConstant)
	}
	return NewRegistryAt(cacheRoot)
}

// NewRegistryAt constructs a Registry rooted at an explicit cache directory.
func NewRegistryAt(cacheRoot string) (*Registry, error) {
	if directoryError := os.MkdirAll(filepath.Join(cacheRoot, bundleCacheDirectoryNameConstant), cacheDirectoryPermissionConstant); directoryError != nil {
		return nil, directoryError
	}
	return &Registry{cacheRoot: cacheRoot}, nil
}

// CacheRoot returns the registry cache directory.
func (registry *Registry) CacheRoot() string {
	return registry.cacheRoot
}

func (registry *Registry) indexPath() string {
	return filepath.Join(registry.cacheRoot, storeIndexFileNameConstant)
}

// LoadIndex reads the store index, creating an empty one on first use.
func (registry *Registry) LoadIndex() (Index, error) {
	if _, statError := os.Stat(registry.indexPath()); statError != nil {
		if os.IsNotExist(statError) {
			emptyIndex := Index{
				SchemaVersion: storeIndexSchemaVersionConstant,
				Updated:       nowTimestamp(),
				Stores:        map[string]Record{},
			}
			if saveError := registry.SaveIndex(emptyIndex); saveError != nil {
				return Index{}, saveError
			}
			return emptyIndex, nil
		}
		return Index{}, statError
	}

	var storeIndex Index
	if loadError := yamlfile.Load(registry.indexPath(), &storeIndex); loadError != nil {
		return Index{}, loadError
	}
	if storeIndex.Stores == nil {
		storeIndex.Stores = map[string]Record{}
	}
	return storeIndex, nil
}

// SaveIndex persists the store index atomically with a fresh timestamp.
func (registry *Registry) SaveIndex(storeIndex Index) error {
	storeIndex.Updated = nowTimestamp()
	return yamlfile.SaveAtomic(registry.indexPath(), storeIndex)
}

// Add registers a bundle record, replacing any record with the same id.
func (registry *Registry) Add(record Record) error {
	storeIndex, loadError := registry.LoadIndex()
	if loadError != nil {
		return loadError
	}
	record.LastUpdated = nowTimestamp()
	storeIndex.Stores[record.ID] = record
	return registry.SaveIndex(storeIndex)
}

// Activate marks the identified bundle as the active one.
func (registry *Registry) Activate(bundleID string) error {
	storeIndex, loadError := registry.LoadIndex()
	if loadError != nil {
		return loadError
	}
	if _, exists := storeIndex.Stores[bundleID]; !exists {
		return UnknownBundleError{BundleID: bundleID}
	}
	storeIndex.Active = bundleID
	return registry.SaveIndex(storeIndex)
}

// List returns the registered bundle records ordered by id.
func (registry *Registry) List() ([]Record, error) {
	storeIndex, loadError := registry.LoadIndex()
	if loadError != nil {
		return nil, loadError
	}
	records := make([]Record, 0, len(storeIndex.Stores))
	for _, record := range storeIndex.Stores {
		records = append(records, record)
	}
	sort.Slice(records, func(firstIndex, secondIndex int) bool {
		return records[firstIndex].ID < records[secondIndex].ID
	})
	return records, nil
}

// ActiveRoot returns the cache path of the active bundle.
func (registry *Registry) ActiveRoot() (string, error) {
	storeIndex, loadError := registry.LoadIndex()
	if loadError != nil {
		return "", loadError
	}
	if len(storeIndex.Active) == 0 {
		return "", ErrNoActiveBundle
	}
	activeRecord, exists := storeIndex.Stores[storeIndex.Active]
	if !exists {
		return "", UnknownBundleError{BundleID: storeIndex.Active}
	}
	if _, statError := os.Stat(activeRecord.CachePath); statError != nil {
		return "", fmt.Errorf(missingBundlePathTemplateConstant, storeIndex.Active, activeRecord.CachePath)
	}
	return activeRecord.CachePath, nil
}

func nowTimestamp() string {
	return time.Now().UTC().Truncate(time.Second).Format(timestampLayoutConstant)
}
