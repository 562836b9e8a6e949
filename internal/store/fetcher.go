package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/execshell"
)

const (
	gitExecutableNameConstant         = "git"
	gitCloneSubcommandConstant        = "clone"
	gitPullSubcommandConstant         = "pull"
	gitFastForwardOnlyFlagConstant    = "--ff-only"
	gitRevParseSubcommandConstant     = "rev-parse"
	gitHeadReferenceConstant          = "HEAD"
	gitRepositorySuffixConstant       = ".git"
	bundleClonedMessageConstant       = "bundle cloned"
	bundleUpdatedMessageConstant      = "bundle updated"
	bundleSourceFieldNameConstant     = "source"
	bundleCachePathFieldNameConstant  = "cache_path"
	bundleIdentifierFieldNameConstant = "bundle_id"
	localSourceSchemePrefixConstant   = "/"
)

// CommandExecutor runs external commands for bundle fetching.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// Fetcher clones bundle repositories into the cache and registers them in
// the store index. A second fetch of a known source fast-forwards the
// existing clone instead of cloning again.
type Fetcher struct {
	registry *Registry
	executor CommandExecutor
	logger   *zap.Logger
}

// NewFetcher builds a fetcher over the registry and command executor.
func NewFetcher(registry *Registry, executor CommandExecutor, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{registry: registry, executor: executor, logger: logger}
}

// Fetch obtains the bundle at the given git source, validates its
// configuration, and registers it in the index under its declared id.
func (fetcher *Fetcher) Fetch(fetchContext context.Context, source string) (Record, error) {
	cachePath := filepath.Join(fetcher.registry.CacheRoot(), bundleCacheDirectoryNameConstant, bundleDirectoryName(source))

	if _, statError := os.Stat(cachePath); statError == nil {
		if _, pullError := fetcher.executor.Execute(fetchContext, execshell.ShellCommand{
			Path:             gitExecutableNameConstant,
			Arguments:        []string{gitPullSubcommandConstant, gitFastForwardOnlyFlagConstant},
			WorkingDirectory: cachePath,
		}); pullError != nil {
			return Record{}, pullError
		}
		fetcher.logger.Info(bundleUpdatedMessageConstant,
			zap.String(bundleSourceFieldNameConstant, source),
			zap.String(bundleCachePathFieldNameConstant, cachePath),
		)
	} else {
		if _, cloneError := fetcher.executor.Execute(fetchContext, execshell.ShellCommand{
			Path:      gitExecutableNameConstant,
			Arguments: []string{gitCloneSubcommandConstant, source, cachePath},
		}); cloneError != nil {
			return Record{}, cloneError
		}
		fetcher.logger.Info(bundleClonedMessageConstant,
			zap.String(bundleSourceFieldNameConstant, source),
			zap.String(bundleCachePathFieldNameConstant, cachePath),
		)
	}

	bundleConfig, configError := LoadConfig(cachePath)
	if configError != nil {
		return Record{}, configError
	}

	record := Record{
		ID:        bundleConfig.BundleID(),
		Source:    source,
		CachePath: cachePath,
		Version:   bundleConfig.BundleVersion(),
		Commit:    fetcher.headCommit(fetchContext, cachePath),
	}
	if addError := fetcher.registry.Add(record); addError != nil {
		return Record{}, addError
	}
	fetcher.logger.Info(bundleUpdatedMessageConstant,
		zap.String(bundleIdentifierFieldNameConstant, record.ID),
		zap.String(bundleCachePathFieldNameConstant, cachePath),
	)
	return record, nil
}

func (fetcher *Fetcher) headCommit(fetchContext context.Context, cachePath string) string {
	executionResult, executionError := fetcher.executor.Execute(fetchContext, execshell.ShellCommand{
		Path:             gitExecutableNameConstant,
		Arguments:        []string{gitRevParseSubcommandConstant, gitHeadReferenceConstant},
		WorkingDirectory: cachePath,
	})
	if executionError != nil {
		return ""
	}
	return strings.TrimSpace(executionResult.StandardOutput)
}

// bundleDirectoryName derives a stable cache directory name from a git URL
// or local path.
func bundleDirectoryName(source string) string {
	trimmedSource := strings.TrimSuffix(strings.TrimRight(source, localSourceSchemePrefixConstant), gitRepositorySuffixConstant)
	return filepath.Base(trimmedSource)
}
