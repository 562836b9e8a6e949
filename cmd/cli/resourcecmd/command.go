// Package resourcecmd exposes the resource commands that manage the local
// BRS bundle store.
package resourcecmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	commandUseConstant                      = "resource"
	commandShortDescriptionConstant         = "Manage registered BRS bundles"
	addCommandUseConstant                   = "add <git-source>"
	addCommandShortDescriptionConstant      = "Clone or update a bundle and register it in the store"
	listCommandUseConstant                  = "list"
	listCommandShortDescriptionConstant     = "List registered bundles"
	activateCommandUseConstant              = "activate <bundle-id>"
	activateCommandShortDescriptionConstant = "Select the bundle used by subsequent operations"
	loggerProviderMissingMessageConstant    = "resource command requires a logger provider"
	registryProviderMissingMessageConstant  = "resource command requires a registry provider"
	runnerProviderMissingMessageConstant    = "resource command requires a command runner provider"
	activeMarkerConstant                    = "*"
	inactiveMarkerConstant                  = " "
	listLineTemplateConstant                = "%s %s\t%s\t%s\n"
	addedLineTemplateConstant               = "registered %s %s\n"
	activatedLineTemplateConstant           = "activated %s\n"
)

// ErrLoggerProviderNotConfigured indicates the builder was missing its logger provider.
var ErrLoggerProviderNotConfigured = errors.New(loggerProviderMissingMessageConstant)

// ErrRegistryProviderNotConfigured indicates the builder was missing its registry provider.
var ErrRegistryProviderNotConfigured = errors.New(registryProviderMissingMessageConstant)

// ErrCommandRunnerProviderNotConfigured indicates the builder was missing its runner provider.
var ErrCommandRunnerProviderNotConfigured = errors.New(runnerProviderMissingMessageConstant)

// CommandBuilder assembles the resource command group.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	RegistryProvider      func() (*store.Registry, error)
	CommandRunnerProvider func() execshell.CommandRunner
}

// Build constructs the resource command with its add, list, and activate
// subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	if validationError := builder.validate(); validationError != nil {
		return nil, validationError
	}

	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}
	command.AddCommand(builder.buildAddCommand())
	command.AddCommand(builder.buildListCommand())
	command.AddCommand(builder.buildActivateCommand())
	return command, nil
}

func (builder *CommandBuilder) validate() error {
	if builder.LoggerProvider == nil {
		return ErrLoggerProviderNotConfigured
	}
	if builder.RegistryProvider == nil {
		return ErrRegistryProviderNotConfigured
	}
	if builder.CommandRunnerProvider == nil {
		return ErrCommandRunnerProviderNotConfigured
	}
	return nil
}

func (builder *CommandBuilder) buildAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:           addCommandUseConstant,
		Short:         addCommandShortDescriptionConstant,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			bundleRegistry, registryError := builder.RegistryProvider()
			if registryError != nil {
				return registryError
			}

			shellExecutor, executorError := execshell.NewShellExecutor(builder.LoggerProvider(), builder.CommandRunnerProvider())
			if executorError != nil {
				return executorError
			}

			fetcher := store.NewFetcher(bundleRegistry, shellExecutor, builder.LoggerProvider())
			bundleRecord, fetchError := fetcher.Fetch(command.Context(), arguments[0])
			if fetchError != nil {
				return fetchError
			}

			fmt.Fprintf(command.OutOrStdout(), addedLineTemplateConstant, bundleRecord.ID, bundleRecord.Version)
			return nil
		},
	}
}

func (builder *CommandBuilder) buildListCommand() *cobra.Command {
	return &cobra.Command{
		Use:           listCommandUseConstant,
		Short:         listCommandShortDescriptionConstant,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			bundleRegistry, registryError := builder.RegistryProvider()
			if registryError != nil {
				return registryError
			}

			storeIndex, indexError := bundleRegistry.LoadIndex()
			if indexError != nil {
				return indexError
			}
			bundleRecords, listError := bundleRegistry.List()
			if listError != nil {
				return listError
			}

			for _, bundleRecord := range bundleRecords {
				activeMarker := inactiveMarkerConstant
				if bundleRecord.ID == storeIndex.Active {
					activeMarker = activeMarkerConstant
				}
				fmt.Fprintf(command.OutOrStdout(), listLineTemplateConstant, activeMarker, bundleRecord.ID, bundleRecord.Version, bundleRecord.Source)
			}
			return nil
		},
	}
}

func (builder *CommandBuilder) buildActivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:           activateCommandUseConstant,
		Short:         activateCommandShortDescriptionConstant,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			bundleRegistry, registryError := builder.RegistryProvider()
			if registryError != nil {
				return registryError
			}

			if activationError := bundleRegistry.Activate(arguments[0]); activationError != nil {
				return activationError
			}

			fmt.Fprintf(command.OutOrStdout(), activatedLineTemplateConstant, arguments[0])
			return nil
		},
	}
}
