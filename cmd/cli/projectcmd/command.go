// Package projectcmd exposes the project init and info commands.
package projectcmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/services"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	commandUseConstant                    = "project"
	commandShortDescriptionConstant       = "Initialize and inspect BRS projects"
	initCommandUseConstant                = "init <project-name>"
	initCommandShortDescriptionConstant   = "Create a project directory with a fresh manifest"
	infoCommandUseConstant                = "info"
	infoCommandShortDescriptionConstant   = "Print the project manifest"
	parentDirectoryFlagNameConstant       = "dir"
	parentDirectoryFlagUsageConstant      = "Parent directory the project is created under (defaults to the working directory)."
	projectFlagNameConstant               = "project"
	projectFlagUsageConstant              = "Project directory containing project.yaml (defaults to the working directory)."
	loggerProviderMissingMessageConstant  = "project command requires a logger provider"
	bundlesProviderMissingMessageConstant = "project command requires a bundle provider"
	runnerProviderMissingMessageConstant  = "project command requires a command runner provider"
	defaultDirectoryConstant              = "."
	initializedLineTemplateConstant       = "initialized project %s at %s\n"
)

// ErrLoggerProviderNotConfigured indicates the builder was missing its logger provider.
var ErrLoggerProviderNotConfigured = errors.New(loggerProviderMissingMessageConstant)

// ErrBundlesProviderNotConfigured indicates the builder was missing its bundle provider.
var ErrBundlesProviderNotConfigured = errors.New(bundlesProviderMissingMessageConstant)

// ErrCommandRunnerProviderNotConfigured indicates the builder was missing its runner provider.
var ErrCommandRunnerProviderNotConfigured = errors.New(runnerProviderMissingMessageConstant)

// CommandBuilder assembles the project command group.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	BundlesProvider       func() (store.BundleProvider, error)
	CommandRunnerProvider func() execshell.CommandRunner
}

// Build constructs the project command with its init and info subcommands.
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
	command.AddCommand(builder.buildInitCommand())
	command.AddCommand(builder.buildInfoCommand())
	return command, nil
}

func (builder *CommandBuilder) validate() error {
	if builder.LoggerProvider == nil {
		return ErrLoggerProviderNotConfigured
	}
	if builder.BundlesProvider == nil {
		return ErrBundlesProviderNotConfigured
	}
	if builder.CommandRunnerProvider == nil {
		return ErrCommandRunnerProviderNotConfigured
	}
	return nil
}

func (builder *CommandBuilder) newService() (*services.ProjectService, error) {
	bundles, bundlesError := builder.BundlesProvider()
	if bundlesError != nil {
		return nil, bundlesError
	}
	return services.NewProjectService(bundles, builder.CommandRunnerProvider(), builder.LoggerProvider()), nil
}

func (builder *CommandBuilder) buildInitCommand() *cobra.Command {
	var parentDirectory string

	command := &cobra.Command{
		Use:           initCommandUseConstant,
		Short:         initCommandShortDescriptionConstant,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			projectService, serviceError := builder.newService()
			if serviceError != nil {
				return serviceError
			}

			projectDocument, initError := projectService.Init(parentDirectory, arguments[0])
			if initError != nil {
				return initError
			}

			fmt.Fprintf(command.OutOrStdout(), initializedLineTemplateConstant, projectDocument.Name, projectDocument.ProjectPath)
			return nil
		},
	}

	command.Flags().StringVar(&parentDirectory, parentDirectoryFlagNameConstant, defaultDirectoryConstant, parentDirectoryFlagUsageConstant)
	return command
}

func (builder *CommandBuilder) buildInfoCommand() *cobra.Command {
	var projectDirectory string

	command := &cobra.Command{
		Use:           infoCommandUseConstant,
		Short:         infoCommandShortDescriptionConstant,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			projectService, serviceError := builder.newService()
			if serviceError != nil {
				return serviceError
			}

			projectDocument, infoError := projectService.Info(projectDirectory)
			if infoError != nil {
				return infoError
			}

			encodedDocument, encodeError := yaml.Marshal(projectDocument)
			if encodeError != nil {
				return encodeError
			}
			fmt.Fprint(command.OutOrStdout(), string(encodedDocument))
			return nil
		},
	}

	command.Flags().StringVar(&projectDirectory, projectFlagNameConstant, defaultDirectoryConstant, projectFlagUsageConstant)
	return command
}
