// Package templatecmd exposes the template render, run, and publish commands.
package templatecmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/services"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	commandUseConstant                     = "template"
	commandShortDescriptionConstant        = "Render, run, and publish BRS templates"
	renderCommandUseConstant               = "render <template-id>"
	renderCommandShortDescriptionConstant  = "Materialize a template into a project or an ad hoc directory"
	runCommandUseConstant                  = "run <instance-id>"
	runCommandShortDescriptionConstant     = "Execute the run entry of a rendered template instance"
	publishCommandUseConstant              = "publish <instance-id>"
	publishCommandShortDescriptionConstant = "Resolve publish values for a rendered template instance"
	projectFlagNameConstant                = "project"
	projectFlagUsageConstant               = "Project directory containing project.yaml (defaults to the working directory)."
	outputFlagNameConstant                 = "out"
	outputFlagUsageConstant                = "Render ad hoc into this directory instead of a project."
	parameterFlagNameConstant              = "param"
	parameterFlagUsageConstant             = "Template parameter as key=value (repeatable)."
	instanceFlagNameConstant               = "as"
	instanceFlagUsageConstant              = "Instance identifier to record the render under (defaults to the template id)."
	dryRunFlagNameConstant                 = "dry-run"
	dryRunFlagUsageConstant                = "Compute the render plan without running hooks or writing files."
	loggerProviderMissingMessageConstant   = "template command requires a logger provider"
	bundlesProviderMissingMessageConstant  = "template command requires a bundle provider"
	runnerProviderMissingMessageConstant   = "template command requires a command runner provider"
	malformedParameterTemplateConstant     = "parameter %q is not of the form key=value"
	parameterSeparatorConstant             = "="
	planLineTemplateConstant               = "%s\t%s\n"
	dryRunNoticeConstant                   = "dry run; nothing was written"
	publishLineTemplateConstant            = "%s: %v\n"
)

// ErrLoggerProviderNotConfigured indicates the builder was missing its logger provider.
var ErrLoggerProviderNotConfigured = errors.New(loggerProviderMissingMessageConstant)

// ErrBundlesProviderNotConfigured indicates the builder was missing its bundle provider.
var ErrBundlesProviderNotConfigured = errors.New(bundlesProviderMissingMessageConstant)

// ErrCommandRunnerProviderNotConfigured indicates the builder was missing its runner provider.
var ErrCommandRunnerProviderNotConfigured = errors.New(runnerProviderMissingMessageConstant)

// CommandBuilder assembles the template command group.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	BundlesProvider       func() (store.BundleProvider, error)
	CommandRunnerProvider func() execshell.CommandRunner
}

// Build constructs the template command with its render, run, and publish subcommands.
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
	command.AddCommand(builder.buildRenderCommand())
	command.AddCommand(builder.buildRunCommand())
	command.AddCommand(builder.buildPublishCommand())
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

func (builder *CommandBuilder) newService() (*services.TemplateService, error) {
	bundles, bundlesError := builder.BundlesProvider()
	if bundlesError != nil {
		return nil, bundlesError
	}
	return services.NewTemplateService(bundles, builder.CommandRunnerProvider(), builder.LoggerProvider()), nil
}

func (builder *CommandBuilder) buildRenderCommand() *cobra.Command {
	var projectDirectory string
	var outputDirectory string
	var instanceIdentifier string
	var parameterAssignments []string
	var dryRunRequested bool

	command := &cobra.Command{
		Use:           renderCommandUseConstant,
		Short:         renderCommandShortDescriptionConstant,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			parameters, parseError := ParseParameterAssignments(parameterAssignments)
			if parseError != nil {
				return parseError
			}

			templateService, serviceError := builder.newService()
			if serviceError != nil {
				return serviceError
			}

			renderResult, renderError := templateService.Render(
				command.Context(),
				ResolveExecutionMode(projectDirectory, outputDirectory),
				arguments[0],
				services.RenderOptions{
					Parameters: parameters,
					InstanceID: instanceIdentifier,
					DryRun:     dryRunRequested,
				},
			)
			if renderError != nil {
				return renderError
			}

			if dryRunRequested {
				fmt.Fprintln(command.OutOrStdout(), dryRunNoticeConstant)
			}
			for _, planItem := range renderResult.Plan {
				fmt.Fprintf(command.OutOrStdout(), planLineTemplateConstant, planItem.Action, planItem.Destination)
			}
			return nil
		},
	}

	command.Flags().StringVar(&projectDirectory, projectFlagNameConstant, "", projectFlagUsageConstant)
	command.Flags().StringVar(&outputDirectory, outputFlagNameConstant, "", outputFlagUsageConstant)
	command.Flags().StringVar(&instanceIdentifier, instanceFlagNameConstant, "", instanceFlagUsageConstant)
	command.Flags().StringArrayVar(&parameterAssignments, parameterFlagNameConstant, nil, parameterFlagUsageConstant)
	command.Flags().BoolVar(&dryRunRequested, dryRunFlagNameConstant, false, dryRunFlagUsageConstant)
	return command
}

func (builder *CommandBuilder) buildRunCommand() *cobra.Command {
	var projectDirectory string
	var outputDirectory string

	command := &cobra.Command{
		Use:           runCommandUseConstant,
		Short:         runCommandShortDescriptionConstant,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			templateService, serviceError := builder.newService()
			if serviceError != nil {
				return serviceError
			}

			executionResult, runError := templateService.Run(
				command.Context(),
				ResolveExecutionMode(projectDirectory, outputDirectory),
				arguments[0],
			)
			ForwardExecutionOutput(command, executionResult)
			return runError
		},
	}

	command.Flags().StringVar(&projectDirectory, projectFlagNameConstant, "", projectFlagUsageConstant)
	command.Flags().StringVar(&outputDirectory, outputFlagNameConstant, "", outputFlagUsageConstant)
	return command
}

func (builder *CommandBuilder) buildPublishCommand() *cobra.Command {
	var projectDirectory string
	var outputDirectory string

	command := &cobra.Command{
		Use:           publishCommandUseConstant,
		Short:         publishCommandShortDescriptionConstant,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			templateService, serviceError := builder.newService()
			if serviceError != nil {
				return serviceError
			}

			publishedValues, publishError := templateService.Publish(
				command.Context(),
				ResolveExecutionMode(projectDirectory, outputDirectory),
				arguments[0],
			)
			if publishError != nil {
				return publishError
			}

			publishedKeys := make([]string, 0, len(publishedValues))
			for publishedKey := range publishedValues {
				publishedKeys = append(publishedKeys, publishedKey)
			}
			sort.Strings(publishedKeys)
			for _, publishedKey := range publishedKeys {
				fmt.Fprintf(command.OutOrStdout(), publishLineTemplateConstant, publishedKey, publishedValues[publishedKey])
			}
			return nil
		},
	}

	command.Flags().StringVar(&projectDirectory, projectFlagNameConstant, "", projectFlagUsageConstant)
	command.Flags().StringVar(&outputDirectory, outputFlagNameConstant, "", outputFlagUsageConstant)
	return command
}

// ResolveExecutionMode maps the --project and --out flags onto an execution
// mode. An output directory selects ad hoc mode; otherwise the project
// directory is used, defaulting to the working directory.
func ResolveExecutionMode(projectDirectory string, outputDirectory string) services.Mode {
	trimmedOutputDirectory := strings.TrimSpace(outputDirectory)
	if len(trimmedOutputDirectory) > 0 {
		return services.AdHocMode{OutputDirectory: trimmedOutputDirectory}
	}

	trimmedProjectDirectory := strings.TrimSpace(projectDirectory)
	if len(trimmedProjectDirectory) == 0 {
		trimmedProjectDirectory = "."
	}
	return services.ProjectMode{Directory: trimmedProjectDirectory}
}

// ParseParameterAssignments splits repeated key=value flag values into a
// parameter map.
func ParseParameterAssignments(assignments []string) (map[string]string, error) {
	parameters := make(map[string]string, len(assignments))
	for _, assignment := range assignments {
		parameterName, parameterValue, separatorFound := strings.Cut(assignment, parameterSeparatorConstant)
		trimmedName := strings.TrimSpace(parameterName)
		if !separatorFound || len(trimmedName) == 0 {
			return nil, fmt.Errorf(malformedParameterTemplateConstant, assignment)
		}
		parameters[trimmedName] = parameterValue
	}
	return parameters, nil
}

// ForwardExecutionOutput writes captured entry output onto the command streams.
func ForwardExecutionOutput(command *cobra.Command, executionResult execshell.ExecutionResult) {
	if len(executionResult.StandardOutput) > 0 {
		fmt.Fprint(command.OutOrStdout(), executionResult.StandardOutput)
	}
	if len(executionResult.StandardError) > 0 {
		fmt.Fprint(command.ErrOrStderr(), executionResult.StandardError)
	}
}
