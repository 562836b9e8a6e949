// Package workflowcmd exposes the workflow render and run commands.
package workflowcmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/cmd/cli/templatecmd"
	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/services"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	commandUseConstant                    = "workflow"
	commandShortDescriptionConstant       = "Render and run BRS workflows"
	renderCommandUseConstant              = "render <workflow-id>"
	renderCommandShortDescriptionConstant = "Materialize a workflow without recording project history"
	runCommandUseConstant                 = "run <workflow-id>"
	runCommandShortDescriptionConstant    = "Render a workflow, execute its entry, and record the run"
	projectFlagNameConstant               = "project"
	projectFlagUsageConstant              = "Project directory containing project.yaml (defaults to the working directory)."
	outputFlagNameConstant                = "out"
	outputFlagUsageConstant               = "Render ad hoc into this directory instead of a project."
	parameterFlagNameConstant             = "param"
	parameterFlagUsageConstant            = "Workflow parameter as key=value (repeatable)."
	dryRunFlagNameConstant                = "dry-run"
	dryRunFlagUsageConstant               = "Compute the render plan without running hooks or writing files."
	loggerProviderMissingMessageConstant  = "workflow command requires a logger provider"
	bundlesProviderMissingMessageConstant = "workflow command requires a bundle provider"
	runnerProviderMissingMessageConstant  = "workflow command requires a command runner provider"
	planLineTemplateConstant              = "%s\t%s\n"
	dryRunNoticeConstant                  = "dry run; nothing was written"
)

// ErrLoggerProviderNotConfigured indicates the builder was missing its logger provider.
var ErrLoggerProviderNotConfigured = errors.New(loggerProviderMissingMessageConstant)

// ErrBundlesProviderNotConfigured indicates the builder was missing its bundle provider.
var ErrBundlesProviderNotConfigured = errors.New(bundlesProviderMissingMessageConstant)

// ErrCommandRunnerProviderNotConfigured indicates the builder was missing its runner provider.
var ErrCommandRunnerProviderNotConfigured = errors.New(runnerProviderMissingMessageConstant)

// CommandBuilder assembles the workflow command group.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	BundlesProvider       func() (store.BundleProvider, error)
	CommandRunnerProvider func() execshell.CommandRunner
}

// Build constructs the workflow command with its render and run subcommands.
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

func (builder *CommandBuilder) newService() (*services.WorkflowService, error) {
	bundles, bundlesError := builder.BundlesProvider()
	if bundlesError != nil {
		return nil, bundlesError
	}
	return services.NewWorkflowService(bundles, builder.CommandRunnerProvider(), builder.LoggerProvider()), nil
}

func (builder *CommandBuilder) buildRenderCommand() *cobra.Command {
	var projectDirectory string
	var outputDirectory string
	var parameterAssignments []string
	var dryRunRequested bool

	command := &cobra.Command{
		Use:           renderCommandUseConstant,
		Short:         renderCommandShortDescriptionConstant,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			parameters, parseError := templatecmd.ParseParameterAssignments(parameterAssignments)
			if parseError != nil {
				return parseError
			}

			workflowService, serviceError := builder.newService()
			if serviceError != nil {
				return serviceError
			}

			renderResult, renderError := workflowService.Render(
				command.Context(),
				templatecmd.ResolveExecutionMode(projectDirectory, outputDirectory),
				arguments[0],
				services.RenderOptions{Parameters: parameters, DryRun: dryRunRequested},
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
	command.Flags().StringArrayVar(&parameterAssignments, parameterFlagNameConstant, nil, parameterFlagUsageConstant)
	command.Flags().BoolVar(&dryRunRequested, dryRunFlagNameConstant, false, dryRunFlagUsageConstant)
	return command
}

func (builder *CommandBuilder) buildRunCommand() *cobra.Command {
	var projectDirectory string
	var outputDirectory string
	var parameterAssignments []string

	command := &cobra.Command{
		Use:           runCommandUseConstant,
		Short:         runCommandShortDescriptionConstant,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			parameters, parseError := templatecmd.ParseParameterAssignments(parameterAssignments)
			if parseError != nil {
				return parseError
			}

			workflowService, serviceError := builder.newService()
			if serviceError != nil {
				return serviceError
			}

			executionResult, runError := workflowService.Run(
				command.Context(),
				templatecmd.ResolveExecutionMode(projectDirectory, outputDirectory),
				arguments[0],
				services.RenderOptions{Parameters: parameters},
			)
			templatecmd.ForwardExecutionOutput(command, executionResult)
			return runError
		},
	}

	command.Flags().StringVar(&projectDirectory, projectFlagNameConstant, "", projectFlagUsageConstant)
	command.Flags().StringVar(&outputDirectory, outputFlagNameConstant, "", outputFlagUsageConstant)
	command.Flags().StringArrayVar(&parameterAssignments, parameterFlagNameConstant, nil, parameterFlagUsageConstant)
	return command
}
