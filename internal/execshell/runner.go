package execshell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// OSCommandRunner executes shell commands through os/exec. The parent
// process environment is inherited and extended with the command's
// environment variables.
type OSCommandRunner struct{}

// NewOSCommandRunner builds a runner backed by the operating system.
func NewOSCommandRunner() OSCommandRunner {
	return OSCommandRunner{}
}

const environmentEntryTemplateConstant = "%s=%s"

// Run executes the command and captures stdout, stderr, and the exit code.
// A non-zero exit is reported through ExecutionResult, not as an error.
func (runner OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	osCommand := exec.CommandContext(executionContext, command.Path, command.Arguments...)
	osCommand.Dir = command.WorkingDirectory

	environment := os.Environ()
	for variableName, variableValue := range command.EnvironmentVariables {
		environment = append(environment, fmt.Sprintf(environmentEntryTemplateConstant, variableName, variableValue))
	}
	osCommand.Env = environment

	if len(command.StandardInput) > 0 {
		osCommand.Stdin = bytes.NewReader(command.StandardInput)
	}

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	osCommand.Stdout = &standardOutputBuffer
	osCommand.Stderr = &standardErrorBuffer

	runError := osCommand.Run()
	executionResult := ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
	}
	if runError != nil {
		var exitError *exec.ExitError
		if errors.As(runError, &exitError) {
			executionResult.ExitCode = exitError.ExitCode()
			return executionResult, nil
		}
		return executionResult, runError
	}
	return executionResult, nil
}
