package projectcmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bpm-tools/bpm/cmd/cli/projectcmd"
	"github.com/bpm-tools/bpm/internal/execshell"
	"github.com/bpm-tools/bpm/internal/services"
	"github.com/bpm-tools/bpm/internal/store"
)

const (
	fixtureBundleRepoConstant  = "id: acme-brs\nversion: 1.4.0\n"
	fixtureProjectNameConstant = "250901_Demo_UKA"
)

func writeFixtureBundle(testInstance *testing.T) string {
	bundleRoot := testInstance.TempDir()
	require.NoError(testInstance, os.WriteFile(filepath.Join(bundleRoot, "repo.yaml"), []byte(fixtureBundleRepoConstant), 0o644))
	return bundleRoot
}

func newCommandBuilder(bundleRoot string) *projectcmd.CommandBuilder {
	return &projectcmd.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return zap.NewNop()
		},
		BundlesProvider: func() (store.BundleProvider, error) {
			return store.DirectoryProvider{Root: bundleRoot}, nil
		},
		CommandRunnerProvider: func() execshell.CommandRunner {
			return execshell.NewOSCommandRunner()
		},
	}
}

func runCommand(testInstance *testing.T, builder *projectcmd.CommandBuilder, arguments ...string) (string, error) {
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)
	command.SetErr(outputBuffer)
	command.SetArgs(arguments)
	executionError := command.Execute()
	return outputBuffer.String(), executionError
}

func TestBuildRegistersSubcommands(testInstance *testing.T) {
	command, buildError := newCommandBuilder(testInstance.TempDir()).Build()
	require.NoError(testInstance, buildError)
	require.Equal(testInstance, "project", command.Name())

	subcommandNames := make([]string, 0, len(command.Commands()))
	for _, subcommand := range command.Commands() {
		subcommandNames = append(subcommandNames, subcommand.Name())
	}
	require.ElementsMatch(testInstance, []string{"init", "info"}, subcommandNames)
}

func TestProjectInitCommandCreatesManifest(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	parentDirectory := testInstance.TempDir()
	builder := newCommandBuilder(bundleRoot)

	commandOutput, initError := runCommand(testInstance, builder,
		"init", fixtureProjectNameConstant, "--dir", parentDirectory)
	require.NoError(testInstance, initError)
	require.Contains(testInstance, commandOutput, "initialized project "+fixtureProjectNameConstant)

	manifestPath := filepath.Join(parentDirectory, fixtureProjectNameConstant, "project.yaml")
	_, statError := os.Stat(manifestPath)
	require.NoError(testInstance, statError)
}

func TestProjectInitCommandRejectsExistingProject(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	parentDirectory := testInstance.TempDir()
	builder := newCommandBuilder(bundleRoot)

	_, firstError := runCommand(testInstance, builder,
		"init", fixtureProjectNameConstant, "--dir", parentDirectory)
	require.NoError(testInstance, firstError)

	_, secondError := runCommand(testInstance, builder,
		"init", fixtureProjectNameConstant, "--dir", parentDirectory)
	var existsError services.ProjectAlreadyExistsError
	require.ErrorAs(testInstance, secondError, &existsError)
}

func TestProjectInfoCommandPrintsManifest(testInstance *testing.T) {
	bundleRoot := writeFixtureBundle(testInstance)
	parentDirectory := testInstance.TempDir()
	builder := newCommandBuilder(bundleRoot)

	_, initError := runCommand(testInstance, builder,
		"init", fixtureProjectNameConstant, "--dir", parentDirectory)
	require.NoError(testInstance, initError)

	projectDirectory := filepath.Join(parentDirectory, fixtureProjectNameConstant)
	commandOutput, infoError := runCommand(testInstance, builder, "info", "--project", projectDirectory)
	require.NoError(testInstance, infoError)
	require.Contains(testInstance, commandOutput, "name: "+fixtureProjectNameConstant)
	require.Contains(testInstance, commandOutput, "status: initiated")
}
