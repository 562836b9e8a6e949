package main

import (
	"fmt"
	"os"

	"github.com/bpm-tools/bpm/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the bpm command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(1)
	}
}
