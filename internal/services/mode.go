package services

// Mode selects where an operation reads and writes its state: inside a
// managed project directory or against a bare output directory with only a
// provenance record.
type Mode interface {
	isExecutionMode()
}

// ProjectMode targets a managed project directory holding a manifest.
type ProjectMode struct {
	Directory string
}

func (ProjectMode) isExecutionMode() {}

// AdHocMode targets a plain output directory. No manifest is read or
// written; provenance goes into a meta record next to the output.
type AdHocMode struct {
	OutputDirectory string
}

func (AdHocMode) isExecutionMode() {}
