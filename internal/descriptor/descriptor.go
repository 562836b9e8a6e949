package descriptor

// Descriptor is the typed, in-memory form of a template or workflow
// declaration file. It is immutable after loading and re-read on every
// operation so that editing a bundle between invocations takes effect
// immediately.
type Descriptor struct {
	ID                string
	Description       string
	Params            map[string]ParamSpec
	RenderInto        string
	RenderFiles       []RenderFile
	RunEntry          string
	RequiredTemplates []string
	Publish           map[string]PublishSpec
	Hooks             map[string][]string
	ToolsRequired     []string
	ToolsOptional     []string
}

// ParamSpec declares one parameter of a template or workflow.
type ParamSpec struct {
	Name        string
	Type        string
	CLI         string
	Required    bool
	Default     any
	Exists      ExistsRequirement
	Description string
}

// RenderFile maps a source file inside the template directory to a
// destination below the render target directory.
type RenderFile struct {
	Source      string
	Destination string
}

// PublishSpec names the resolver computing one published value.
type PublishSpec struct {
	Resolver string
	Args     map[string]any
}

// ExistsRequirement constrains the filesystem existence check applied to a
// resolved path parameter before rendering.
type ExistsRequirement string

// Supported existence requirements.
const (
	ExistsNone ExistsRequirement = ""
	ExistsFile ExistsRequirement = "file"
	ExistsDir  ExistsRequirement = "dir"
	ExistsAny  ExistsRequirement = "any"
)

// Parameter value types. Coercion only; no schema validation beyond that.
const (
	ParamTypeString = "str"
	ParamTypeInt    = "int"
	ParamTypeFloat  = "float"
	ParamTypeBool   = "bool"
)

// Lifecycle stages at which hooks run.
const (
	StagePreRender  = "pre_render"
	StagePostRender = "post_render"
	StagePreRun     = "pre_run"
	StagePostRun    = "post_run"
)

// Kind distinguishes template descriptors from workflow descriptors.
type Kind string

// Supported descriptor kinds.
const (
	KindTemplate Kind = "template"
	KindWorkflow Kind = "workflow"
)

// Source records where a descriptor was loaded from. Directory is the
// template/workflow folder that render sources resolve against.
type Source struct {
	Kind           Kind
	Directory      string
	DescriptorPath string
}
