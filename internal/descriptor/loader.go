package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"

	"github.com/bpm-tools/bpm/internal/store"
	"github.com/bpm-tools/bpm/internal/yamlfile"
)

const (
	preferredTemplateDescriptorFileNameConstant = "template_config.yaml"
	legacyTemplateDescriptorFileNameConstant    = "template.config.yaml"
	workflowDescriptorFileNameConstant          = "workflow.yaml"
	defaultRenderIntoPatternConstant            = "${ctx.project.name}/${ctx.template.id}/"
	renderFileSeparatorConstant                 = "->"
	renderFileSourceKeyConstant                 = "src"
	renderFileDestinationKeyConstant            = "dst"
	notFoundTemplateConstant                    = "no template or workflow %q in the active bundle"
	identifierMismatchTemplateConstant          = "descriptor id mismatch: requested %q, declared %q"
	invalidExistsValueTemplateConstant          = "invalid exists value for parameter %q: %v (expected file, dir, or any)"
	invalidRenderFileTemplateConstant           = "invalid render.files entry: %v"
	invalidPublishEntryTemplateConstant         = "publish entry %q missing resolver reference"
	invalidToolsSectionTemplateConstant         = "invalid tools section: %v"
	mapstructureTagNameConstant                 = "yaml"
)

// NotFoundError indicates that neither a template nor a workflow declares
// the requested identifier.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (errorDetails NotFoundError) Error() string {
	return fmt.Sprintf(notFoundTemplateConstant, errorDetails.ID)
}

// IdentifierMismatchError indicates a declaration whose id field differs
// from the requested identifier.
type IdentifierMismatchError struct {
	Requested string
	Declared  string
}

// Error implements the error interface.
func (errorDetails IdentifierMismatchError) Error() string {
	return fmt.Sprintf(identifierMismatchTemplateConstant, errorDetails.Requested, errorDetails.Declared)
}

// InvalidExistsValueError indicates an unsupported exists declaration.
type InvalidExistsValueError struct {
	Parameter string
	Value     any
}

// Error implements the error interface.
func (errorDetails InvalidExistsValueError) Error() string {
	return fmt.Sprintf(invalidExistsValueTemplateConstant, errorDetails.Parameter, errorDetails.Value)
}

// InvalidRenderFileError indicates a malformed render.files entry.
type InvalidRenderFileError struct {
	Entry any
}

// Error implements the error interface.
func (errorDetails InvalidRenderFileError) Error() string {
	return fmt.Sprintf(invalidRenderFileTemplateConstant, errorDetails.Entry)
}

// InvalidPublishEntryError indicates a publish entry without a resolver.
type InvalidPublishEntryError struct {
	Key string
}

// Error implements the error interface.
func (errorDetails InvalidPublishEntryError) Error() string {
	return fmt.Sprintf(invalidPublishEntryTemplateConstant, errorDetails.Key)
}

type descriptorFile struct {
	ID                string                   `yaml:"id"`
	Description       string                   `yaml:"description"`
	Params            map[string]paramSpecFile `yaml:"params"`
	Render            renderSectionFile        `yaml:"render"`
	Run               *runSectionFile          `yaml:"run"`
	RequiredTemplates []string                 `yaml:"required_templates"`
	Requires          []string                 `yaml:"requires"`
	Publish           map[string]any           `yaml:"publish"`
	Hooks             map[string][]string      `yaml:"hooks"`
	Tools             any                      `yaml:"tools"`
}

type paramSpecFile struct {
	Type        string `yaml:"type"`
	CLI         string `yaml:"cli"`
	Required    bool   `yaml:"required"`
	Default     any    `yaml:"default"`
	Exists      any    `yaml:"exists"`
	MustExist   bool   `yaml:"must_exist"`
	Description string `yaml:"description"`
}

type renderSectionFile struct {
	Into  string `yaml:"into"`
	Files []any  `yaml:"files"`
}

type runSectionFile struct {
	Entry string `yaml:"entry"`
}

type publishSpecFile struct {
	Resolver string         `yaml:"resolver"`
	Args     map[string]any `yaml:"args"`
}

type toolsSectionFile struct {
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
}

// Locate finds the declaration file for the requested identifier, trying
// the templates directory first (preferred and legacy file names) and
// falling back to the workflows directory.
func Locate(bundlePaths store.Paths, requestedID string) (Source, error) {
	templateDirectory := filepath.Join(bundlePaths.TemplatesDir, requestedID)
	for _, candidateFileName := range []string{preferredTemplateDescriptorFileNameConstant, legacyTemplateDescriptorFileNameConstant} {
		candidatePath := filepath.Join(templateDirectory, candidateFileName)
		if fileExists(candidatePath) {
			return Source{Kind: KindTemplate, Directory: templateDirectory, DescriptorPath: candidatePath}, nil
		}
	}

	workflowDirectory := filepath.Join(bundlePaths.WorkflowsDir, requestedID)
	workflowPath := filepath.Join(workflowDirectory, workflowDescriptorFileNameConstant)
	if fileExists(workflowPath) {
		return Source{Kind: KindWorkflow, Directory: workflowDirectory, DescriptorPath: workflowPath}, nil
	}

	return Source{}, NotFoundError{ID: requestedID}
}

// Load locates, parses, validates, and normalizes the declaration for the
// requested identifier.
func Load(bundlePaths store.Paths, requestedID string) (Descriptor, Source, error) {
	descriptorSource, locateError := Locate(bundlePaths, requestedID)
	if locateError != nil {
		return Descriptor{}, Source{}, locateError
	}

	var rawDescriptor descriptorFile
	if loadError := yamlfile.Load(descriptorSource.DescriptorPath, &rawDescriptor); loadError != nil {
		return Descriptor{}, Source{}, loadError
	}

	loadedDescriptor, normalizeError := normalize(requestedID, rawDescriptor)
	if normalizeError != nil {
		return Descriptor{}, Source{}, normalizeError
	}
	return loadedDescriptor, descriptorSource, nil
}

func normalize(requestedID string, rawDescriptor descriptorFile) (Descriptor, error) {
	if rawDescriptor.ID != requestedID {
		return Descriptor{}, IdentifierMismatchError{Requested: requestedID, Declared: rawDescriptor.ID}
	}

	parameterSpecs := make(map[string]ParamSpec, len(rawDescriptor.Params))
	for parameterName, rawSpec := range rawDescriptor.Params {
		existsRequirement, existsError := normalizeExists(parameterName, rawSpec)
		if existsError != nil {
			return Descriptor{}, existsError
		}
		parameterType := rawSpec.Type
		if len(parameterType) == 0 {
			parameterType = ParamTypeString
		}
		parameterSpecs[parameterName] = ParamSpec{
			Name:        parameterName,
			Type:        parameterType,
			CLI:         rawSpec.CLI,
			Required:    rawSpec.Required,
			Default:     rawSpec.Default,
			Exists:      existsRequirement,
			Description: rawSpec.Description,
		}
	}

	renderIntoPattern := rawDescriptor.Render.Into
	if len(renderIntoPattern) == 0 {
		renderIntoPattern = defaultRenderIntoPatternConstant
	}

	renderFiles := make([]RenderFile, 0, len(rawDescriptor.Render.Files))
	for _, rawEntry := range rawDescriptor.Render.Files {
		renderFile, entryError := normalizeRenderFile(rawEntry)
		if entryError != nil {
			return Descriptor{}, entryError
		}
		renderFiles = append(renderFiles, renderFile)
	}

	runEntry := ""
	if rawDescriptor.Run != nil {
		runEntry = strings.TrimSpace(rawDescriptor.Run.Entry)
	}

	requiredTemplates := rawDescriptor.RequiredTemplates
	if len(requiredTemplates) == 0 {
		requiredTemplates = rawDescriptor.Requires
	}

	publishSpecs, publishError := normalizePublish(rawDescriptor.Publish)
	if publishError != nil {
		return Descriptor{}, publishError
	}

	toolsRequired, toolsOptional, toolsError := normalizeTools(rawDescriptor.Tools)
	if toolsError != nil {
		return Descriptor{}, toolsError
	}

	return Descriptor{
		ID:                requestedID,
		Description:       rawDescriptor.Description,
		Params:            parameterSpecs,
		RenderInto:        renderIntoPattern,
		RenderFiles:       renderFiles,
		RunEntry:          runEntry,
		RequiredTemplates: requiredTemplates,
		Publish:           publishSpecs,
		Hooks:             rawDescriptor.Hooks,
		ToolsRequired:     toolsRequired,
		ToolsOptional:     toolsOptional,
	}, nil
}

// normalizeExists accepts `exists: file|dir|any`, boolean `exists: true`,
// and the legacy `must_exist: true` alias for `exists: any`.
func normalizeExists(parameterName string, rawSpec paramSpecFile) (ExistsRequirement, error) {
	switch existsValue := rawSpec.Exists.(type) {
	case nil:
		if rawSpec.MustExist {
			return ExistsAny, nil
		}
		return ExistsNone, nil
	case bool:
		if existsValue {
			return ExistsAny, nil
		}
		return ExistsNone, nil
	case string:
		normalizedValue := ExistsRequirement(strings.ToLower(strings.TrimSpace(existsValue)))
		switch normalizedValue {
		case ExistsFile, ExistsDir, ExistsAny:
			return normalizedValue, nil
		}
		return ExistsNone, InvalidExistsValueError{Parameter: parameterName, Value: existsValue}
	default:
		return ExistsNone, InvalidExistsValueError{Parameter: parameterName, Value: rawSpec.Exists}
	}
}

// normalizeRenderFile accepts both "src -> dst" strings and {src, dst} maps.
func normalizeRenderFile(rawEntry any) (RenderFile, error) {
	switch typedEntry := rawEntry.(type) {
	case string:
		sourceSegment, destinationSegment, found := strings.Cut(typedEntry, renderFileSeparatorConstant)
		if !found {
			return RenderFile{}, InvalidRenderFileError{Entry: rawEntry}
		}
		renderFile := RenderFile{
			Source:      strings.TrimSpace(sourceSegment),
			Destination: strings.TrimSpace(destinationSegment),
		}
		if len(renderFile.Source) == 0 || len(renderFile.Destination) == 0 {
			return RenderFile{}, InvalidRenderFileError{Entry: rawEntry}
		}
		return renderFile, nil
	case map[string]any:
		sourceValue, _ := typedEntry[renderFileSourceKeyConstant].(string)
		destinationValue, _ := typedEntry[renderFileDestinationKeyConstant].(string)
		if len(sourceValue) == 0 || len(destinationValue) == 0 {
			return RenderFile{}, InvalidRenderFileError{Entry: rawEntry}
		}
		return RenderFile{Source: sourceValue, Destination: destinationValue}, nil
	default:
		return RenderFile{}, InvalidRenderFileError{Entry: rawEntry}
	}
}

// normalizePublish accepts bare resolver reference strings and
// {resolver, args} mappings.
func normalizePublish(rawPublish map[string]any) (map[string]PublishSpec, error) {
	publishSpecs := make(map[string]PublishSpec, len(rawPublish))
	for publishKey, rawSpec := range rawPublish {
		switch typedSpec := rawSpec.(type) {
		case string:
			if len(strings.TrimSpace(typedSpec)) == 0 {
				return nil, InvalidPublishEntryError{Key: publishKey}
			}
			publishSpecs[publishKey] = PublishSpec{Resolver: strings.TrimSpace(typedSpec)}
		case map[string]any:
			var decodedSpec publishSpecFile
			if decodeError := decodeWeakly(typedSpec, &decodedSpec); decodeError != nil {
				return nil, decodeError
			}
			if len(strings.TrimSpace(decodedSpec.Resolver)) == 0 {
				return nil, InvalidPublishEntryError{Key: publishKey}
			}
			publishSpecs[publishKey] = PublishSpec{Resolver: strings.TrimSpace(decodedSpec.Resolver), Args: decodedSpec.Args}
		default:
			return nil, InvalidPublishEntryError{Key: publishKey}
		}
	}
	return publishSpecs, nil
}

// normalizeTools accepts either a bare list (all required) or a
// {required, optional} mapping.
func normalizeTools(rawTools any) ([]string, []string, error) {
	switch typedTools := rawTools.(type) {
	case nil:
		return nil, nil, nil
	case []any:
		requiredTools := make([]string, 0, len(typedTools))
		for _, rawTool := range typedTools {
			requiredTools = append(requiredTools, fmt.Sprintf("%v", rawTool))
		}
		return requiredTools, nil, nil
	case map[string]any:
		var decodedTools toolsSectionFile
		if decodeError := decodeWeakly(typedTools, &decodedTools); decodeError != nil {
			return nil, nil, decodeError
		}
		return decodedTools.Required, decodedTools.Optional, nil
	default:
		return nil, nil, fmt.Errorf(invalidToolsSectionTemplateConstant, rawTools)
	}
}

func decodeWeakly(source map[string]any, target any) error {
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          mapstructureTagNameConstant,
		Result:           target,
		WeaklyTypedInput: true,
	})
	if decoderError != nil {
		return decoderError
	}
	return decoder.Decode(source)
}

func fileExists(candidatePath string) bool {
	fileInformation, statError := os.Stat(candidatePath)
	return statError == nil && !fileInformation.IsDir()
}
