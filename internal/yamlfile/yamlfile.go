package yamlfile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	temporaryFileSuffixConstant     = ".tmp"
	documentFilePermissionConstant  = 0o644
	parentDirectoryPermissionConstant = 0o755
	readErrorTemplateConstant       = "failed to read YAML document %s: %w"
	decodeErrorTemplateConstant     = "failed to decode YAML document %s: %w"
	encodeErrorTemplateConstant     = "failed to encode YAML document %s: %w"
	writeErrorTemplateConstant      = "failed to write YAML document %s: %w"
	replaceErrorTemplateConstant    = "failed to replace YAML document %s: %w"
)

// Load reads and decodes a YAML document into the provided target.
func Load(documentPath string, target any) error {
	contentBytes, readError := os.ReadFile(documentPath)
	if readError != nil {
		return fmt.Errorf(readErrorTemplateConstant, documentPath, readError)
	}
	if unmarshalError := yaml.Unmarshal(contentBytes, target); unmarshalError != nil {
		return fmt.Errorf(decodeErrorTemplateConstant, documentPath, unmarshalError)
	}
	return nil
}

// SaveAtomic serializes the value and writes it through a temporary sibling
// file followed by an atomic rename, so a crash mid-write can never leave a
// half-written document behind.
func SaveAtomic(documentPath string, value any) error {
	encodedBytes, marshalError := yaml.Marshal(value)
	if marshalError != nil {
		return fmt.Errorf(encodeErrorTemplateConstant, documentPath, marshalError)
	}

	if directoryError := os.MkdirAll(filepath.Dir(documentPath), parentDirectoryPermissionConstant); directoryError != nil {
		return fmt.Errorf(writeErrorTemplateConstant, documentPath, directoryError)
	}

	temporaryPath := documentPath + temporaryFileSuffixConstant
	if writeError := os.WriteFile(temporaryPath, encodedBytes, documentFilePermissionConstant); writeError != nil {
		return fmt.Errorf(writeErrorTemplateConstant, documentPath, writeError)
	}

	if renameError := os.Rename(temporaryPath, documentPath); renameError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(replaceErrorTemplateConstant, documentPath, renameError)
	}
	return nil
}
