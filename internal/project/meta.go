package project

import (
	"path/filepath"

	"github.com/bpm-tools/bpm/internal/yamlfile"
)

// MetaFileName is the record written next to ad-hoc render output.
const MetaFileName = "bpm.meta.yaml"

// MetaSource identifies the bundle and template a render came from.
type MetaSource struct {
	BRSID      string `yaml:"brs_id"`
	BRSVersion string `yaml:"brs_version"`
	TemplateID string `yaml:"template_id"`
}

// MetaRecord captures provenance of a render outside any project. It is the
// ad-hoc counterpart of a manifest TemplateEntry.
type MetaRecord struct {
	Source    MetaSource     `yaml:"source"`
	Rendered  string         `yaml:"rendered"`
	Status    string         `yaml:"status"`
	Params    map[string]any `yaml:"params,omitempty"`
	Published map[string]any `yaml:"published,omitempty"`
}

// LoadMeta reads the meta record from an output directory.
func LoadMeta(outputDirectory string) (MetaRecord, error) {
	var metaRecord MetaRecord
	if loadError := yamlfile.Load(filepath.Join(outputDirectory, MetaFileName), &metaRecord); loadError != nil {
		return MetaRecord{}, loadError
	}
	return metaRecord, nil
}

// SaveMeta writes the meta record atomically into an output directory.
func SaveMeta(outputDirectory string, metaRecord MetaRecord) error {
	return yamlfile.SaveAtomic(filepath.Join(outputDirectory, MetaFileName), metaRecord)
}
