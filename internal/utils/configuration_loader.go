package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	configurationKeySeparatorConstant              = "."
	environmentKeySeparatorConstant                = "_"
	configurationFileNameTemplateSeparatorConstant = "."
)

// ConfigurationMetadata reports where the effective configuration came from.
type ConfigurationMetadata struct {
	ConfigFileUsed string
}

// ConfigurationLoader layers configuration sources in fixed precedence:
// defaults, embedded configuration, the first configuration file found
// (an explicit path beats the search paths), then environment variables.
type ConfigurationLoader struct {
	configurationName string
	configurationType string
	environmentPrefix string
	searchPaths       []string
	embeddedContent   []byte
	embeddedType      string
}

// NewConfigurationLoader builds a loader for the named configuration file
// type searched across the provided directories in order.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       searchPaths,
	}
}

// SetEmbeddedConfiguration registers baseline configuration compiled into
// the binary. It is merged above defaults and below any configuration file.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(embeddedContent []byte, embeddedType string) {
	loader.embeddedContent = embeddedContent
	loader.embeddedType = embeddedType
}

// LoadConfiguration resolves the effective configuration into target and
// reports which file, if any, supplied values.
func (loader *ConfigurationLoader) LoadConfiguration(explicitConfigurationPath string, defaultValues map[string]any, target any) (ConfigurationMetadata, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigType(loader.configurationType)

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	if len(loader.embeddedContent) > 0 {
		embeddedViper := viper.New()
		embeddedViper.SetConfigType(loader.embeddedType)
		if readError := embeddedViper.ReadConfig(bytes.NewReader(loader.embeddedContent)); readError != nil {
			return ConfigurationMetadata{}, readError
		}
		if mergeError := viperInstance.MergeConfigMap(embeddedViper.AllSettings()); mergeError != nil {
			return ConfigurationMetadata{}, mergeError
		}
	}

	metadata := ConfigurationMetadata{}
	configurationFilePath := loader.resolveConfigurationFilePath(explicitConfigurationPath)
	if len(configurationFilePath) > 0 {
		fileContent, readError := os.ReadFile(configurationFilePath)
		if readError != nil {
			return ConfigurationMetadata{}, readError
		}
		fileViper := viper.New()
		fileViper.SetConfigType(loader.configurationType)
		if parseError := fileViper.ReadConfig(bytes.NewReader(fileContent)); parseError != nil {
			return ConfigurationMetadata{}, parseError
		}
		if mergeError := viperInstance.MergeConfigMap(fileViper.AllSettings()); mergeError != nil {
			return ConfigurationMetadata{}, mergeError
		}
		metadata.ConfigFileUsed = configurationFilePath
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	viperInstance.AutomaticEnv()

	// AutomaticEnv only affects direct lookups, so environment overrides are
	// applied explicitly for every known key before unmarshaling.
	for _, knownKey := range viperInstance.AllKeys() {
		viperInstance.Set(knownKey, viperInstance.Get(knownKey))
	}

	if unmarshalError := viperInstance.Unmarshal(target); unmarshalError != nil {
		return ConfigurationMetadata{}, unmarshalError
	}
	return metadata, nil
}

func (loader *ConfigurationLoader) resolveConfigurationFilePath(explicitConfigurationPath string) string {
	if len(explicitConfigurationPath) > 0 {
		return explicitConfigurationPath
	}
	configurationFileName := loader.configurationName + configurationFileNameTemplateSeparatorConstant + loader.configurationType
	for _, searchPath := range loader.searchPaths {
		candidatePath := filepath.Join(searchPath, configurationFileName)
		if fileInformation, statError := os.Stat(candidatePath); statError == nil && !fileInformation.IsDir() {
			return candidatePath
		}
	}
	return ""
}
