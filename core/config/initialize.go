package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Initialize writes the default configuration file into the directory,
// creating it if necessary. An existing configuration is left untouched.
func Initialize(fs afero.Fs, path string, logger *log.Logger) (*Configuration, error) {
	if err := fs.MkdirAll(path, 0755); err != nil {
		return nil, err
	}

	cfgPath := filepath.Join(path, ConfigurationName)
	if _, err := fs.Stat(cfgPath); err == nil {
		logger.Printf("configuration already exists at %s, leaving it as-is", cfgPath)
		return Load(fs, path)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	logger.Printf("writing default configuration to %s", cfgPath)
	if err := afero.WriteFile(fs, cfgPath, defaultConfigData, 0644); err != nil {
		return nil, err
	}

	return Load(fs, path)
}
