// Package config holds the shell's tunable settings.
package config

import (
	_ "embed"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const (
	// ConfigurationName is the file looked up inside the config directory.
	ConfigurationName = "mysh.yaml"

	// StateSuffix turns the history path into the alias/variable state
	// path.
	StateSuffix = "_config"
)

// Configuration tunes the interactive shell. The zero value is not usable;
// start from Default.
type Configuration struct {
	// Motd is printed once at startup. Empty disables the banner.
	Motd string `json:"motd"`

	// Color switches prompt and builtin colorization.
	Color string `json:"color" validate:"oneof=always auto never"`

	// HistoryFile names the history file, relative to the home directory
	// unless absolute.
	HistoryFile string `json:"history_file" validate:"required"`

	// HistoryLimit bounds the history ring.
	HistoryLimit int `json:"history_limit" validate:"gte=1,lte=100000"`

	// MaxJobs bounds the number of live entries in the job table.
	MaxJobs int `json:"max_jobs" validate:"gte=1,lte=1024"`

	// MaxTokens bounds the tokens produced for one input line.
	MaxTokens int `json:"max_tokens" validate:"gte=1,lte=4096"`

	// LogFile receives the JSON-lines session log. Empty disables logging.
	LogFile string `json:"log_file"`

	// Aliases seeds the alias table before persisted state is loaded.
	Aliases map[string]string `json:"aliases"`

	// Vars seeds the shell-variable table before persisted state is loaded.
	Vars map[string]string `json:"vars"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// HistoryPath resolves the history file against the home directory.
func (c *Configuration) HistoryPath(home string) string {
	if filepath.IsAbs(c.HistoryFile) {
		return c.HistoryFile
	}
	return filepath.Join(home, c.HistoryFile)
}

// StatePath resolves the alias/variable state file. The path is always the
// history path plus StateSuffix.
func (c *Configuration) StatePath(home string) string {
	return c.HistoryPath(home) + StateSuffix
}

// Default returns the built-in configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
