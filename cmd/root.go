package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"josephlewis.net/mysh/core"
	"josephlewis.net/mysh/core/config"
	"josephlewis.net/mysh/core/logger"
)

var cfgPath string

// exitStatus carries the interactive shell's exit code out of cobra.
var exitStatus int

func loadConfig(stateFs afero.Fs) (*config.Configuration, error) {
	configuration, err := config.Load(stateFs, configDir())

	if errors.Is(err, fs.ErrNotExist) {
		// No config is fine, the shell runs with defaults.
		return config.Default(), nil
	}

	return configuration, err
}

func configDir() string {
	if cfgPath != "" {
		return cfgPath
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// rootCmd represents the base command when called without any subcommands:
// it runs the interactive shell.
var rootCmd = &cobra.Command{
	Use:   "mysh",
	Short: "An interactive Unix shell with job control",
	Long:  `mysh is a line-oriented command interpreter with pipelines, redirection, aliases, shell variables, history, and full foreground/background job control.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		stateFs := afero.NewOsFs()
		configuration, err := loadConfig(stateFs)
		if err != nil {
			return err
		}

		sessionLog := logger.NewNopLogger()
		if configuration.LogFile != "" {
			fd, err := stateFs.OpenFile(configuration.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				log.Printf("couldn't open log file: %v", err)
			} else {
				defer fd.Close()
				sessionLog = logger.NewJSONLinesRecorder(fd)
			}
		}

		shell, err := core.NewShell(configuration, stateFs, sessionLog.NewSession())
		if err != nil {
			return err
		}
		defer shell.Close()

		shell.LoadState()
		exitStatus = shell.Run()
		return nil
	},
}

// Execute adds all child commands to the root command and runs it. It is
// called by main.main() and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitStatus
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config directory (default $HOME)")
}
