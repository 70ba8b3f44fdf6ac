package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"josephlewis.net/mysh/core/logger"
)

// logsCmd pretty-prints the shell's JSON-lines session log.
var logsCmd = &cobra.Command{
	Use:     "logs [FILE]",
	Aliases: []string{"log"},
	Short:   "Print the session log.",
	Long:    `Reads the JSON-lines session log (the configured log_file by default) and prints one event per row.`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			configuration, err := loadConfig(afero.NewOsFs())
			if err != nil {
				return err
			}
			path = configuration.LogFile
		}
		if path == "" {
			return fmt.Errorf("no log file configured; set log_file in the configuration or pass a path")
		}

		fd, err := os.Open(path)
		if err != nil {
			return err
		}
		defer fd.Close()

		entries, err := logger.ReadEntries(fd)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 8, 8, 2, ' ', 0)
		defer tw.Flush()
		for _, e := range entries {
			ts := time.UnixMicro(e.TimestampMicros).Format(time.RFC3339)
			switch e.Event {
			case logger.EventExec:
				fmt.Fprintf(tw, "%s\t%s\t%s\tstatus=%d\t%s\n", ts, e.SessionID, e.Event, e.ExitStatus, e.Cmdline)
			case logger.EventJob:
				fmt.Fprintf(tw, "%s\t%s\t%s\t[%d] pgid=%d\t%s\n", ts, e.SessionID, e.Event, e.JobID, e.Pgid, e.JobState)
			default:
				fmt.Fprintf(tw, "%s\t%s\t%s\t\t\n", ts, e.SessionID, e.Event)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
