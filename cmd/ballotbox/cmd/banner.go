package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

const banner = `
  ____        _ _       _   ____
 | __ )  __ _| | | ___ | |_| __ )  _____  __
 |  _ \ / _` + "`" + ` | | |/ _ \| __|  _ \ / _ \ \/ /
 | |_) | (_| | | | (_) | |_| |_) | (_) >  <
 |____/ \__,_|_|_|\___/ \__|____/ \___/_/\_\

`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Voting Service Client - Version %s\x1b[0m\n\n", Version)
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the client version",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		if jsonOutput {
			return printJSON(cmd, map[string]string{"version": Version})
		}
		printBanner(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
