// Command cramfs inspects and extracts cramfs filesystem images.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	log = logrus.New()

	verbose bool
	offset  int64
)

var rootCmd = &cobra.Command{
	Use:   "cramfs",
	Short: "inspect and extract cramfs images",
	Long: `cramfs reads compressed read-only ROM filesystem images,
the format historically used in embedded Linux firmware. It can scan a
file for embedded images, list their contents, extract them to a real
filesystem and run a few consistency checks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(os.Stderr)
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(infoCmd, listCmd, extractCmd, checkCmd)
	for _, cmd := range []*cobra.Command{listCmd, extractCmd, checkCmd} {
		cmd.Flags().Int64VarP(&offset, "offset", "o", 0, "absolute position of the filesystem's start")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
