package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diskfs/go-cramfs/extract"
	"github.com/diskfs/go-cramfs/filesystem/cramfs"
)

var (
	extractDest  string
	extractPath  string
	extractForce bool
	extractQuiet bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "extract files from the filesystem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := cramfs.Open(args[0], offset)
		if err != nil {
			return err
		}
		defer fs.Close()

		entry, err := fs.Select(extractPath)
		if err != nil {
			return err
		}

		opts := extract.Options{Force: extractForce}
		if !extractQuiet {
			opts.OnEntry = func(e *cramfs.Entry, dest string) {
				log.Debugf("extracted %s", dest)
			}
		}

		var created int
		dest := extractDest
		if entry.IsDir() {
			if dest == "" {
				base := filepath.Base(args[0])
				dest = strings.TrimSuffix(base, filepath.Ext(base))
			}
			if created, err = extract.Tree(entry, dest, opts); err != nil {
				return err
			}
		} else {
			if dest == "" {
				dest = entry.Name()
			}
			ok, err := extract.Entry(entry, dest, opts)
			if err != nil {
				return err
			}
			if ok {
				created = 1
			}
		}
		if !extractQuiet {
			fmt.Printf("%d file(s) extracted to %s\n", created, dest)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractDest, "dest", "d", "", "destination directory (default: next to file)")
	extractCmd.Flags().StringVarP(&extractPath, "path", "p", "/", "absolute path of the directory or file to extract")
	extractCmd.Flags().BoolVarP(&extractForce, "force", "f", false, "overwrite files that already exist")
	extractCmd.Flags().BoolVarP(&extractQuiet, "quiet", "q", false, "don't print extraction status")
}
