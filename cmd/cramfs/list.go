package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diskfs/go-cramfs/filesystem/cramfs"
)

var (
	listPattern string
	listTypes   string
)

var listCmd = &cobra.Command{
	Use:   "list <file>",
	Short: "list the contents of the filesystem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := cramfs.Open(args[0], offset)
		if err != nil {
			return err
		}
		defer fs.Close()

		var entries []*cramfs.Entry
		if listPattern != "" {
			if entries, err = fs.Match(listPattern); err != nil {
				return err
			}
		} else {
			err = fs.Walk(func(e *cramfs.Entry) error {
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}

		count := 0
		for _, e := range entries {
			if listTypes != "" && !strings.ContainsRune(listTypes, typeChar(e)) {
				continue
			}
			printEntry(e)
			count++
		}
		fmt.Printf("%d file(s) found\n", count)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listPattern, "pattern", "p", "", "filter by path pattern (path.Match syntax)")
	listCmd.Flags().StringVarP(&listTypes, "type", "t", "", "filter by file type characters among \"fdlpscb\"")
}

func typeChar(e *cramfs.Entry) rune {
	switch {
	case e.IsRegular():
		return 'f'
	case e.IsDir():
		return 'd'
	case e.IsSymlink():
		return 'l'
	case e.IsFifo():
		return 'p'
	case e.IsSocket():
		return 's'
	case e.IsCharDevice():
		return 'c'
	case e.IsBlockDevice():
		return 'b'
	}
	return '?'
}

func printEntry(e *cramfs.Entry) {
	// max file size is 2^24-1 -> 8 characters, max uid 2^16-1 -> 5,
	// max gid 2^8-1 -> 3
	link := ""
	if e.IsSymlink() {
		if target, err := e.Readlink(); err == nil {
			link = " -> " + target
		} else {
			log.Warnf("could not read link target of %s: %v", e.Path(), err)
		}
	}
	fmt.Printf("%s %8d %5d:%-3d %s%s\n", e.Mode(), e.Size(), e.UID(), e.GID(), e.Path(), link)
}
