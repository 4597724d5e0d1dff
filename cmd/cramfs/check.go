package main

import (
	"fmt"

	"github.com/elliotwutingfeng/asciiset"
	"github.com/spf13/cobra"

	"github.com/diskfs/go-cramfs/filesystem/cramfs"
)

var checkCRC bool

// printable ASCII, the only bytes ever produced by mkcramfs in names
var printableNames = makePrintableSet()

func makePrintableSet() asciiset.ASCIISet {
	var printable string
	for c := byte(' '); c <= '~'; c++ {
		printable += string(c)
	}
	set, _ := asciiset.MakeASCIISet(printable)
	return set
}

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "make a few superficial checks of the filesystem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := cramfs.Open(args[0], offset)
		if err != nil {
			return err
		}
		defer fs.Close()

		findings := 0
		warn := func(format string, a ...interface{}) {
			findings++
			log.Warnf(format, a...)
		}
		err = fs.Walk(func(e *cramfs.Entry) error {
			p := e.Path()
			for i := 0; i < len(e.Name()); i++ {
				if !printableNames.Contains(e.Name()[i]) {
					warn("filename contains non-printable bytes: %q", e.Name())
					break
				}
			}
			offset := e.DataOffset()
			switch {
			case e.IsDir():
				if offset == 0 && e.Size() != 0 {
					warn("directory inode has zero offset and non-zero size: %s", p)
				}
			case e.IsRegular():
				if offset == 0 && e.Size() != 0 {
					warn("file inode has zero offset and non-zero size: %s", p)
				}
				if e.Size() == 0 && offset != 0 {
					warn("file inode has zero size and non-zero offset: %s", p)
				}
			case e.IsSymlink():
				if offset == 0 {
					warn("symbolic link has zero offset: %s", p)
				}
				if e.Size() == 0 {
					warn("symbolic link has zero size: %s", p)
				}
			case e.IsCharDevice(), e.IsBlockDevice():
				if offset != 0 {
					warn("special file has non-zero offset: %s", p)
				}
			case e.IsFifo(), e.IsSocket():
				if offset != 0 {
					warn("special file has non-zero offset: %s", p)
				}
				if e.Size() != 0 {
					warn("fifo or socket has non-zero size: %s", p)
				}
			default:
				warn("bogus mode: %s (%o)", p, e.Mode())
			}
			return nil
		})
		if err != nil {
			return err
		}
		if checkCRC {
			if err = fs.CheckCRC(); err != nil {
				warn("%v", err)
			}
		}
		if findings == 0 {
			fmt.Println("No problems found")
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkCRC, "crc", false, "also verify the whole-image CRC")
}
