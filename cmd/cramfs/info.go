package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diskfs/go-cramfs/filesystem/cramfs"
	"github.com/diskfs/go-cramfs/util"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "show every superblock that can be found in a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		size, err := util.FileSize(f)
		if err != nil {
			return err
		}
		count := 0
		scanner := cramfs.NewScanner(f, size)
		for scanner.Next() {
			if count > 0 {
				fmt.Println()
			}
			count++
			printSuperblock(count, scanner.Offset(), scanner.Superblock())
		}
		if err = scanner.Err(); err != nil {
			return err
		}
		if count == 0 {
			fmt.Println("No superblock found")
		}
		return nil
	},
}

func printSuperblock(index int, offset int64, sb *cramfs.Superblock) {
	fmt.Printf("Superblock #%d\n", index)
	fmt.Printf("%-10s 0x%X\n", "Magic:", sb.Magic)
	fmt.Printf("%-10s %d\n", "Size:", sb.Size)
	fmt.Printf("%-10s %s\n", "Flags:", sb.Flags)
	fmt.Printf("%-10s %d\n", "Future:", sb.Future)
	fmt.Printf("%-10s %s\n", "Signature:", sb.Signature)
	fmt.Printf("%-10s %s\n", "Name:", sb.Name)
	fmt.Printf("%-10s 0x%08X\n", "CRC:", sb.CRC)
	fmt.Printf("%-10s %d\n", "Edition:", sb.Edition)
	fmt.Printf("%-10s %d\n", "Blocks:", sb.Blocks)
	fmt.Printf("%-10s %d\n", "Files:", sb.Files)
	fmt.Printf("%-10s %d\n", "Offset:", offset)
}
