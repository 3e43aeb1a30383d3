// Command nobodd-lsfat is a small debugging tool: it mounts a FAT volume
// out of a raw disk image and either walks its whole tree or dumps one
// file.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/waveform80/nobodd/disk"
	"github.com/waveform80/nobodd/fat"
)

func main() {
	var partition uint32
	var catPath string

	root := &cobra.Command{
		Use:           "nobodd-lsfat IMAGE",
		Short:         "List or dump files from a FAT partition in a raw disk image",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			img, err := disk.Open(args[0])
			if err != nil {
				return err
			}
			defer img.Close()

			win, err := disk.WholeImage{}.Partition(img, partition)
			if err != nil {
				return err
			}
			fs, err := fat.New(win)
			if err != nil {
				return err
			}

			if catPath != "" {
				return catFile(fs, catPath)
			}
			return walk(fs)
		},
	}
	flags := root.Flags()
	flags.Uint32Var(&partition, "partition", 1, "1-based partition index (WholeImage only accepts 1)")
	flags.StringVar(&catPath, "cat", "", "print this file's contents to stdout instead of listing the tree")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func walk(fs *fat.FileSystem) error {
	fmt.Printf("volume %q, type %s, %d clusters\n", fs.Label(), fs.Type(), fs.TotalClusters())
	return afero.Walk(fs.Afero(), "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		kind := "-"
		if info.IsDir() {
			kind = "d"
		}
		fmt.Printf("%s %10d %s %s\n", kind, info.Size(), info.ModTime().Format("2006-01-02 15:04:05"), path)
		return nil
	})
}

func catFile(fs *fat.FileSystem, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(os.Stdout, f)
	return err
}
