// Package extract writes the contents of a parsed cramfs tree out to a
// real filesystem: regular files from their decompressed block streams,
// symlinks with a plain-file fallback on platforms that refuse them, and
// device nodes, FIFOs and sockets where the platform allows creating
// them. Ownership is applied best-effort and modification times are
// zeroed, since the format stores none.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/diskfs/go-cramfs/filesystem/cramfs"
)

// Options control extraction.
type Options struct {
	// Force overwrites files that already exist.
	Force bool
	// OnEntry, if set, is called for every entry after it has been
	// created, for progress reporting.
	OnEntry func(entry *cramfs.Entry, dest string)
}

// Tree extracts the subtree rooted at dir into the directory dest,
// creating dest itself. It returns the number of filesystem objects
// created.
func Tree(dir *cramfs.Entry, dest string, opts Options) (int, error) {
	if !dir.IsDir() {
		return 0, fmt.Errorf("extract: %s is not a directory", dir.Path())
	}
	base := dir.Path()
	created := 0
	err := dir.Walk(func(entry *cramfs.Entry) error {
		rel := strings.TrimPrefix(entry.Path(), base)
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if entry.IsDir() {
			if err := os.Mkdir(target, entry.Mode().Perm()); err != nil {
				if !os.IsExist(err) || !opts.Force {
					return err
				}
			}
			applyStatus(target, entry)
		} else {
			ok, err := Entry(entry, target, opts)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		created++
		if opts.OnEntry != nil {
			opts.OnEntry(entry, target)
		}
		return nil
	})
	return created, err
}

// Entry extracts a single non-directory entry to the path dest. It
// reports whether a filesystem object was created; entries with a bogus
// mode are skipped without error.
func Entry(entry *cramfs.Entry, dest string, opts Options) (bool, error) {
	switch {
	case entry.IsRegular():
		if err := writeFile(entry, dest, opts.Force); err != nil {
			return false, err
		}
		if err := os.Chmod(dest, entry.Mode().Perm()); err != nil {
			return false, err
		}
	case entry.IsSymlink():
		if err := writeSymlink(entry, dest, opts.Force); err != nil {
			return false, err
		}
	case entry.IsCharDevice(), entry.IsBlockDevice():
		major, minor := entry.DeviceNumbers()
		if err := makeNode(dest, entry, major, minor, opts.Force); err != nil {
			return false, err
		}
	case entry.IsFifo(), entry.IsSocket():
		if err := makeNode(dest, entry, 0, 0, opts.Force); err != nil {
			return false, err
		}
	default:
		return false, nil
	}
	applyStatus(dest, entry)
	return true, nil
}

func makeNode(dest string, entry *cramfs.Entry, major, minor uint32, force bool) error {
	err := mknod(dest, entry, major, minor)
	if err == nil || !errors.Is(err, os.ErrExist) || !force {
		return err
	}
	if err = os.Remove(dest); err != nil {
		return err
	}
	return mknod(dest, entry, major, minor)
}

func writeFile(entry *cramfs.Entry, dest string, force bool) error {
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flag |= os.O_EXCL
	}
	f, err := os.OpenFile(dest, flag, 0o644)
	if err != nil {
		return err
	}
	if _, err = entry.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeSymlink(entry *cramfs.Entry, dest string, force bool) error {
	target, err := entry.Readlink()
	if err != nil {
		return err
	}
	err = os.Symlink(target, dest)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrExist) {
		if !force {
			return err
		}
		if err = os.Remove(dest); err != nil {
			return err
		}
		return os.Symlink(target, dest)
	}
	// fall back to writing the link target into a plain file on
	// platforms where creating symlinks needs privileges
	return writeFile(entry, dest, force)
}

// applyStatus applies ownership and times best-effort: chown needs
// privileges we may not have, and the format stores no timestamps so
// modification times are set to the epoch.
func applyStatus(dest string, entry *cramfs.Entry) {
	if err := os.Lchown(dest, entry.UID(), entry.GID()); err == nil {
		if entry.IsSymlink() {
			return
		}
		// setuid and setgid bits are stripped by chown, restore them
		if mode := entry.Mode(); mode&(os.ModeSetuid|os.ModeSetgid) != 0 {
			_ = os.Chmod(dest, mode&(os.ModePerm|os.ModeSetuid|os.ModeSetgid|os.ModeSticky))
		}
	}
	if entry.IsSymlink() {
		return
	}
	_ = os.Chtimes(dest, time.Unix(0, 0), time.Unix(0, 0))
}
