// Package fsutil provides the filesystem, locking, and atomic-write
// primitives the storage layer builds on.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//   - [Locker]: flock-based interprocess locking with inode verification
package fsutil

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// This interface is satisfied by [os.File] and can be used with all
// standard library functions that accept [io.Reader], [io.Writer],
// [io.Seeker], or [io.Closer].
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the underlying file descriptor. Used for mmap and flock.
	Fd() uintptr

	// Stat returns the os.FileInfo for this file.
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk.
	Sync() error

	// Truncate changes the size of the file.
	Truncate(size int64) error
}

// FS defines the filesystem operations the storage layer depends on.
//
// [Real] is the only production implementation; tests may substitute a
// fake that satisfies the same interface.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a path exists.
	Exists(path string) (bool, error)

	// Remove deletes a file. See [os.Remove].
	Remove(path string) error

	// Rename moves/renames a file. See [os.Rename]. Atomic on the same filesystem.
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
