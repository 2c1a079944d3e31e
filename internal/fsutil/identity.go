package fsutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Identity uniquely identifies a file by device and inode, stable across
// renames and reopens of the same underlying file.
type Identity struct {
	Dev uint64
	Ino uint64
}

func identityOf(info os.FileInfo) (Identity, error) {
	sys, ok := info.Sys().(*unix.Stat_t)
	if !ok || sys == nil {
		return Identity{}, fmt.Errorf("fsutil: file.Stat Sys=%T, want *unix.Stat_t", info.Sys())
	}
	return Identity{Dev: uint64(sys.Dev), Ino: sys.Ino}, nil
}

// IdentityOf returns the device/inode identity of an open file.
func IdentityOf(f File) (Identity, error) {
	info, err := f.Stat()
	if err != nil {
		return Identity{}, err
	}
	return identityOf(info)
}
