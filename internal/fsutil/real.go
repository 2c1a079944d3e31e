package fsutil

import "os"

// Real implements [FS] using the real filesystem. All methods are pure
// passthroughs to the os package, except [Real.Exists] which wraps
// [os.Stat].
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

func (r *Real) Open(path string) (File, error) {
	return os.Open(path)
}

func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (r *Real) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (r *Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (r *Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (r *Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (r *Real) Remove(path string) error {
	return os.Remove(path)
}

func (r *Real) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Compile-time interface check.
var _ FS = (*Real)(nil)
