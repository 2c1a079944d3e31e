package fsutil

import (
	"bytes"

	"github.com/natefinch/atomic"
)

// WriteFileAtomic writes data to path via a temp-file-then-rename so a
// concurrent reader or a crash mid-write never observes a partial file.
func WriteFileAtomic(path string, data []byte) error {
	return atomic.WriteFile(path, bytes.NewReader(data))
}
