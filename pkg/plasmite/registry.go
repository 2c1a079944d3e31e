package plasmite

import (
	"sync"
	"sync/atomic"

	"github.com/plasmite/plasmite/internal/fsutil"
)

// Multiple Pool handles in one process may back the same file (opened
// twice, or forked). flock coordinates across processes; within a process
// all handles sharing an inode must also serialize their mmap access
// against each other, since flock is granted per open-file-description,
// not per inode, the instant two handles in the same process both think
// they hold "the" lock.
//
// fileRegistry maps a file's (dev,ino) identity to the shared state all of
// that process's handles on the file coordinate through.
var fileRegistry sync.Map // map[fsutil.Identity]*registryEntry

// registryEntry is shared by every in-process Pool handle open on the same
// underlying file.
type registryEntry struct {
	// mu serializes mmap access across handles. Readers never take it:
	// they read lock-free straight off the mmap (§5). Only the appender
	// takes Lock while applying a plan, so this RWMutex is used as a
	// plain Mutex.
	mu sync.RWMutex

	openCount atomic.Int32
}

func acquireRegistryEntry(id fsutil.Identity) *registryEntry {
	for {
		if val, loaded := fileRegistry.Load(id); loaded {
			entry := val.(*registryEntry)
			for {
				old := entry.openCount.Load()
				if old <= 0 {
					break // being torn down, fall through and create a new one
				}
				if entry.openCount.CompareAndSwap(old, old+1) {
					return entry
				}
			}
		}

		entry := &registryEntry{}
		entry.openCount.Store(1)

		if _, loaded := fileRegistry.LoadOrStore(id, entry); !loaded {
			return entry
		}
		// Someone else raced us; retry.
	}
}

func releaseRegistryEntry(id fsutil.Identity) {
	val, ok := fileRegistry.Load(id)
	if !ok {
		return
	}
	entry := val.(*registryEntry)
	if entry.openCount.Add(-1) <= 0 {
		fileRegistry.CompareAndDelete(id, entry)
	}
}
