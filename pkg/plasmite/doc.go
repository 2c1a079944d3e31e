// Package plasmite provides a single-file, mmap-backed, append-only
// message pool for local multi-process IPC.
//
// A pool is a fixed-size ring of length-prefixed frames. One writer
// appends messages, dropping the oldest live frames as needed to make
// room; any number of readers tail the ring with a [Cursor], each at its
// own pace, with no coordination with the writer beyond the file itself.
//
// # Basic Usage
//
//	pool, err := plasmite.Create("/tmp/my.plasmite", plasmite.CreateOptions{
//	    FileSize: 64 << 20,
//	})
//	if err != nil {
//	    // handle
//	}
//	defer pool.Close()
//
//	seq, err := pool.Append([]byte("hello"))
//
//	cur := plasmite.NewCursor()
//	msg, result, err := cur.Next(pool)
//	switch result {
//	case plasmite.CursorMessage:
//	    // msg.Payload is ready
//	case plasmite.CursorWouldBlock:
//	    // nothing new yet; poll or wait on the pool's notifier
//	case plasmite.CursorFellBehind:
//	    // the writer overwrote frames the cursor hadn't read; it has
//	    // been reset to the current tail
//	}
//
// # Concurrency
//
// plasmite uses a single-writer, multi-reader model:
//   - Only one process may hold the append lock on a pool file at a time;
//     other writers see [ErrBusy].
//   - Readers never take a lock. They synchronize purely through the
//     frame state machine and the commit marker, and must tolerate
//     [CursorFellBehind] at any point - there is no way to "hold" a frame
//     against the writer reclaiming it.
//   - A [Pool] handle itself is safe for concurrent use by multiple
//     goroutines in the same process; the in-process registry lock
//     serializes their appends before the cross-process file lock is
//     even attempted.
//
// # Error Handling
//
// All errors are [*Error], classified into one of eight [Kind] values and
// checkable with errors.Is against the package's sentinels
// ([ErrNotFound], [ErrBusy], [ErrCorrupt], and so on). [ErrCorrupt]
// indicates the pool file itself should be considered untrustworthy;
// [Pool.Validate] can confirm the extent of the damage and snapshots a
// report next to the file for postmortem.
package plasmite
