package plasmite

import (
	"hash/fnv"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Notifier is a best-effort per-pool wake-up signal (§4.6). The engine
// never blocks append on a successful post, and a tailer that cannot wait
// on the notifier always falls back to polling with an adaptive delay -
// the notifier is a latency optimization, never a correctness dependency.
//
// It is backed by a Unix domain datagram socket named after a hash of the
// pool's canonical path, so independent processes opening the same pool
// converge on the same address without needing a shared memory segment or
// a POSIX semaphore (neither of which this corpus' dependency pack gives a
// cgo-free way to reach - see the design notes for this package).
//
// Only one process-wide waiter can usefully bind the notification address
// at a time; any other waiter simply fails to bind and polls instead. This
// is intentional: the contract §4.6 promises is "best effort", not "every
// waiter wakes on every post".
type Notifier struct {
	mu   sync.Mutex
	addr string

	conn   *net.UnixConn // non-nil once this process is the bound listener
	closed bool
}

func newNotifier(poolPath string) *Notifier {
	return &Notifier{addr: notifySocketPath(poolPath)}
}

// notifySocketPath derives a stable socket path from a hash of the pool's
// canonicalized path (§4.6, SPEC_FULL supplement: FNV-1a 64-bit rather than
// a cryptographic hash, since nothing else in this engine needs one).
func notifySocketPath(poolPath string) string {
	abs, err := filepath.Abs(poolPath)
	if err != nil {
		abs = poolPath
	}
	abs = filepath.Clean(abs)

	h := fnv.New64a()
	_, _ = h.Write([]byte(abs))

	name := "plasmite-" + formatHex(h.Sum64()) + ".sock"
	return filepath.Join(os.TempDir(), name)
}

func formatHex(v uint64) string {
	const hex = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hex[v&0xF]
		v >>= 4
	}
	return string(buf)
}

// listen lazily binds this process as the notifier's listener, if nobody
// else already owns the address. Safe to call repeatedly; returns false if
// binding failed (address in use, permission denied, etc.) - the caller
// should fall back to polling.
func (n *Notifier) listen() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		return true
	}
	if n.closed {
		return false
	}

	// An address that accepts a connection belongs to a live listener:
	// leave it alone and let the caller poll.
	if probe, err := net.Dial("unixgram", n.addr); err == nil {
		_ = probe.Close()
		return false
	}

	_ = os.Remove(n.addr) // best-effort: clear a stale socket from a dead process

	uaddr, err := net.ResolveUnixAddr("unixgram", n.addr)
	if err != nil {
		return false
	}

	conn, err := net.ListenUnixgram("unixgram", uaddr)
	if err != nil {
		return false
	}

	n.conn = conn
	return true
}

// Post signals any current waiter. Failures (no listener, socket gone,
// permission issues) are silently ignored - posting is always best-effort.
func (n *Notifier) Post() {
	conn, err := net.DialTimeout("unixgram", n.addr, 10*time.Millisecond)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	_, _ = conn.Write([]byte{0})
}

// Wait blocks until a post arrives or timeout elapses, returning true if a
// post was observed. A false return (no listener available, or timeout)
// means the caller should fall back to polling; it is never treated as a
// hard error.
func (n *Notifier) Wait(timeout time.Duration) bool {
	if !n.listen() {
		return false
	}

	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return false
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	return err == nil
}

// Close releases the notifier's listening socket, if this process holds
// one.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	_ = os.Remove(n.addr)
	n.conn = nil
	return err
}

// PollDelay implements the adaptive polling fallback of §4.6: an initial
// 1ms delay, doubling to a 50ms cap, reset whenever new data was observed.
type PollDelay struct {
	current time.Duration
}

// NewPollDelay returns a PollDelay starting at its initial interval.
func NewPollDelay() *PollDelay {
	return &PollDelay{current: notifyPollInitial}
}

// Next returns the delay to sleep before the next poll and advances the
// backoff.
func (d *PollDelay) Next() time.Duration {
	cur := d.current
	d.current *= 2
	if d.current > notifyPollMax {
		d.current = notifyPollMax
	}
	return cur
}

// Reset returns the backoff to its initial interval; callers do this after
// observing new data.
func (d *PollDelay) Reset() {
	d.current = notifyPollInitial
}
