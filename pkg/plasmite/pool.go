package plasmite

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/plasmite/plasmite/internal/fsutil"
)

// Durability selects how aggressively append flushes modified ranges to
// disk before returning (§4.4 step 5, §GLOSSARY).
type Durability int

const (
	// DurabilityFast relies on the OS page cache; the default.
	DurabilityFast Durability = iota
	// DurabilityFlush msyncs every modified range, in order, before append
	// returns.
	DurabilityFlush
)

// CreateOptions configures Create.
type CreateOptions struct {
	// FileSize is the total pool file size, including the pool header and
	// the hint table. Required.
	FileSize uint64

	// IndexCapacity is the hint table slot count. Zero means auto-size:
	// min(FileSize/256, 65536), further capped so the ring keeps at least
	// 1 KiB.
	IndexCapacity uint32

	// FailIfExists makes Create return AlreadyExists instead of truncating
	// an existing file at path. The storage engine itself has no opinion
	// here (§6.2); this flag exists for collaborators that do.
	FailIfExists bool
}

// AppendOptions configures AppendWithOptions.
type AppendOptions struct {
	// TimestampNs is stored in the frame header. Zero means "now".
	TimestampNs uint64
	Durability  Durability
}

// Pool is an open handle on a pool file: an owned file descriptor, a
// read/write mmap of the whole file, and the bookkeeping needed to
// serialize this process's handles against each other and against other
// processes.
type Pool struct {
	mu     sync.Mutex // guards closed
	closed bool

	path     string
	file     fsutil.File
	data     []byte
	identity fsutil.Identity
	entry    *registryEntry
	notifier *Notifier
}

var poolFS = fsutil.NewReal()
var poolLocker = fsutil.NewLocker(poolFS)

// Create creates a new pool file at path, per §4.4.
func Create(path string, opts CreateOptions) (*Pool, error) {
	if opts.FileSize <= poolHeaderSize {
		return nil, newErr(KindUsage, "create", "file_size %d too small", opts.FileSize).withPath(path)
	}
	if opts.FileSize > maxRingSize {
		return nil, newErr(KindUsage, "create", "file_size %d exceeds limit", opts.FileSize).withPath(path)
	}

	indexCapacity, ringOffset, ringSize, err := sizeRing(opts.FileSize, opts.IndexCapacity)
	if err != nil {
		return nil, err.(*Error).withPath(path)
	}

	dir := filepath.Dir(path)
	if err := poolFS.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr(classifyOSError(err), "create", err).withPath(path)
	}

	if opts.FailIfExists {
		if exists, _ := poolFS.Exists(path); exists {
			return nil, newErr(KindAlreadyExists, "create", "pool already exists").withPath(path)
		}
	}

	flag := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	file, err := poolFS.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, wrapErr(classifyOSError(err), "create", err).withPath(path)
	}

	if err := file.Truncate(int64(opts.FileSize)); err != nil {
		_ = file.Close()
		return nil, wrapErr(classifyOSError(err), "create", err).withPath(path)
	}

	header := poolHeader{
		FormatVersion: currentFormatVersion,
		Endianness:    littleEndianByte,
		FileSize:      opts.FileSize,
		IndexOffset:   poolHeaderSize,
		IndexCapacity: indexCapacity,
		RingOffset:    ringOffset,
		RingSize:      ringSize,
	}

	if _, err := file.Seek(0, 0); err != nil {
		_ = file.Close()
		return nil, wrapErr(KindIo, "create", err).withPath(path)
	}
	if _, err := file.Write(encodePoolHeader(header)); err != nil {
		_ = file.Close()
		return nil, wrapErr(KindIo, "create", err).withPath(path)
	}

	return mapOpenFile(path, file)
}

// Open opens an existing pool file at path, per §4.4.
func Open(path string) (*Pool, error) {
	file, err := poolFS.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, wrapErr(classifyOSError(err), "open", err).withPath(path)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, wrapErr(classifyOSError(err), "open", err).withPath(path)
	}

	buf := make([]byte, poolHeaderSize)
	if _, err := file.Seek(0, 0); err != nil {
		_ = file.Close()
		return nil, wrapErr(KindIo, "open", err).withPath(path)
	}
	if _, err := readFull(file, buf); err != nil {
		_ = file.Close()
		return nil, wrapErr(KindCorrupt, "open", err).withPath(path)
	}

	h, err := decodePoolHeader(buf)
	if err != nil {
		_ = file.Close()
		return nil, err.(*Error).withPath(path)
	}
	if err := validatePoolHeader(h, uint64(info.Size())); err != nil {
		_ = file.Close()
		return nil, err.(*Error).withPath(path)
	}

	return mapOpenFile(path, file)
}

func mapOpenFile(path string, file fsutil.File) (*Pool, error) {
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, wrapErr(classifyOSError(err), "open", err).withPath(path)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, wrapErr(KindIo, "open", err).withPath(path)
	}

	identity, err := fsutil.IdentityOf(file)
	if err != nil {
		_ = unix.Munmap(data)
		_ = file.Close()
		return nil, wrapErr(KindIo, "open", err).withPath(path)
	}

	entry := acquireRegistryEntry(identity)

	return &Pool{
		path:     path,
		file:     file,
		data:     data,
		identity: identity,
		entry:    entry,
		notifier: newNotifier(path),
	}, nil
}

// Close unmaps and closes the pool file. The file itself is left intact.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	if err := unix.Munmap(p.data); err != nil && firstErr == nil {
		firstErr = wrapErr(KindIo, "close", err).withPath(p.path)
	}
	if err := p.file.Close(); err != nil && firstErr == nil {
		firstErr = wrapErr(KindIo, "close", err).withPath(p.path)
	}
	if p.notifier != nil {
		_ = p.notifier.Close()
	}

	releaseRegistryEntry(p.identity)

	return firstErr
}

// header decodes the pool header from the current mmap contents, without
// re-validating it (the fast path used by readers and by append after it
// has taken the lock).
func (p *Pool) header() (poolHeader, error) {
	return decodePoolHeader(p.data[:poolHeaderSize])
}

func (p *Pool) indexBytes(h poolHeader) []byte {
	if h.IndexCapacity == 0 {
		return nil
	}
	start := h.IndexOffset
	end := start + uint64(h.IndexCapacity)*hintSlotSize
	return p.data[start:end]
}

func (p *Pool) ringBytes(h poolHeader) []byte {
	return p.data[h.RingOffset : h.RingOffset+h.RingSize]
}

// sizeRing computes the index capacity, ring offset, and ring size for a
// new pool given a requested file size and an optional explicit index
// capacity (0 means auto-size per §4.4).
func sizeRing(fileSize uint64, requestedCapacity uint32) (capacity uint32, ringOffset, ringSize uint64, err error) {
	capacity = requestedCapacity
	if capacity == 0 {
		auto := fileSize / autoIndexDivisor
		if auto > autoIndexCap {
			auto = autoIndexCap
		}
		capacity = uint32(auto)

		for capacity > 0 {
			ro := uint64(poolHeaderSize) + uint64(capacity)*hintSlotSize
			if ro+autoIndexMinRingReserve <= fileSize {
				break
			}
			capacity /= 2
		}
	}
	if uint64(capacity) > maxIndexCapacity {
		return 0, 0, 0, newErr(KindUsage, "create", "index_capacity %d exceeds limit", capacity)
	}

	ringOffset = uint64(poolHeaderSize) + uint64(capacity)*hintSlotSize
	if ringOffset >= fileSize {
		return 0, 0, 0, newErr(KindUsage, "create", "index_capacity %d leaves no room for the ring in file_size %d", capacity, fileSize)
	}
	ringSize = fileSize - ringOffset
	if ringSize < frameHeaderSize+commitMarkerSize {
		return 0, 0, 0, newErr(KindUsage, "create", "ring_size %d too small to hold a single frame", ringSize)
	}
	return capacity, ringOffset, ringSize, nil
}

func readFull(f fsutil.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if total < len(buf) {
		return total, newErr(KindCorrupt, "read", "short read: got %d, want %d", total, len(buf))
	}
	return total, nil
}

func classifyOSError(err error) Kind {
	switch {
	case os.IsNotExist(err):
		return KindNotFound
	case os.IsPermission(err):
		return KindPermission
	case os.IsExist(err):
		return KindAlreadyExists
	default:
		return KindIo
	}
}

func nowNs() uint64 {
	return uint64(time.Now().UnixNano())
}
