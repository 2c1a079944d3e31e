package plasmite

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/plasmite/plasmite/internal/fsutil"
)

// Append assigns the next sequence number to payload and writes it into
// the pool using the default (fast) durability. It returns the assigned
// sequence number.
func (p *Pool) Append(payload []byte) (uint64, error) {
	return p.AppendWithOptions(payload, AppendOptions{})
}

// AppendWithOptions assigns the next sequence number to payload and writes
// it into the pool, dropping the oldest frames if necessary to make room
// (§4.4). It returns the assigned sequence number.
func (p *Pool) AppendWithOptions(payload []byte, opts AppendOptions) (uint64, error) {
	p.entry.mu.Lock()
	defer p.entry.mu.Unlock()

	lock, err := poolLocker.TryLock(p.path + ".lock")
	if err != nil {
		if errors.Is(err, fsutil.ErrWouldBlock) {
			return 0, newErr(KindBusy, "append", "writer lock held by another process").withPath(p.path)
		}
		return 0, wrapErr(classifyOSError(err), "append", err).withPath(p.path)
	}
	defer func() { _ = lock.Close() }()

	header, err := p.header()
	if err != nil {
		return 0, err.(*Error).withPath(p.path)
	}

	ring := p.ringBytes(header)

	plan, err := planAppend(header, ring, uint64(len(payload)))
	if err != nil {
		if e, ok := err.(*Error); ok {
			return 0, e.withPath(p.path)
		}
		return 0, err
	}

	timestamp := opts.TimestampNs
	if timestamp == 0 {
		timestamp = nowNs()
	}

	// (a) wrap marker, if any.
	if plan.WrapOffset != nil {
		writeFrameHeaderAt(ring, *plan.WrapOffset, newWrapHeader())
	}

	// (b) new frame header, state=Writing.
	fh := newFrameHeader(frameWriting, plan.Seq, timestamp, uint32(len(payload)))
	writeFrameHeaderAt(ring, plan.FrameOffset, fh)

	// (c) payload bytes.
	payloadOff := plan.FrameOffset + frameHeaderSize
	copy(ring[payloadOff:payloadOff+uint64(len(payload))], payload)

	// (d) commit marker.
	markerOff := payloadOff + uint64(len(payload))
	copy(ring[markerOff:markerOff+commitMarkerSize], commitMarker)

	// (e) rewrite frame header, state=Committed.
	fh.State = frameCommitted
	writeFrameHeaderAt(ring, plan.FrameOffset, fh)

	// (f) hint table slot.
	if header.IndexCapacity > 0 {
		idx := p.indexBytes(header)
		hintStore(idx, header.IndexCapacity, plan.Seq, plan.FrameOffset)
	}

	// (g) pool header.
	copy(p.data[:poolHeaderSize], encodePoolHeader(plan.NextHeader))

	if opts.Durability == DurabilityFlush {
		if plan.WrapOffset != nil {
			if err := p.msyncRing(header, *plan.WrapOffset, frameHeaderSize); err != nil {
				return 0, err
			}
		}
		if err := p.msyncRing(header, plan.FrameOffset, plan.FrameLen); err != nil {
			return 0, err
		}
		if header.IndexCapacity > 0 {
			slot := hintIndex(plan.Seq, header.IndexCapacity)
			if err := p.msyncIndex(header, slot); err != nil {
				return 0, err
			}
		}
		if err := p.msyncHeader(); err != nil {
			return 0, err
		}
	}

	if p.notifier != nil {
		p.notifier.Post()
	}

	if debugAssertions {
		if err := p.assertTail(); err != nil {
			return 0, err
		}
	}

	return plan.Seq, nil
}

func writeFrameHeaderAt(ring []byte, off uint64, h frameHeader) {
	copy(ring[off:off+frameHeaderSize], encodeFrameHeader(h))
}

func (p *Pool) msyncRing(header poolHeader, ringRelOffset, length uint64) error {
	absOff := header.RingOffset + ringRelOffset
	return p.msyncAbs(absOff, length)
}

func (p *Pool) msyncIndex(header poolHeader, slot uint64) error {
	absOff := header.IndexOffset + hintSlotOffset(slot)
	return p.msyncAbs(absOff, hintSlotSize)
}

func (p *Pool) msyncHeader() error {
	return p.msyncAbs(0, poolHeaderSize)
}

// msyncAbs flushes the page-aligned superset of [absOffset, absOffset+length)
// within the mmap. msync requires a page-aligned address; since the mapping
// itself starts at file offset 0 (itself page-aligned), rounding the
// relative offset to page boundaries rounds the absolute address the same
// way.
func (p *Pool) msyncAbs(absOffset, length uint64) error {
	pageSize := uint64(unix.Getpagesize())
	start := absOffset - (absOffset % pageSize)
	end := absOffset + length
	if r := end % pageSize; r != 0 {
		end += pageSize - r
	}
	if end > uint64(len(p.data)) {
		end = uint64(len(p.data))
	}

	if err := unix.Msync(p.data[start:end], unix.MS_SYNC); err != nil {
		return wrapErr(KindIo, "append", err).withPath(p.path)
	}
	return nil
}

// assertTail is the tail-only debug assertion of §4.7, run after every
// append in debug builds: the tail frame must be Committed, its seq must
// equal oldest_seq, and tail_next_off must match the computed next offset.
func (p *Pool) assertTail() error {
	header, err := p.header()
	if err != nil {
		return err
	}
	if header.isEmpty() {
		return nil
	}

	ring := p.ringBytes(header)
	fh, err := readFrameHeaderAt(ring, header.TailOff)
	if err != nil {
		return err
	}
	if fh.State != frameCommitted {
		return newErr(KindInternal, "assertTail", "tail frame at %d is not Committed (state=%d)", header.TailOff, fh.State).withPath(p.path)
	}
	if fh.Seq != header.OldestSeq {
		return newErr(KindInternal, "assertTail", "tail frame seq=%d != oldest_seq=%d", fh.Seq, header.OldestSeq).withPath(p.path)
	}

	fl, err := frameLen(uint64(fh.PayloadLen))
	if err != nil {
		return err
	}
	want := header.TailOff + fl
	if want == header.RingSize {
		want = 0
	}
	if want != header.TailNextOff {
		return newErr(KindInternal, "assertTail", "tail_next_off=%d, computed %d", header.TailNextOff, want).withPath(p.path)
	}
	return nil
}
