package plasmite

// CursorResult classifies the outcome of one Cursor.Next call.
type CursorResult int

const (
	// CursorMessage means a Message was returned.
	CursorMessage CursorResult = iota
	// CursorWouldBlock means there is nothing new to read right now.
	CursorWouldBlock
	// CursorFellBehind means the writer overwrote at least the frame the
	// cursor was about to read; it has resynchronized to the current
	// tail and the caller should call Next again.
	CursorFellBehind
)

// Cursor iterates committed frames from a saved ring offset, detecting
// overwrite ("fell behind") and resynchronizing automatically (§4.5).
// Readers never take a lock; a Cursor only reads through the pool's mmap.
type Cursor struct {
	nextOff uint64
	lastSeq uint64
}

// NewCursor returns a cursor positioned to read from the current tail on
// its first call to Next.
func NewCursor() *Cursor {
	return &Cursor{}
}

// Next returns exactly one of a Message, WouldBlock, or FellBehind.
func (c *Cursor) Next(p *Pool) (Message, CursorResult, error) {
	header, err := p.header()
	if err != nil {
		return Message{}, 0, err
	}

	if header.isEmpty() {
		return Message{}, CursorWouldBlock, nil
	}
	if c.lastSeq >= header.NewestSeq {
		return Message{}, CursorWouldBlock, nil
	}

	if !inLiveRange(c.nextOff, header.TailOff, header.HeadOff, header.RingSize) {
		c.nextOff = header.TailOff
		c.lastSeq = 0
		return Message{}, CursorFellBehind, nil
	}

	ring := p.ringBytes(header)
	off := c.nextOff

	fh, err := decodeFrameHeaderAt(ring, off)
	if err != nil {
		return Message{}, 0, err
	}

	if fh.State == frameWrap {
		off = 0
		fh, err = decodeFrameHeaderAt(ring, off)
		if err != nil {
			return Message{}, 0, err
		}
	}

	if fh.State != frameCommitted {
		return Message{}, CursorWouldBlock, nil
	}

	if err := validateFrameHeader(fh, header.RingSize); err != nil {
		c.nextOff = header.TailOff
		c.lastSeq = 0
		return Message{}, CursorFellBehind, nil
	}

	payloadStart := off + frameHeaderSize
	payloadEnd := payloadStart + uint64(fh.PayloadLen)
	markerEnd := payloadEnd + commitMarkerSize
	if markerEnd > uint64(len(ring)) || string(ring[payloadEnd:markerEnd]) != commitMarker {
		c.nextOff = header.TailOff
		c.lastSeq = 0
		return Message{}, CursorFellBehind, nil
	}

	// Copied rather than sliced directly out of the mmap: a caller holding
	// onto Message.Payload across the writer recycling this frame would
	// otherwise observe bytes changing underneath it. A small deviation from
	// zero-copy in exchange for a Payload the caller can safely retain.
	payload := make([]byte, fh.PayloadLen)
	copy(payload, ring[payloadStart:payloadEnd])

	msg := Message{
		Seq:         fh.Seq,
		TimestampNs: fh.TimestampNs,
		Flags:       fh.Flags,
		Payload:     payload,
	}

	fl, err := frameLen(uint64(fh.PayloadLen))
	if err != nil {
		return Message{}, 0, err
	}
	next := off + fl
	if next == header.RingSize {
		next = 0
	}

	c.nextOff = next
	c.lastSeq = fh.Seq

	return msg, CursorMessage, nil
}

// decodeFrameHeaderAt is readFrameHeaderAt under the cursor's name: both
// perform only the magic/state structural decode, leaving value-level
// validation (xor, bounds) to validateFrameHeader.
func decodeFrameHeaderAt(ring []byte, off uint64) (frameHeader, error) {
	return readFrameHeaderAt(ring, off)
}

// inLiveRange reports whether off lies in the live region [tailOff,
// headOff) taken circularly, treating tailOff == headOff as "the entire
// ring is live" (a completely full pool) rather than "nothing is live" -
// that case is already handled by the caller checking header.isEmpty().
func inLiveRange(off, tailOff, headOff, ringSize uint64) bool {
	if off >= ringSize {
		return false
	}
	if tailOff == headOff {
		return true
	}
	if tailOff < headOff {
		return off >= tailOff && off < headOff
	}
	return off >= tailOff || off < headOff
}
