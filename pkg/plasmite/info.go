package plasmite

// PoolInfo is the read-only snapshot of pool metrics returned by Info
// (§6.2, expanded by the SPEC_FULL metrics supplement).
type PoolInfo struct {
	FileSize      uint64
	RingSize      uint64
	UsedBytes     uint64
	UsedPct       float64
	IndexCapacity uint32

	IsEmpty   bool
	OldestSeq uint64
	NewestSeq uint64
	LiveCount uint64

	// OldestAgeNs and NewestAgeNs are the age, in nanoseconds relative to
	// now, of the oldest and newest live frames. Both are zero when the
	// pool is empty.
	OldestAgeNs uint64
	NewestAgeNs uint64
}

// Info reports current pool metrics without performing a full scan.
func (p *Pool) Info() (PoolInfo, error) {
	header, err := p.header()
	if err != nil {
		return PoolInfo{}, err
	}

	info := PoolInfo{
		FileSize:      header.FileSize,
		RingSize:      header.RingSize,
		IndexCapacity: header.IndexCapacity,
		IsEmpty:       header.isEmpty(),
	}

	used := usedBytes(header)
	info.UsedBytes = used
	if header.RingSize > 0 {
		info.UsedPct = 100 * float64(used) / float64(header.RingSize)
	}

	if info.IsEmpty {
		return info, nil
	}

	info.OldestSeq = header.OldestSeq
	info.NewestSeq = header.NewestSeq
	info.LiveCount = header.NewestSeq - header.OldestSeq + 1

	ring := p.ringBytes(header)
	now := nowNs()

	if fh, err := readFrameHeaderAt(ring, header.TailOff); err == nil && fh.State == frameCommitted {
		info.OldestAgeNs = ageOf(now, fh.TimestampNs)
	}

	if msg, ok := p.tryGetNewest(header, ring); ok {
		info.NewestAgeNs = ageOf(now, msg.TimestampNs)
	}

	return info, nil
}

func ageOf(now, stamp uint64) uint64 {
	if stamp >= now {
		return 0
	}
	return now - stamp
}

// usedBytes is ring_size minus the currently-free span (§9's occupancy
// definition): the bytes between tail and head, wrapping as needed.
func usedBytes(h poolHeader) uint64 {
	free := freeSpace(h.TailOff, h.HeadOff, h.RingSize, h.OldestSeq)
	return h.RingSize - free
}

// tryGetNewest locates the most recently committed frame. This format has
// no backward links, so there is no O(1) path to it in general; a single-
// frame pool has it at tail_off, and a populated hint table gets it
// directly, otherwise Info simply omits NewestAgeNs rather than paying for
// a full forward walk on every call.
func (p *Pool) tryGetNewest(h poolHeader, ring []byte) (Message, bool) {
	if h.OldestSeq == h.NewestSeq {
		if msg, ok := tryReadFrameAt(ring, h.TailOff, h.NewestSeq, h.RingSize); ok {
			return msg, true
		}
	}
	if h.IndexCapacity > 0 {
		idx := p.indexBytes(h)
		if off, ok := hintLookup(idx, h.IndexCapacity, h.NewestSeq); ok {
			if msg, ok := tryReadFrameAt(ring, off, h.NewestSeq, h.RingSize); ok {
				return msg, true
			}
		}
	}
	return Message{}, false
}
