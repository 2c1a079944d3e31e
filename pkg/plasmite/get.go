package plasmite

// Get returns the message with the given sequence number (§4.4 "Get by
// sequence"). It consults the hint table before falling back to a forward
// walk of the ring.
func (p *Pool) Get(seq uint64) (Message, error) {
	return p.getSeq(seq, nil)
}

// GetWithCache is like Get but consults cache before the hint table, and
// populates cache with the observed offset on a successful walk-based
// lookup (and on a successful hint-table lookup), so repeated lookups of
// the same sequence skip both the hint table and the walk.
func (p *Pool) GetWithCache(seq uint64, cache *SeqCache) (Message, error) {
	return p.getSeq(seq, cache)
}

func (p *Pool) getSeq(seq uint64, cache *SeqCache) (Message, error) {
	header, err := p.header()
	if err != nil {
		return Message{}, err
	}
	if header.isEmpty() || seq < header.OldestSeq || seq > header.NewestSeq {
		return Message{}, newErr(KindNotFound, "get", "seq %d not found", seq).withSeq(seq).withPath(p.path)
	}

	ring := p.ringBytes(header)

	if cache != nil {
		if off, ok := cache.Get(seq); ok {
			if msg, ok := tryReadFrameAt(ring, off, seq, header.RingSize); ok {
				return msg, nil
			}
		}
	}

	if header.IndexCapacity > 0 {
		idx := p.indexBytes(header)
		if off, ok := hintLookup(idx, header.IndexCapacity, seq); ok {
			if msg, ok := tryReadFrameAt(ring, off, seq, header.RingSize); ok {
				if cache != nil {
					cache.Put(seq, off)
				}
				return msg, nil
			}
		}
	}

	msg, off, err := p.walkForSeq(seq)
	if err != nil {
		if e, ok := err.(*Error); ok {
			return Message{}, e.withPath(p.path)
		}
		return Message{}, err
	}
	if cache != nil {
		cache.Put(seq, off)
	}
	return msg, nil
}

// tryReadFrameAt attempts to read a committed frame for seq at ring-relative
// offset off, returning ok=false on any structural mismatch (stale hint or
// cache entry) rather than propagating an error - the caller falls back to
// the authoritative walk.
func tryReadFrameAt(ring []byte, off, seq, ringSize uint64) (Message, bool) {
	if off >= ringSize || off+frameHeaderSize > uint64(len(ring)) {
		return Message{}, false
	}
	fh, err := decodeFrameHeader(ring[off : off+frameHeaderSize])
	if err != nil {
		return Message{}, false
	}
	if fh.State != frameCommitted || fh.Seq != seq {
		return Message{}, false
	}
	if err := validateFrameHeader(fh, ringSize); err != nil {
		return Message{}, false
	}

	payloadStart := off + frameHeaderSize
	payloadEnd := payloadStart + uint64(fh.PayloadLen)
	markerEnd := payloadEnd + commitMarkerSize
	if markerEnd > uint64(len(ring)) || string(ring[payloadEnd:markerEnd]) != commitMarker {
		return Message{}, false
	}

	// Copied rather than sliced directly out of the mmap, same tradeoff as
	// Cursor.Next: the returned Payload stays valid even if the writer later
	// recycles this frame.
	payload := make([]byte, fh.PayloadLen)
	copy(payload, ring[payloadStart:payloadEnd])

	return Message{Seq: fh.Seq, TimestampNs: fh.TimestampNs, Flags: fh.Flags, Payload: payload}, true
}

// walkForSeq walks the ring forward from tail_off looking for seq,
// restarting from a freshly-read header whenever it detects an in-flight
// overwrite (the same signal Cursor calls FellBehind).
func (p *Pool) walkForSeq(seq uint64) (Message, uint64, error) {
	const maxRestarts = 10

	for attempt := 0; attempt < maxRestarts; attempt++ {
		header, err := p.header()
		if err != nil {
			return Message{}, 0, err
		}
		if header.isEmpty() || seq < header.OldestSeq || seq > header.NewestSeq {
			return Message{}, 0, newErr(KindNotFound, "get", "seq %d not found", seq).withSeq(seq)
		}

		ring := p.ringBytes(header)
		off := header.TailOff
		maxSteps := header.RingSize/frameHeaderSize + validatorMaxStepsExtra

		fellBehind := false
		for step := uint64(0); step <= maxSteps; step++ {
			fh, err := readFrameHeaderAt(ring, off)
			if err != nil {
				return Message{}, 0, err
			}

			if fh.State == frameWrap {
				off = 0
				continue
			}
			if fh.State != frameCommitted {
				fellBehind = true
				break
			}
			if err := validateFrameHeader(fh, header.RingSize); err != nil {
				fellBehind = true
				break
			}

			payloadStart := off + frameHeaderSize
			payloadEnd := payloadStart + uint64(fh.PayloadLen)
			markerEnd := payloadEnd + commitMarkerSize
			if markerEnd > uint64(len(ring)) || string(ring[payloadEnd:markerEnd]) != commitMarker {
				fellBehind = true
				break
			}

			if fh.Seq == seq {
				payload := make([]byte, fh.PayloadLen)
				copy(payload, ring[payloadStart:payloadEnd])
				msg := Message{Seq: fh.Seq, TimestampNs: fh.TimestampNs, Flags: fh.Flags, Payload: payload}
				return msg, off, nil
			}
			if fh.Seq > seq {
				return Message{}, 0, newErr(KindNotFound, "get", "seq %d not found", seq).withSeq(seq)
			}

			fl, err := frameLen(uint64(fh.PayloadLen))
			if err != nil {
				return Message{}, 0, err
			}
			off += fl
			if off == header.RingSize {
				off = 0
			}
			if off == header.HeadOff {
				break
			}
		}

		if !fellBehind {
			return Message{}, 0, newErr(KindNotFound, "get", "seq %d not found", seq).withSeq(seq)
		}
		// Retry with a freshly re-read header.
	}

	return Message{}, 0, newErr(KindBusy, "get", "too many retries locating seq %d", seq).withSeq(seq)
}
