package plasmite

// dropStepKind distinguishes the three shapes a drop step can take (§4.3).
type dropStepKind int

const (
	// dropPadding marks a sliver of ring space (smaller than a frame
	// header) abandoned without any marker because there is no room to
	// write one; readers that reach it read it as a wrap marker (see
	// readFrameHeaderAt) and continue at offset 0.
	dropPadding dropStepKind = iota
	// dropWrap records that the tail pointer walked over a pre-existing
	// Wrap marker while the planner was freeing space.
	dropWrap
	// dropFrame records that a previously-committed frame was walked past
	// (and thus implicitly superseded) while the planner was freeing
	// space.
	dropFrame
)

// DropStep is one step the planner takes while advancing the tail to free
// enough ring space for a new frame. Drop steps are descriptive only: the
// bytes of a dropped frame are never rewritten by the drop itself, only
// physically overwritten later when a future append's payload-copy step
// reaches that offset.
type DropStep struct {
	Kind   dropStepKind
	Offset uint64
	Len    uint64 // meaningful for dropPadding and dropFrame
	Seq    uint64 // meaningful for dropFrame
}

// Plan is the pure result of planAppend: everything storage needs to apply
// one append, with no side effects baked in.
type Plan struct {
	FrameOffset uint64
	FrameLen    uint64
	WrapOffset  *uint64
	Drops       []DropStep
	Seq         uint64
	NextHeader  poolHeader
}

// planAppend is the pure planner (§4.3): given the current header and a
// read-only view of the ring bytes, decide where the next frame of
// payloadLen bytes goes, which older frames it displaces, and the fully
// updated header that should be written once the frame itself has been
// written. It never mutates header or ringBytes.
func planAppend(header poolHeader, ringBytes []byte, payloadLen uint64) (Plan, error) {
	if payloadLen > 0xFFFFFFFF {
		return Plan{}, newErr(KindUsage, "plan", "payload_len %d exceeds uint32 range", payloadLen)
	}
	maxPayload := maxPayloadFor(header.RingSize)
	if payloadLen > maxPayload {
		return Plan{}, newErr(KindUsage, "plan", "payload_len %d exceeds max %d for ring_size %d", payloadLen, maxPayload, header.RingSize)
	}

	fl, err := frameLen(payloadLen)
	if err != nil {
		return Plan{}, err
	}
	if fl > header.RingSize {
		return Plan{}, newErr(KindUsage, "plan", "frame_len %d exceeds ring_size %d", fl, header.RingSize)
	}

	remaining := header.RingSize - header.HeadOff

	// wrapRequired mirrors the original `wrap_required` flag computed once
	// from the (unchanging, during the drop loop) head offset: a wrap marker
	// will have to be written before the new frame can be placed.
	wrapRequired := remaining < fl

	requiredFor := func(oldestSeq uint64) uint64 {
		if oldestSeq == 0 {
			return fl
		}
		switch {
		case remaining >= fl:
			return fl
		case remaining >= frameHeaderSize:
			return fl + frameHeaderSize
		default:
			return fl + remaining
		}
	}

	tailOff := header.TailOff
	oldestSeq := header.OldestSeq
	var drops []DropStep

	maxSteps := header.RingSize/frameHeaderSize + validatorMaxStepsExtra
	steps := uint64(0)
	for {
		lowOnSpace := freeSpace(tailOff, header.HeadOff, header.RingSize, oldestSeq) < requiredFor(oldestSeq)
		// The second disjunct is the fix for a case `lowOnSpace` alone
		// misses: a wrap is coming (remaining < fl), but the oldest live
		// frame still sits inside [0, fl) — the bytes the wrapped frame is
		// about to occupy. When remaining >= frameHeaderSize, required is
		// fl+frameHeaderSize, and freeSpace counts the bytes between head and
		// the ring's physical end toward it even though the wrapped frame
		// cannot use them, so freeSpace can satisfy `required` while leaving
		// that frame un-dropped, and the wrap would overwrite a still-live
		// frame. Keep dropping until the tail has moved clear of the wrap
		// target.
		wrapWouldClobberTail := wrapRequired && oldestSeq != 0 && tailOff < fl
		if !lowOnSpace && !wrapWouldClobberTail {
			break
		}
		if steps > maxSteps {
			return Plan{}, newErr(KindBusy, "plan", "cannot free enough space after %d drop steps", steps)
		}
		steps++

		step, newTail, newOldest, err := planDropStep(ringBytes, header.RingSize, header.HeadOff, tailOff, oldestSeq)
		if err != nil {
			return Plan{}, err
		}
		drops = append(drops, step)
		tailOff = newTail
		oldestSeq = newOldest

		// A tail that lands on a wrap marker, or on a sliver too small for a
		// frame header, moves on to offset 0, where the live run continues,
		// so tail_off always names the oldest live frame.
		if tailOff != header.HeadOff {
			if next, err := readFrameHeaderAt(ringBytes, tailOff); err == nil && next.State == frameWrap {
				tailOff = 0
			}
		}

		if tailOff == header.HeadOff {
			// The run of live frames has been fully consumed: the pool is
			// logically empty until the new frame lands.
			oldestSeq = 0
		}
	}

	var wrapOffset *uint64
	frameOffset := header.HeadOff

	if remaining < fl {
		if remaining >= frameHeaderSize {
			wo := header.HeadOff
			wrapOffset = &wo
		}
		frameOffset = 0
	}
	if oldestSeq == 0 {
		tailOff = frameOffset
	}

	newHead := frameOffset + fl
	if newHead == header.RingSize {
		newHead = 0
	}

	seq := header.NewestSeq + 1

	finalOldestSeq := oldestSeq
	if finalOldestSeq == 0 {
		finalOldestSeq = seq
	}

	var tailOffFinal, tailNextOffFinal uint64
	if oldestSeq == 0 {
		// Pool had (or became) empty: the new frame is the only live one.
		tailOffFinal = frameOffset
		tailNextOffFinal = newHead
	} else {
		tailOffFinal = tailOff
		tailFrame, err := readFrameHeaderAt(ringBytes, tailOffFinal)
		if err != nil {
			return Plan{}, err
		}
		tailLen, err := frameLen(uint64(tailFrame.PayloadLen))
		if err != nil {
			return Plan{}, err
		}
		tailNextOffFinal = tailOffFinal + tailLen
		if tailNextOffFinal == header.RingSize {
			tailNextOffFinal = 0
		}
	}

	next := header
	next.HeadOff = newHead
	next.TailOff = tailOffFinal
	next.TailNextOff = tailNextOffFinal
	next.OldestSeq = finalOldestSeq
	next.NewestSeq = seq

	return Plan{
		FrameOffset: frameOffset,
		FrameLen:    fl,
		WrapOffset:  wrapOffset,
		Drops:       drops,
		Seq:         seq,
		NextHeader:  next,
	}, nil
}

// planDropStep computes a single step of freeing space at the current tail
// (§4.3's drop loop). Mirrors the original engine's plan_drop_step: a sliver
// at the physical end of the ring too small to hold even a frame header is
// recorded as padding and the tail jumps straight to 0, without attempting
// to decode a header from bytes that were never written as one.
func planDropStep(ringBytes []byte, ringSize, headOff, tailOff, oldestSeq uint64) (DropStep, uint64, uint64, error) {
	if oldestSeq == 0 {
		return DropStep{}, 0, 0, newErr(KindBusy, "plan", "cannot drop from an already-empty pool")
	}

	remaining := ringSize - tailOff
	if remaining < frameHeaderSize {
		newOldest := oldestSeq
		if headOff == 0 {
			newOldest = 0
		}
		return DropStep{Kind: dropPadding, Offset: tailOff, Len: remaining}, 0, newOldest, nil
	}

	fh, err := readFrameHeaderAt(ringBytes, tailOff)
	if err != nil {
		return DropStep{}, 0, 0, err
	}

	switch fh.State {
	case frameWrap:
		return DropStep{Kind: dropWrap, Offset: tailOff, Len: frameHeaderSize}, 0, oldestSeq, nil
	case frameCommitted:
		dl, err := frameLen(uint64(fh.PayloadLen))
		if err != nil {
			return DropStep{}, 0, 0, err
		}
		newTail := tailOff + dl
		if newTail == ringSize {
			newTail = 0
		}
		return DropStep{Kind: dropFrame, Offset: tailOff, Len: dl, Seq: fh.Seq}, newTail, fh.Seq + 1, nil
	default:
		return DropStep{}, 0, 0, newErr(KindCorrupt, "plan", "unexpected frame state %d at tail offset %d", fh.State, tailOff)
	}
}

// freeSpace returns the number of free bytes in the ring, i.e. the size of
// the region [head_off, tail_off) taken circularly.
func freeSpace(tailOff, headOff, ringSize, oldestSeq uint64) uint64 {
	if oldestSeq == 0 {
		return ringSize
	}
	if headOff == tailOff {
		return 0
	}
	if headOff < tailOff {
		return tailOff - headOff
	}
	return (ringSize - headOff) + tailOff
}

// readFrameHeaderAt decodes the frame header at byte offset off within
// ringBytes. An offset inside the ring with too few bytes left for a frame
// header reads as a wrap marker: nothing is ever written there, and the
// live run continues at offset 0.
func readFrameHeaderAt(ringBytes []byte, off uint64) (frameHeader, error) {
	if off < uint64(len(ringBytes)) && off+frameHeaderSize > uint64(len(ringBytes)) {
		return newWrapHeader(), nil
	}
	if off+frameHeaderSize > uint64(len(ringBytes)) {
		return frameHeader{}, newErr(KindCorrupt, "plan", "frame header at offset %d runs past ring end", off).withOffset(int64(off))
	}
	h, err := decodeFrameHeader(ringBytes[off : off+frameHeaderSize])
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.withOffset(int64(off))
		}
		return frameHeader{}, err
	}
	return h, nil
}
