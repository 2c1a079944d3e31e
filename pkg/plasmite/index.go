package plasmite

import "encoding/binary"

// The seq→offset hint table (§3.1) is an array of index_capacity 16-byte
// slots immediately following the pool header. Slot i holds
// (seq uint64 LE, ring_relative_offset uint64 LE). The slot for sequence s
// is s mod index_capacity. Slots are advisory: writers overwrite on
// collision, readers must verify the pointed-to frame still carries seq
// before trusting the offset.

// hintSlotOffset returns the byte offset of slot i within the index
// region.
func hintSlotOffset(i uint64) uint64 {
	return i * hintSlotSize
}

// hintIndex returns the slot index for sequence seq given capacity.
func hintIndex(seq uint64, capacity uint32) uint64 {
	return seq % uint64(capacity)
}

// hintRead reads slot i from the index region.
func hintRead(indexBytes []byte, i uint64) (seq, ringOffset uint64) {
	off := hintSlotOffset(i)
	seq = binary.LittleEndian.Uint64(indexBytes[off:])
	ringOffset = binary.LittleEndian.Uint64(indexBytes[off+8:])
	return seq, ringOffset
}

// hintWrite writes slot i in the index region.
func hintWrite(indexBytes []byte, i, seq, ringOffset uint64) {
	off := hintSlotOffset(i)
	binary.LittleEndian.PutUint64(indexBytes[off:], seq)
	binary.LittleEndian.PutUint64(indexBytes[off+8:], ringOffset)
}

// hintLookup probes the slot for seq and returns its stored ring-relative
// offset if the slot currently claims that exact sequence.
func hintLookup(indexBytes []byte, capacity uint32, seq uint64) (ringOffset uint64, found bool) {
	if capacity == 0 {
		return 0, false
	}
	i := hintIndex(seq, capacity)
	storedSeq, off := hintRead(indexBytes, i)
	if storedSeq != seq {
		return 0, false
	}
	return off, true
}

// hintStore records the observed (seq, ringOffset) pair, unconditionally
// overwriting whatever was in that slot before (§3.1: "writers overwrite on
// collision").
func hintStore(indexBytes []byte, capacity uint32, seq, ringOffset uint64) {
	if capacity == 0 {
		return
	}
	i := hintIndex(seq, capacity)
	hintWrite(indexBytes, i, seq, ringOffset)
}

// hintSampleIndices returns up to three representative slot indices (first,
// middle, last) for the validator's staleness spot-check (§4.7).
func hintSampleIndices(capacity uint32) []uint64 {
	if capacity == 0 {
		return nil
	}
	n := uint64(capacity)
	idx := []uint64{0}
	if n > 1 {
		idx = append(idx, n/2)
		idx = append(idx, n-1)
	}
	// Dedup in case capacity is small (e.g. capacity==2 -> {0,1,1}).
	out := idx[:0:0]
	seen := map[uint64]bool{}
	for _, v := range idx {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
