package plasmite

import "encoding/binary"

const poolMagic = "PLSM"

const littleEndianByte = 1

// Pool header field offsets (§6.1). All multi-byte integers are
// little-endian.
const (
	hoMagic         = 0x00 // [4]byte
	hoFormatVersion = 0x04 // uint32
	hoEndianness    = 0x08 // byte
	hoFileSize      = 0x10 // uint64
	hoIndexOffset   = 0x18 // uint64
	hoIndexCapacity = 0x20 // uint32
	hoRingOffset    = 0x28 // uint64
	hoRingSize      = 0x30 // uint64
	hoFlags         = 0x38 // uint64
	hoHeadOff       = 0x40 // uint64
	hoTailOff       = 0x48 // uint64
	hoTailNextOff   = 0x50 // uint64
	hoOldestSeq     = 0x58 // uint64
	hoNewestSeq     = 0x60 // uint64
)

// poolHeader is the decoded form of the fixed 4096-byte pool header.
type poolHeader struct {
	FormatVersion uint32
	Endianness    byte
	FileSize      uint64
	IndexOffset   uint64
	IndexCapacity uint32
	RingOffset    uint64
	RingSize      uint64
	Flags         uint64
	HeadOff       uint64
	TailOff       uint64
	TailNextOff   uint64
	OldestSeq     uint64
	NewestSeq     uint64
}

// encodePoolHeader serializes h into a fresh poolHeaderSize buffer.
func encodePoolHeader(h poolHeader) []byte {
	buf := make([]byte, poolHeaderSize)
	copy(buf[hoMagic:], poolMagic)
	binary.LittleEndian.PutUint32(buf[hoFormatVersion:], h.FormatVersion)
	buf[hoEndianness] = h.Endianness
	binary.LittleEndian.PutUint64(buf[hoFileSize:], h.FileSize)
	binary.LittleEndian.PutUint64(buf[hoIndexOffset:], h.IndexOffset)
	binary.LittleEndian.PutUint32(buf[hoIndexCapacity:], h.IndexCapacity)
	binary.LittleEndian.PutUint64(buf[hoRingOffset:], h.RingOffset)
	binary.LittleEndian.PutUint64(buf[hoRingSize:], h.RingSize)
	binary.LittleEndian.PutUint64(buf[hoFlags:], h.Flags)
	binary.LittleEndian.PutUint64(buf[hoHeadOff:], h.HeadOff)
	binary.LittleEndian.PutUint64(buf[hoTailOff:], h.TailOff)
	binary.LittleEndian.PutUint64(buf[hoTailNextOff:], h.TailNextOff)
	binary.LittleEndian.PutUint64(buf[hoOldestSeq:], h.OldestSeq)
	binary.LittleEndian.PutUint64(buf[hoNewestSeq:], h.NewestSeq)
	// Remaining reserved bytes stay zero.
	return buf
}

// decodePoolHeader reads the first poolHeaderSize bytes of buf. It checks
// only magic; callers must call validatePoolHeader separately (mirroring
// the decode/validate split of the frame codec).
func decodePoolHeader(buf []byte) (poolHeader, error) {
	if len(buf) < poolHeaderSize {
		return poolHeader{}, newErr(KindCorrupt, "decodeHeader", "short pool header: %d bytes", len(buf))
	}
	if string(buf[hoMagic:hoMagic+4]) != poolMagic {
		return poolHeader{}, newErr(KindCorrupt, "decodeHeader", "bad pool magic %q", buf[hoMagic:hoMagic+4])
	}

	var h poolHeader
	h.FormatVersion = binary.LittleEndian.Uint32(buf[hoFormatVersion:])
	h.Endianness = buf[hoEndianness]
	h.FileSize = binary.LittleEndian.Uint64(buf[hoFileSize:])
	h.IndexOffset = binary.LittleEndian.Uint64(buf[hoIndexOffset:])
	h.IndexCapacity = binary.LittleEndian.Uint32(buf[hoIndexCapacity:])
	h.RingOffset = binary.LittleEndian.Uint64(buf[hoRingOffset:])
	h.RingSize = binary.LittleEndian.Uint64(buf[hoRingSize:])
	h.Flags = binary.LittleEndian.Uint64(buf[hoFlags:])
	h.HeadOff = binary.LittleEndian.Uint64(buf[hoHeadOff:])
	h.TailOff = binary.LittleEndian.Uint64(buf[hoTailOff:])
	h.TailNextOff = binary.LittleEndian.Uint64(buf[hoTailNextOff:])
	h.OldestSeq = binary.LittleEndian.Uint64(buf[hoOldestSeq:])
	h.NewestSeq = binary.LittleEndian.Uint64(buf[hoNewestSeq:])

	return h, nil
}

// validatePoolHeader enforces §3.2 invariants #1-#3 plus the format
// version and endianness gates. An unsupported format_version is Usage
// ("old pool, needs migration"), not Corrupt; everything else structurally
// wrong about the header is Corrupt.
func validatePoolHeader(h poolHeader, actualFileSize uint64) error {
	if h.Endianness != littleEndianByte {
		return newErr(KindCorrupt, "validateHeader", "unsupported endianness byte %d", h.Endianness)
	}
	if !supportedFormatVersions[h.FormatVersion] {
		return newErr(KindUsage, "validateHeader", "unsupported format_version %d; this build speaks %v", h.FormatVersion, supportedVersionList())
	}
	if h.FileSize != actualFileSize {
		return newErr(KindCorrupt, "validateHeader", "file_size=%d does not match actual length %d", h.FileSize, actualFileSize)
	}

	// Invariant 1: ring_offset = header_size + index_capacity*16; ring_offset + ring_size = file_size.
	wantRingOffset := uint64(poolHeaderSize) + uint64(h.IndexCapacity)*hintSlotSize
	if h.IndexOffset != poolHeaderSize {
		return newErr(KindCorrupt, "validateHeader", "index_offset=%d, want %d", h.IndexOffset, poolHeaderSize)
	}
	if h.RingOffset != wantRingOffset {
		return newErr(KindCorrupt, "validateHeader", "ring_offset=%d, want %d", h.RingOffset, wantRingOffset)
	}
	if h.RingOffset+h.RingSize != h.FileSize {
		return newErr(KindCorrupt, "validateHeader", "ring_offset+ring_size=%d != file_size=%d", h.RingOffset+h.RingSize, h.FileSize)
	}
	if h.RingSize == 0 {
		return newErr(KindCorrupt, "validateHeader", "ring_size is zero")
	}

	// Invariant 2: all three offsets are multiples of 8 and strictly less than ring_size.
	for name, off := range map[string]uint64{"head_off": h.HeadOff, "tail_off": h.TailOff, "tail_next_off": h.TailNextOff} {
		if off%8 != 0 {
			return newErr(KindCorrupt, "validateHeader", "%s=%d is not 8-byte aligned", name, off)
		}
		if off >= h.RingSize {
			return newErr(KindCorrupt, "validateHeader", "%s=%d is out of bounds (ring_size=%d)", name, off, h.RingSize)
		}
	}

	// Invariant 3: empty pool has all three offsets equal.
	if h.OldestSeq == 0 {
		if h.HeadOff != h.TailOff || h.TailOff != h.TailNextOff {
			return newErr(KindCorrupt, "validateHeader", "empty pool has mismatched offsets head=%d tail=%d tail_next=%d", h.HeadOff, h.TailOff, h.TailNextOff)
		}
	} else if h.OldestSeq > h.NewestSeq {
		return newErr(KindCorrupt, "validateHeader", "oldest_seq=%d > newest_seq=%d", h.OldestSeq, h.NewestSeq)
	}

	return nil
}

func supportedVersionList() []uint32 {
	out := make([]uint32, 0, len(supportedFormatVersions))
	for v := range supportedFormatVersions {
		out = append(out, v)
	}
	return out
}

// isEmpty reports whether the pool header describes an empty pool (§3.1).
func (h poolHeader) isEmpty() bool {
	return h.OldestSeq == 0
}

// full reports whether the ring has no free space left (§3.1: head==tail
// while non-empty).
func (h poolHeader) full() bool {
	return !h.isEmpty() && h.HeadOff == h.TailOff
}
