package plasmite

import (
	"encoding/binary"
)

// Frame states (§4.9). Wrap is a distinct terminal value written only by
// the planner as a skip marker; it never transitions.
const (
	frameEmpty     uint32 = 0
	frameWriting   uint32 = 1
	frameCommitted uint32 = 2
	frameWrap      uint32 = 3
)

const frameMagic = "FRM1"

// commitMarker is written immediately after a frame's payload, before the
// header is flipped to Committed (§4.4 step d/e). A reader observing
// Committed without this marker is seeing a partially-scribbled overwrite.
const commitMarker = "PLSMCMIT"

// Frame header field offsets, relative to the frame start.
const (
	foMagic          = 0x00 // [4]byte
	foState          = 0x04 // uint32
	foFlags          = 0x08 // uint32
	foHeaderLen      = 0x0C // uint32
	foSeq            = 0x10 // uint64
	foTimestampNs    = 0x18 // uint64
	foPayloadLen     = 0x20 // uint32
	foPayloadLenXor  = 0x24 // uint32
	foCRC32C         = 0x28 // uint32
	foReservedStart  = 0x2C // 20 bytes, through 0x3F
)

// frameHeader is the decoded form of a frame's 64-byte header (§6.1).
type frameHeader struct {
	Magic       [4]byte
	State       uint32
	Flags       uint32
	HeaderLen   uint32
	Seq         uint64
	TimestampNs uint64
	PayloadLen  uint32
	PayloadXor  uint32
	CRC32C      uint32
}

// encodeFrameHeader serializes h into a fresh frameHeaderSize buffer.
func encodeFrameHeader(h frameHeader) []byte {
	buf := make([]byte, frameHeaderSize)
	copy(buf[foMagic:], frameMagic)
	binary.LittleEndian.PutUint32(buf[foState:], h.State)
	binary.LittleEndian.PutUint32(buf[foFlags:], h.Flags)
	binary.LittleEndian.PutUint32(buf[foHeaderLen:], h.HeaderLen)
	binary.LittleEndian.PutUint64(buf[foSeq:], h.Seq)
	binary.LittleEndian.PutUint64(buf[foTimestampNs:], h.TimestampNs)
	binary.LittleEndian.PutUint32(buf[foPayloadLen:], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[foPayloadLenXor:], h.PayloadXor)
	binary.LittleEndian.PutUint32(buf[foCRC32C:], h.CRC32C)
	// Reserved bytes 0x2C..0x3F stay zero.
	return buf
}

// decodeFrameHeader reads a frameHeaderSize-byte buffer into a frameHeader.
// It only checks the magic and that state is one of the four known values;
// field-level consistency is the job of validateFrameHeader.
func decodeFrameHeader(buf []byte) (frameHeader, error) {
	if len(buf) < frameHeaderSize {
		return frameHeader{}, newErr(KindCorrupt, "decodeFrame", "short frame header: %d bytes", len(buf))
	}

	var h frameHeader
	copy(h.Magic[:], buf[foMagic:foMagic+4])
	if string(h.Magic[:]) != frameMagic {
		return frameHeader{}, newErr(KindCorrupt, "decodeFrame", "bad frame magic %q", h.Magic[:])
	}

	h.State = binary.LittleEndian.Uint32(buf[foState:])
	if h.State > frameWrap {
		return frameHeader{}, newErr(KindCorrupt, "decodeFrame", "invalid frame state %d", h.State)
	}

	h.Flags = binary.LittleEndian.Uint32(buf[foFlags:])
	h.HeaderLen = binary.LittleEndian.Uint32(buf[foHeaderLen:])
	h.Seq = binary.LittleEndian.Uint64(buf[foSeq:])
	h.TimestampNs = binary.LittleEndian.Uint64(buf[foTimestampNs:])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[foPayloadLen:])
	h.PayloadXor = binary.LittleEndian.Uint32(buf[foPayloadLenXor:])
	h.CRC32C = binary.LittleEndian.Uint32(buf[foCRC32C:])

	return h, nil
}

// validateFrameHeader checks header_len, the payload-length XOR torn-write
// detector, and that payload_len fits the ring (§4.1).
func validateFrameHeader(h frameHeader, ringSize uint64) error {
	if h.HeaderLen != frameHeaderSize {
		return newErr(KindCorrupt, "validateFrame", "header_len=%d, want %d", h.HeaderLen, frameHeaderSize)
	}
	if h.PayloadLen^h.PayloadXor != 0xFFFFFFFF {
		return newErr(KindCorrupt, "validateFrame", "payload_len/xor mismatch: %d/%d", h.PayloadLen, h.PayloadXor)
	}

	max := maxPayloadFor(ringSize)
	if uint64(h.PayloadLen) > max {
		return newErr(KindCorrupt, "validateFrame", "payload_len %d exceeds max %d", h.PayloadLen, max)
	}
	return nil
}

// maxPayloadFor returns the largest payload_len a ring of the given size
// could ever hold: min(ring_size - header - commit marker, hard cap).
func maxPayloadFor(ringSize uint64) uint64 {
	if ringSize < frameHeaderSize+commitMarkerSize {
		return 0
	}
	room := ringSize - frameHeaderSize - commitMarkerSize
	if room > maxPayloadHardCap {
		return maxPayloadHardCap
	}
	return room
}

// align8 rounds x up to the next multiple of 8.
func align8(x uint64) uint64 {
	return (x + 7) &^ 7
}

// frameLen computes the total on-disk length of a frame carrying
// payloadLen bytes of payload: header + payload + commit marker, rounded
// up to an 8-byte boundary. Returns Corrupt on overflow.
func frameLen(payloadLen uint64) (uint64, error) {
	const maxBeforeAlign = ^uint64(0) - 7
	raw := uint64(frameHeaderSize) + payloadLen + uint64(commitMarkerSize)
	if raw > maxBeforeAlign || raw < uint64(frameHeaderSize) {
		return 0, newErr(KindCorrupt, "frameLen", "frame length overflow for payload_len=%d", payloadLen)
	}
	return align8(raw), nil
}

func newFrameHeader(state uint32, seq, timestampNs uint64, payloadLen uint32) frameHeader {
	return frameHeader{
		Magic:       [4]byte{'F', 'R', 'M', '1'},
		State:       state,
		Flags:       0,
		HeaderLen:   frameHeaderSize,
		Seq:         seq,
		TimestampNs: timestampNs,
		PayloadLen:  payloadLen,
		PayloadXor:  payloadLen ^ 0xFFFFFFFF,
		CRC32C:      0,
	}
}

func newWrapHeader() frameHeader {
	return frameHeader{
		Magic:     [4]byte{'F', 'R', 'M', '1'},
		State:     frameWrap,
		HeaderLen: frameHeaderSize,
	}
}
