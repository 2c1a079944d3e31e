package plasmite

import "time"

// Hardcoded implementation limits.
//
// These exist to keep offset/length arithmetic safely away from overflow
// boundaries and to bound resource usage for configurations nobody fuzzes.
// A request that violates a limit is rejected as a Usage error before
// anything is written. The one limit also checked against bytes already on
// disk is maxPayloadHardCap: validateFrameHeader reports a stored
// payload_len above it as Corrupt.
const (
	// frameHeaderSize is the fixed frame header length (§6.1).
	frameHeaderSize = 64

	// commitMarkerSize is the length of the literal "PLSMCMIT" trailer.
	commitMarkerSize = 8

	// poolHeaderSize is the fixed pool header length (§6.1).
	poolHeaderSize = 4096

	// hintSlotSize is the byte size of one (seq, offset) hint table slot.
	hintSlotSize = 16

	// maxPayloadHardCap bounds payload_len regardless of ring size, per §4.1.
	maxPayloadHardCap = 256 << 20 // 256 MiB

	// maxRingSize is a safety guardrail against pathological file sizes;
	// mmap does not load the whole file into memory, but a multi-terabyte
	// mapping is outside what this engine implicitly claims to support.
	maxRingSize = uint64(1) << 40 // 1 TiB

	// maxIndexCapacity bounds the auto-sizing and explicit index_capacity
	// inputs to keep the hint table region itself well under maxRingSize.
	maxIndexCapacity = 64 << 20 // 64M slots

	// autoIndexDivisor and autoIndexCap implement the auto-sizing rule of
	// §4.4: min(file_size / 256, 65536) slots when the caller does not
	// specify index_capacity.
	autoIndexDivisor = 256
	autoIndexCap     = 65_536

	// autoIndexMinRingReserve is the minimum ring size (bytes) the
	// auto-sizing rule leaves after carving out the hint table.
	autoIndexMinRingReserve = 1 << 10 // 1 KiB
)

// supportedFormatVersions is the set of pool header format_version values
// this build can open. Anything else is Usage, not Corrupt — it is a
// recognizable file, just one this build doesn't speak.
var supportedFormatVersions = map[uint32]bool{
	1: true,
}

// currentFormatVersion is written by Create.
const currentFormatVersion = 1

// Notifier polling parameters (§4.6): a tailer that cannot wait on the
// semaphore falls back to polling with an adaptive delay.
const (
	notifyPollInitial = 1 * time.Millisecond
	notifyPollMax     = 50 * time.Millisecond
)

// validatorMaxStepsExtra bounds the full-scan walk at ring_size/64 + 1
// steps (§4.7) to guarantee termination even on a corrupted file, since
// wrap markers are never chained by construction.
const validatorMaxStepsExtra = 1
