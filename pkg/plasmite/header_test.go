package plasmite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func baseTestHeader() poolHeader {
	return poolHeader{
		FormatVersion: currentFormatVersion,
		Endianness:    littleEndianByte,
		FileSize:      4096 + 1024,
		IndexOffset:   poolHeaderSize,
		IndexCapacity: 0,
		RingOffset:    poolHeaderSize,
		RingSize:      1024,
	}
}

func Test_EncodeDecodePoolHeader_Roundtrips(t *testing.T) {
	t.Parallel()

	h := baseTestHeader()
	h.HeadOff = 64
	h.TailOff = 0
	h.TailNextOff = 64
	h.OldestSeq = 1
	h.NewestSeq = 3

	buf := encodePoolHeader(h)
	require.Len(t, buf, poolHeaderSize)

	got, err := decodePoolHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func Test_DecodePoolHeader_Returns_Corrupt_When_Magic_Is_Wrong(t *testing.T) {
	t.Parallel()

	buf := encodePoolHeader(baseTestHeader())
	buf[0] = 'Z'

	_, err := decodePoolHeader(buf)
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_ValidatePoolHeader_Accepts_Well_Formed_Empty_Header(t *testing.T) {
	t.Parallel()

	h := baseTestHeader()
	require.NoError(t, validatePoolHeader(h, h.FileSize))
}

func Test_ValidatePoolHeader_Returns_Usage_When_Format_Version_Unsupported(t *testing.T) {
	t.Parallel()

	h := baseTestHeader()
	h.FormatVersion = 999

	err := validatePoolHeader(h, h.FileSize)
	require.ErrorIs(t, err, ErrUsage)
}

func Test_ValidatePoolHeader_Returns_Corrupt_When_FileSize_Mismatches(t *testing.T) {
	t.Parallel()

	h := baseTestHeader()
	err := validatePoolHeader(h, h.FileSize+1)
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_ValidatePoolHeader_Returns_Corrupt_When_Offsets_Not_8Byte_Aligned(t *testing.T) {
	t.Parallel()

	h := baseTestHeader()
	h.OldestSeq = 1
	h.NewestSeq = 1
	h.HeadOff = 3
	h.TailOff = 0
	h.TailNextOff = 3

	err := validatePoolHeader(h, h.FileSize)
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_ValidatePoolHeader_Returns_Corrupt_When_Empty_Pool_Has_Mismatched_Offsets(t *testing.T) {
	t.Parallel()

	h := baseTestHeader()
	h.HeadOff = 0
	h.TailOff = 0
	h.TailNextOff = 8 // should equal head/tail when oldest_seq==0

	err := validatePoolHeader(h, h.FileSize)
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_PoolHeader_IsEmpty_And_Full(t *testing.T) {
	t.Parallel()

	h := baseTestHeader()
	require.True(t, h.isEmpty())
	require.False(t, h.full())

	h.OldestSeq, h.NewestSeq = 1, 1
	h.HeadOff, h.TailOff = 64, 64
	require.False(t, h.isEmpty())
	require.True(t, h.full())
}
