package plasmite

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func Test_EncodeDecodeFrameHeader_Roundtrips_When_Given_Various_Inputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		h    frameHeader
	}{
		{name: "zero payload", h: newFrameHeader(frameCommitted, 1, 1000, 0)},
		{name: "typical", h: newFrameHeader(frameCommitted, 42, 123456789, 256)},
		{name: "writing state", h: newFrameHeader(frameWriting, 7, 1, 64)},
		{name: "wrap marker", h: newWrapHeader()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := encodeFrameHeader(tt.h)
			require.Len(t, buf, frameHeaderSize)

			got, err := decodeFrameHeader(buf)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.h, got); diff != "" {
				t.Errorf("decodeFrameHeader mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_DecodeFrameHeader_Returns_Corrupt_When_Magic_Is_Wrong(t *testing.T) {
	t.Parallel()

	buf := encodeFrameHeader(newFrameHeader(frameCommitted, 1, 1, 8))
	buf[0] = 'X'

	_, err := decodeFrameHeader(buf)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_DecodeFrameHeader_Returns_Corrupt_When_State_Is_Unknown(t *testing.T) {
	t.Parallel()

	buf := encodeFrameHeader(newFrameHeader(frameCommitted, 1, 1, 8))
	buf[foState] = 99

	_, err := decodeFrameHeader(buf)
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_ValidateFrameHeader_Detects_TornWrite_Via_XOR_Mismatch(t *testing.T) {
	t.Parallel()

	h := newFrameHeader(frameCommitted, 1, 1, 16)
	h.PayloadXor = 0 // corrupt the XOR guard

	err := validateFrameHeader(h, 1<<20)
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_ValidateFrameHeader_Rejects_PayloadLen_Exceeding_RingSize(t *testing.T) {
	t.Parallel()

	h := newFrameHeader(frameCommitted, 1, 1, 1<<20)
	err := validateFrameHeader(h, 1024)
	require.Error(t, err)
}

func Test_FrameLen_Aligns_To_8_Bytes_And_Includes_Header_And_Marker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		payloadLen uint64
		want       uint64
	}{
		{payloadLen: 0, want: 72},  // 64 + 0 + 8
		{payloadLen: 1, want: 80},  // align8(73) = 80
		{payloadLen: 8, want: 80},  // align8(80) = 80
		{payloadLen: 9, want: 88},  // align8(81) = 88
		{payloadLen: 100, want: 176},
	}

	for _, tt := range tests {
		got, err := frameLen(tt.payloadLen)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "payloadLen=%d", tt.payloadLen)
	}
}

func Test_Align8_Rounds_Up_To_Multiple_Of_8(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want uint64 }{
		{0, 0}, {1, 8}, {7, 8}, {8, 8}, {9, 16}, {63, 64}, {64, 64},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, align8(tt.in))
	}
}
