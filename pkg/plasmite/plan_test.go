package plasmite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func emptyTestHeader(ringSize uint64) poolHeader {
	return poolHeader{RingSize: ringSize}
}

func Test_PlanAppend_Places_First_Frame_At_Offset_Zero_In_Empty_Pool(t *testing.T) {
	t.Parallel()

	header := emptyTestHeader(256)
	ring := make([]byte, 256)

	plan, err := planAppend(header, ring, 8)
	require.NoError(t, err)

	require.Equal(t, uint64(0), plan.FrameOffset)
	require.Equal(t, uint64(80), plan.FrameLen) // align8(64+8+8)
	require.Nil(t, plan.WrapOffset)
	require.Empty(t, plan.Drops)
	require.Equal(t, uint64(1), plan.Seq)

	require.Equal(t, uint64(80), plan.NextHeader.HeadOff)
	require.Equal(t, uint64(0), plan.NextHeader.TailOff)
	require.Equal(t, uint64(80), plan.NextHeader.TailNextOff)
	require.Equal(t, uint64(1), plan.NextHeader.OldestSeq)
	require.Equal(t, uint64(1), plan.NextHeader.NewestSeq)
}

func Test_PlanAppend_Emits_Wrap_Marker_When_Remaining_Too_Small_But_Room_For_Marker(t *testing.T) {
	t.Parallel()

	header := emptyTestHeader(200)
	header.HeadOff = 120 // remaining = 80: >= frameHeaderSize(64), < frame_len(112)
	ring := make([]byte, 200)

	plan, err := planAppend(header, ring, 40) // frame_len = align8(64+40+8) = 112
	require.NoError(t, err)

	require.NotNil(t, plan.WrapOffset)
	require.Equal(t, uint64(120), *plan.WrapOffset)
	require.Equal(t, uint64(0), plan.FrameOffset)
	require.Equal(t, uint64(112), plan.NextHeader.HeadOff)
}

func Test_PlanAppend_Skips_Padding_At_Physical_End_When_Remaining_Too_Small_For_Wrap_Marker(t *testing.T) {
	t.Parallel()

	header := emptyTestHeader(256)
	header.HeadOff = 220 // remaining = 36: < frameHeaderSize(64), no room even for a wrap marker
	ring := make([]byte, 256)

	plan, err := planAppend(header, ring, 8) // frame_len = 80
	require.NoError(t, err)

	// The pool is empty (oldest_seq == 0), so there is no live frame to free
	// space from: the drop loop never runs, and this tail sliver is simply
	// skipped at placement time without a DropStep. A DropStep only records
	// bytes reclaimed from a previously-committed frame or wrap marker.
	require.Nil(t, plan.WrapOffset)
	require.Equal(t, uint64(0), plan.FrameOffset)
	require.Empty(t, plan.Drops)
}

func Test_PlanDropStep_Records_Padding_When_Remaining_Before_Ring_End_Is_Too_Small_For_A_Header(t *testing.T) {
	t.Parallel()

	ring := make([]byte, 256)

	step, newTail, newOldest, err := planDropStep(ring, 256, 10, 230, 1) // remaining = 26 < frameHeaderSize(64)
	require.NoError(t, err)

	require.Equal(t, dropPadding, step.Kind)
	require.Equal(t, uint64(230), step.Offset)
	require.Equal(t, uint64(26), step.Len)
	require.Equal(t, uint64(0), newTail)
	require.Equal(t, uint64(1), newOldest) // head_off != 0: oldest_seq survives until tail catches head
}

func Test_PlanDropStep_Padding_Clears_OldestSeq_When_Head_Is_At_The_Physical_Start(t *testing.T) {
	t.Parallel()

	ring := make([]byte, 256)

	// head_off == 0 means the padding skip to offset 0 lands exactly on
	// head: the run of live frames is now fully consumed.
	_, newTail, newOldest, err := planDropStep(ring, 256, 0, 230, 1)
	require.NoError(t, err)

	require.Equal(t, uint64(0), newTail)
	require.Equal(t, uint64(0), newOldest)
}

func Test_PlanAppend_Drops_Oldest_Frame_To_Clear_The_Wrap_Target_Even_Though_FreeSpace_Already_Suffices(t *testing.T) {
	t.Parallel()

	// This is the scenario the planner previously mishandled: remaining
	// space before the ring's physical end (128) is large enough that
	// freeSpace alone already satisfies `required`, but the oldest live
	// frame still sits inside [0, frame_len) - exactly where the wrapped
	// frame is about to land. The planner must drop it before wrapping,
	// not just check freeSpace.
	ring := make([]byte, 600)
	oldest := newFrameHeader(frameCommitted, 1, 1000, 56)  // frame_len = align8(64+56+8) = 128, occupies [144, 272)
	newer := newFrameHeader(frameCommitted, 2, 1001, 128)  // frame_len = align8(64+128+8) = 200, occupies [272, 472)
	copy(ring[144:144+frameHeaderSize], encodeFrameHeader(oldest))
	copy(ring[272:272+frameHeaderSize], encodeFrameHeader(newer))

	header := emptyTestHeader(600)
	header.TailOff = 144
	header.HeadOff = 472 // remaining = 128: in [frameHeaderSize, frame_len)
	header.TailNextOff = 272
	header.OldestSeq = 1
	header.NewestSeq = 2

	plan, err := planAppend(header, ring, 128) // frame_len = align8(64+128+8) = 200
	require.NoError(t, err)

	require.Len(t, plan.Drops, 1, "the oldest frame at [144, 272) must be dropped before wrapping into it")
	require.Equal(t, dropFrame, plan.Drops[0].Kind)
	require.Equal(t, uint64(144), plan.Drops[0].Offset)
	require.Equal(t, uint64(1), plan.Drops[0].Seq)

	require.NotNil(t, plan.WrapOffset)
	require.Equal(t, uint64(472), *plan.WrapOffset)
	require.Equal(t, uint64(0), plan.FrameOffset)

	// The new frame occupies [0, 200): it must not overlap the still-live
	// seq-2 frame, which now starts at the new tail, [272, 472).
	require.Equal(t, uint64(272), plan.NextHeader.TailOff)
	require.Equal(t, uint64(2), plan.NextHeader.OldestSeq)
	require.Equal(t, uint64(3), plan.NextHeader.NewestSeq)
	require.Equal(t, uint64(200), plan.NextHeader.HeadOff)
}

func Test_PlanAppend_Drops_Oldest_Frame_When_Ring_Does_Not_Have_Enough_Free_Space(t *testing.T) {
	t.Parallel()

	ring := make([]byte, 256)
	// A committed frame occupying [0, 80): header(64) + payload(8) + marker(8).
	existing := newFrameHeader(frameCommitted, 1, 1000, 8)
	copy(ring[0:frameHeaderSize], encodeFrameHeader(existing))

	header := emptyTestHeader(256)
	header.TailOff = 0
	header.HeadOff = 80
	header.TailNextOff = 80
	header.OldestSeq = 1
	header.NewestSeq = 1

	plan, err := planAppend(header, ring, 112) // frame_len = align8(64+112+8) = 184
	require.NoError(t, err)

	require.Len(t, plan.Drops, 1)
	require.Equal(t, dropFrame, plan.Drops[0].Kind)
	require.Equal(t, uint64(0), plan.Drops[0].Offset)
	require.Equal(t, uint64(80), plan.Drops[0].Len)
	require.Equal(t, uint64(1), plan.Drops[0].Seq)

	// remaining (176) < frame_len (184), so the new frame wraps to offset 0.
	require.NotNil(t, plan.WrapOffset)
	require.Equal(t, uint64(80), *plan.WrapOffset)
	require.Equal(t, uint64(0), plan.FrameOffset)

	require.Equal(t, uint64(184), plan.NextHeader.HeadOff)
	require.Equal(t, uint64(0), plan.NextHeader.TailOff)
	require.Equal(t, uint64(184), plan.NextHeader.TailNextOff)
	require.Equal(t, uint64(2), plan.NextHeader.OldestSeq)
	require.Equal(t, uint64(2), plan.NextHeader.NewestSeq)
}

func Test_PlanAppend_Rejects_Payload_Exceeding_Ring_Capacity(t *testing.T) {
	t.Parallel()

	header := emptyTestHeader(128)
	ring := make([]byte, 128)

	_, err := planAppend(header, ring, 1<<30)
	require.ErrorIs(t, err, ErrUsage)
}

func Test_FreeSpace_Returns_Full_Ring_When_Pool_Is_Empty(t *testing.T) {
	t.Parallel()
	require.Equal(t, uint64(256), freeSpace(0, 0, 256, 0))
}

func Test_FreeSpace_Returns_Zero_When_Head_Equals_Tail_And_Nonempty(t *testing.T) {
	t.Parallel()
	require.Equal(t, uint64(0), freeSpace(80, 80, 256, 1))
}

func Test_FreeSpace_Handles_NonWrapped_And_Wrapped_Live_Regions(t *testing.T) {
	t.Parallel()

	// Live region [tail, head) does not wrap: head(200) > tail(50).
	require.Equal(t, uint64(106), freeSpace(50, 200, 256, 1))

	// Live region wraps: head(50) < tail(200).
	require.Equal(t, uint64(150), freeSpace(200, 50, 256, 1))
}
