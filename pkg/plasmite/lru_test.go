package plasmite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_SeqCache_Get_Returns_Found_False_When_Absent(t *testing.T) {
	t.Parallel()

	c := NewSeqCache(2)
	_, found := c.Get(1)
	require.False(t, found)
}

func Test_SeqCache_Put_Then_Get_Roundtrips(t *testing.T) {
	t.Parallel()

	c := NewSeqCache(2)
	c.Put(1, 100)

	off, found := c.Get(1)
	require.True(t, found)
	require.Equal(t, uint64(100), off)
}

func Test_SeqCache_Evicts_Least_Recently_Used_Entry_When_Over_Capacity(t *testing.T) {
	t.Parallel()

	c := NewSeqCache(2)
	c.Put(1, 10)
	c.Put(2, 20)
	c.Put(3, 30) // evicts seq 1 (least recently used)

	_, found := c.Get(1)
	require.False(t, found)

	off, found := c.Get(2)
	require.True(t, found)
	require.Equal(t, uint64(20), off)

	off, found = c.Get(3)
	require.True(t, found)
	require.Equal(t, uint64(30), off)

	require.Equal(t, 2, c.Len())
}

func Test_SeqCache_Get_Refreshes_Recency_And_Protects_From_Eviction(t *testing.T) {
	t.Parallel()

	c := NewSeqCache(2)
	c.Put(1, 10)
	c.Put(2, 20)

	_, _ = c.Get(1) // touch 1, making 2 the least recently used

	c.Put(3, 30) // should evict 2, not 1

	_, found := c.Get(2)
	require.False(t, found)

	off, found := c.Get(1)
	require.True(t, found)
	require.Equal(t, uint64(10), off)
}

func Test_SeqCache_Put_Updates_Existing_Entry_In_Place(t *testing.T) {
	t.Parallel()

	c := NewSeqCache(2)
	c.Put(1, 10)
	c.Put(1, 99)

	off, found := c.Get(1)
	require.True(t, found)
	require.Equal(t, uint64(99), off)
	require.Equal(t, 1, c.Len())
}
