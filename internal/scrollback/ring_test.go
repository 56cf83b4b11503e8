package scrollback

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndSnapshotWithinCapacity(t *testing.T) {
	b := New(16)
	b.Append([]byte("hello "))
	b.Append([]byte("world"))
	require.Equal(t, "hello world", string(b.Snapshot()))
	require.Equal(t, 11, b.Len())
	require.EqualValues(t, 11, b.TotalWritten())
}

// B1: writing more than capacity retains exactly capacity bytes of
// trailing data.
func TestOverflowRetainsTrailingCapacityBytes(t *testing.T) {
	b := New(8)
	b.Append([]byte("ABCDEFGHIJKLMNOP")) // 16 bytes, cap 8
	require.Equal(t, "IJKLMNOP", string(b.Snapshot()))
	require.Equal(t, 8, b.Len())
	require.EqualValues(t, 16, b.TotalWritten())
}

func TestIncrementalOverflowWraps(t *testing.T) {
	b := New(4)
	for _, chunk := range []string{"AB", "CD", "EF", "GH"} {
		b.Append([]byte(chunk))
	}
	require.Equal(t, "EFGH", string(b.Snapshot()))
}

func TestChunkLargerThanCapacityKeepsTail(t *testing.T) {
	b := New(4)
	b.Append([]byte("A"))
	b.Append([]byte("0123456789"))
	require.Equal(t, "6789", string(b.Snapshot()))
}

func TestDefaultCapacityUsedWhenNonPositive(t *testing.T) {
	b := New(0)
	require.Equal(t, DefaultCapacity, b.Capacity())
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New(8)
	b.Append([]byte("abcd"))
	s1 := b.Snapshot()
	b.Append([]byte("ef"))
	require.True(t, bytes.Equal(s1, []byte("abcd")), "mutating buffer must not retroactively change prior snapshot")
}
