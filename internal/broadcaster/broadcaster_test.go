package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New(DefaultQueueBytes, func() []byte { return []byte("snap") })
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	b.Publish([]byte("hello\n"))

	c1 := <-s1.Chunks()
	c2 := <-s2.Chunks()
	require.Equal(t, "hello\n", string(c1.Data))
	require.False(t, c1.Resync)
	require.Equal(t, "hello\n", string(c2.Data))
	require.False(t, c2.Resync)
}

// P3 / S4: a slow subscriber that never drains eventually gets a Resync,
// and never blocks delivery to other subscribers.
func TestSlowSubscriberGetsResyncOthersUnaffected(t *testing.T) {
	b := New(64*1024, func() []byte { return []byte("SNAPSHOT") })
	slow := b.Subscribe()
	fast := b.Subscribe()

	// Fast subscriber drains after every publish and must see every byte
	// contiguously; slow never drains, so its queue (64 KiB / 16 KiB = 4
	// chunks) fills and it is marked lagged.
	total, got := 0, 0
	for i := 0; i < 64; i++ {
		data := []byte("0123456789abcdef")
		b.Publish(data)
		total += len(data)
		c := <-fast.Chunks()
		require.False(t, c.Resync)
		got += len(c.Data)
	}
	require.Equal(t, total, got)

	require.True(t, slow.Lagged())

	// The chunks queued before the lag are delivered first; once they are
	// drained, the next publish is preceded by a Resync snapshot.
	for i := 0; i < queueCapacity(64*1024); i++ {
		c := <-slow.Chunks()
		require.False(t, c.Resync)
	}
	b.Publish([]byte("more"))
	select {
	case c := <-slow.Chunks():
		require.True(t, c.Resync)
		require.Equal(t, "SNAPSHOT", string(c.Data))
	case <-time.After(time.Second):
		t.Fatal("expected a resync frame")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(DefaultQueueBytes, nil)
	s := b.Subscribe()
	b.Unsubscribe(s)
	_, ok := <-s.Chunks()
	require.False(t, ok)
	require.Equal(t, 0, b.SubscriberCount())
}

func TestCloseDetachesAllSubscribers(t *testing.T) {
	b := New(DefaultQueueBytes, nil)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	b.Close()
	_, ok1 := <-s1.Chunks()
	_, ok2 := <-s2.Chunks()
	require.False(t, ok1)
	require.False(t, ok2)
}
