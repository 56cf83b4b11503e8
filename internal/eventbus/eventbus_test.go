package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := New(0)
	sub := b.Subscribe()
	b.Publish(Event{Kind: SessionCreated, SessionID: "a"})
	b.Publish(Event{Kind: SessionExited, SessionID: "a"})

	ev1 := <-sub.Events()
	ev2 := <-sub.Events()
	require.Equal(t, SessionCreated, ev1.Kind)
	require.Equal(t, SessionExited, ev2.Kind)
	require.Less(t, ev1.Seq, ev2.Seq)
}

// I6: a slow subscriber is dropped rather than stalling publishers.
func TestSlowSubscriberDroppedNotBlocking(t *testing.T) {
	b := New(2)
	slow := b.Subscribe()
	for i := 0; i < 10; i++ {
		b.Publish(Event{Kind: RepoAdded})
	}
	require.Equal(t, 0, b.SubscriberCount())
	_, ok := <-slow.Events()
	// channel was closed once full and dropped, but may still hold buffered items first.
	for ok {
		_, ok = <-slow.Events()
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(0)
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	_, ok := <-sub.Events()
	require.False(t, ok)
}
