package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/eventbus"
)

func TestRecordAndListBySession(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	code := 0
	require.NoError(t, store.Record(ctx, eventbus.Event{Seq: 1, Kind: eventbus.SessionCreated, SessionID: "s1"}))
	require.NoError(t, store.Record(ctx, eventbus.Event{Seq: 2, Kind: eventbus.SessionExited, SessionID: "s1", ExitCode: &code}))
	require.NoError(t, store.Record(ctx, eventbus.Event{Seq: 3, Kind: eventbus.SessionCreated, SessionID: "s2"}))

	events, err := store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, string(eventbus.SessionCreated), events[0].Kind)
	require.Equal(t, string(eventbus.SessionExited), events[1].Kind)
	require.NotNil(t, events[1].ExitCode)
	require.Equal(t, 0, *events[1].ExitCode)
}

func TestTailReturnsChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Record(ctx, eventbus.Event{Seq: uint64(i), Kind: eventbus.SessionCreated, SessionID: "s1"}))
	}

	tail, err := store.Tail(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	require.EqualValues(t, 3, tail[0].Seq)
	require.EqualValues(t, 5, tail[2].Seq)
}

func TestSubscribeDrainsBusUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := eventbus.New(0)
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	go Subscribe(ctx, bus, store)
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	bus.Publish(eventbus.Event{Kind: eventbus.SessionCreated, SessionID: "s1"})

	require.Eventually(t, func() bool {
		events, err := store.ListBySession(context.Background(), "s1")
		return err == nil && len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
}
