// Package eventbus implements the daemon-wide coarse event pub/sub of
// spec §4.6: SessionCreated/Destroyed/Renamed/Exited and
// Worktree/Repo Added/Removed. Delivery is best-effort (invariant I6): a
// subscriber whose queue overflows is dropped rather than stalling
// publishers, mirroring internal/broadcaster's backpressure policy but for
// low-volume structural deltas instead of high-volume PTY bytes.
package eventbus

import "sync"

// Kind enumerates the DaemonEvent variants from spec §4.6.
type Kind string

const (
	SessionCreated   Kind = "SessionCreated"
	SessionDestroyed Kind = "SessionDestroyed"
	SessionRenamed   Kind = "SessionRenamed"
	SessionExited    Kind = "SessionExited"
	WorktreeAdded    Kind = "WorktreeAdded"
	WorktreeRemoved  Kind = "WorktreeRemoved"
	RepoAdded        Kind = "RepoAdded"
	RepoRemoved      Kind = "RepoRemoved"
)

// Event carries the minimum fields a listener needs to refresh affected
// state, per spec §4.6.
type Event struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"session_id,omitempty"`
	RepoID    string `json:"repo_id,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Name      string `json:"name,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	Seq       uint64 `json:"seq"`
}

// DefaultQueueDepth bounds how many events a subscriber may lag behind
// before it is dropped.
const DefaultQueueDepth = 256

// Subscriber is a single SubscribeEvents stream's delivery queue.
type Subscriber struct {
	id     uint64
	events chan Event
	closed bool
	mu     sync.Mutex
}

// Events returns the channel of events for this subscriber; closed when
// the subscriber is dropped (overflow) or explicitly unsubscribed.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Bus is the process-wide event bus.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64
	seq    uint64
	depth  int
}

// New creates a Bus. depth <= 0 uses DefaultQueueDepth.
func New(depth int) *Bus {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Bus{subs: map[uint64]*Subscriber{}, depth: depth}
}

// Subscribe registers a new event subscriber.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscriber{id: b.nextID, events: make(chan Event, b.depth)}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes and closes a subscriber.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()
	if ok {
		b.closeSub(sub)
	}
}

func (b *Bus) closeSub(sub *Subscriber) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.events)
}

// Publish delivers ev to every live subscriber, stamping Seq, and drops
// (unsubscribes) any subscriber whose queue is currently full.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	b.seq++
	ev.Seq = b.seq
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.events <- ev:
		default:
			b.Unsubscribe(sub) // slow subscriber dropped, never blocks publishers
		}
	}
}

// SubscriberCount reports the number of live subscribers (metrics/tests).
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
