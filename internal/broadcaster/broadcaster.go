// Package broadcaster implements the per-session output fan-out described
// in spec §4.3: every attach gets its own bounded queue, a slow subscriber
// is resynced rather than allowed to stall the PTY read loop or any other
// subscriber.
package broadcaster

import "sync"

// DefaultQueueBytes is the default per-subscriber high-water mark.
const DefaultQueueBytes = 256 * 1024

// Chunk is what travels through a subscriber's queue: either a live output
// slice, or a resync marker (Resync true, Data is a fresh scrollback
// snapshot) the consumer must treat as a repaint barrier.
type Chunk struct {
	Data   []byte
	Resync bool
}

// Subscriber is a single attach's output queue handle.
type Subscriber struct {
	id     uint64
	queue  chan Chunk
	closed bool

	mu     sync.Mutex
	lagged bool
}

// Chunks returns the channel of output chunks for this subscriber. It is
// closed when Unsubscribe or Close is called.
func (s *Subscriber) Chunks() <-chan Chunk { return s.queue }

// Broadcaster fans PTY output out to any number of attached subscribers.
type Broadcaster struct {
	mu          sync.Mutex
	subs        map[uint64]*Subscriber
	nextID      uint64
	queueBytes  int
	snapshotter func() []byte
}

// New creates a Broadcaster. snapshotter is called to produce the bytes
// sent as a Resync frame's payload; it is normally the owning session's
// scrollback.Snapshot.
func New(queueBytes int, snapshotter func() []byte) *Broadcaster {
	if queueBytes <= 0 {
		queueBytes = DefaultQueueBytes
	}
	return &Broadcaster{
		subs:        map[uint64]*Subscriber{},
		queueBytes:  queueBytes,
		snapshotter: snapshotter,
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscriber{
		id:    b.nextID,
		queue: make(chan Chunk, queueCapacity(b.queueBytes)),
	}
	b.subs[sub.id] = sub
	return sub
}

// queueCapacity converts a byte high-water mark into a channel capacity in
// "chunks". Real PTY reads are capped at 64KiB (spec §4.2); budget room for
// several before treating the subscriber as lagged.
func queueCapacity(bytesBudget int) int {
	const assumedChunk = 16 * 1024
	n := bytesBudget / assumedChunk
	if n < 4 {
		n = 4
	}
	return n
}

// Unsubscribe removes a subscriber and closes its queue.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()
	if ok {
		closeSubscriber(sub)
	}
}

func closeSubscriber(sub *Subscriber) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.queue)
}

// Publish delivers data to every live subscriber. It never blocks: a
// subscriber whose queue is at capacity is marked lagged and the chunk is
// dropped for that subscriber only; its next successful delivery is
// preceded by a fresh snapshot so the client can discard and repaint.
func (b *Broadcaster) Publish(data []byte) {
	if len(data) == 0 {
		return
	}
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(sub, data)
	}
}

func (b *Broadcaster) deliver(sub *Subscriber, data []byte) {
	sub.mu.Lock()
	needsResync := sub.lagged
	sub.mu.Unlock()

	if needsResync {
		if !b.trySend(sub, Chunk{Data: b.snapshot(), Resync: true}) {
			return // still lagged; try again on the next publish
		}
		sub.mu.Lock()
		sub.lagged = false
		sub.mu.Unlock()
	}

	if !b.trySend(sub, Chunk{Data: data}) {
		sub.mu.Lock()
		sub.lagged = true
		sub.mu.Unlock()
	}
}

func (b *Broadcaster) snapshot() []byte {
	if b.snapshotter == nil {
		return nil
	}
	return b.snapshotter()
}

// trySend performs a non-blocking enqueue. It reports false when the queue
// is full or already closed. sub.mu is held across the closed check and the
// send itself so a concurrent closeSubscriber (which also takes sub.mu)
// can never close the queue between the check and the send — without that,
// a client detaching mid-publish could make this send panic on a closed
// channel.
func (b *Broadcaster) trySend(sub *Subscriber, c Chunk) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return false
	}
	select {
	case sub.queue <- c:
		return true
	default:
		return false
	}
}

// Lagged reports whether sub is currently flagged as lagging (test/metrics
// hook).
func (sub *Subscriber) Lagged() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.lagged
}

// SubscriberCount returns the number of currently attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches and closes every subscriber, used when a session is
// destroyed (invariant I3: drain broadcaster, drop every live subscriber).
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = map[uint64]*Subscriber{}
	b.mu.Unlock()
	for _, s := range subs {
		closeSubscriber(s)
	}
}
