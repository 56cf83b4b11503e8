// Package scrollback implements the bounded byte ring each session uses to
// replay recent PTY output to newly attached clients (spec §3, §4.1).
//
// The buffer is treated as opaque bytes per invariant I4: trimming drops
// the oldest bytes regardless of UTF-8 or ANSI escape boundaries. Clients
// run a terminal emulator that tolerates truncation at arbitrary byte
// offsets.
package scrollback

import "sync"

// DefaultCapacity is the default scrollback size per session (spec §9,
// open question (c)): at least 1 MiB, configurable via config.toml.
const DefaultCapacity = 1 << 20

// Buffer is a fixed-capacity ring of raw bytes.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	cap      int
	start    int // index of oldest byte in data, when len(data) == cap
	full     bool
	written  uint64 // total bytes ever appended, monotonic
}

// New creates a Buffer with the given capacity. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		data: make([]byte, 0, capacity),
		cap:  capacity,
	}
}

// Append adds bytes to the ring, overwriting the oldest bytes once the ring
// is full. It never returns an error: scrollback loss on overflow is
// expected behavior, not a failure.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written += uint64(len(p))

	if len(p) >= b.cap {
		// The new chunk alone fills (or overflows) the ring; keep only its tail.
		tail := p[len(p)-b.cap:]
		b.data = append(b.data[:0], tail...)
		b.start = 0
		b.full = len(b.data) == b.cap
		return
	}

	if !b.full {
		room := b.cap - len(b.data)
		if len(p) <= room {
			b.data = append(b.data, p...)
			if len(b.data) == b.cap {
				b.full = true
			}
			return
		}
		// Fill remaining room, then fall through to overwrite-from-start logic.
		b.data = append(b.data, p[:room]...)
		p = p[room:]
		b.full = true
		b.start = 0
	}

	// Full ring: overwrite starting at b.start, wrapping as needed.
	for len(p) > 0 {
		n := copy(b.data[b.start:], p)
		b.start = (b.start + n) % b.cap
		p = p[n:]
	}
}

// Snapshot returns a copy of the buffer's live contents, oldest byte first.
func (b *Buffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]byte, len(b.data))
		copy(out, b.data)
		return out
	}
	out := make([]byte, b.cap)
	n := copy(out, b.data[b.start:])
	copy(out[n:], b.data[:b.start])
	return out
}

// Len returns the number of live bytes currently retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return b.cap
	}
	return len(b.data)
}

// TotalWritten returns the cumulative count of bytes ever appended,
// including ones since trimmed away.
func (b *Buffer) TotalWritten() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}

// Capacity returns the configured ring capacity.
func (b *Buffer) Capacity() int {
	return b.cap
}
