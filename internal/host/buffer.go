package host

import "sync"

// Buffer is a thread-safe circular buffer of terminal output. When full it
// keeps the newest bytes.
type Buffer struct {
	data    []byte
	size    int
	head    int
	tail    int
	dropped uint64
	mu      sync.RWMutex
}

// NewBuffer creates a buffer that holds up to size-1 bytes.
func NewBuffer(size int) *Buffer {
	if size < 2 {
		size = 2
	}
	return &Buffer{
		data: make([]byte, size),
		size: size,
	}
}

// Write appends p, overwriting the oldest bytes when the buffer is full.
func (b *Buffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range p {
		b.data[b.tail] = c
		b.tail = (b.tail + 1) % b.size

		if b.tail == b.head {
			b.head = (b.head + 1) % b.size
			b.dropped++
		}
	}

	return len(p), nil
}

// ReadAll returns everything buffered and empties the buffer.
func (b *Buffer) ReadAll() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.copyLocked()
	b.head = b.tail
	return out
}

// Snapshot returns everything buffered without consuming it.
func (b *Buffer) Snapshot() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.copyLocked()
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return (b.tail - b.head + b.size) % b.size
}

// Dropped returns how many bytes were overwritten before being read.
func (b *Buffer) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.dropped
}

func (b *Buffer) copyLocked() []byte {
	if b.head == b.tail {
		return []byte{}
	}

	if b.tail > b.head {
		out := make([]byte, b.tail-b.head)
		copy(out, b.data[b.head:b.tail])
		return out
	}

	first := b.data[b.head:]
	second := b.data[:b.tail]
	out := make([]byte, len(first)+len(second))
	copy(out, first)
	copy(out[len(first):], second)
	return out
}
