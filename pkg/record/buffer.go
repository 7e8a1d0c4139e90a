package record

import (
	"bytes"
	"errors"
	"sync"
)

var ErrBufferClosed = errors.New("segment buffer closed")

// segmentBuffer accumulates encoded segments in arrival order until
// they are assembled into one blob.
type segmentBuffer struct {
	mu       sync.Mutex
	segments [][]byte
	closed   bool
}

func newSegmentBuffer() *segmentBuffer {
	return &segmentBuffer{}
}

func (b *segmentBuffer) Append(segment []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBufferClosed
	}
	b.segments = append(b.segments, segment)
	return nil
}

func (b *segmentBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.segments {
		n += len(s)
	}
	return n
}

// Assemble concatenates all buffered segments.
func (b *segmentBuffer) Assemble() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var buf bytes.Buffer
	for _, s := range b.segments {
		buf.Write(s)
	}
	return buf.Bytes()
}

// Close discards the buffer. Closing twice returns ErrBufferClosed.
func (b *segmentBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBufferClosed
	}
	b.closed = true
	b.segments = nil
	return nil
}
