package media

import (
	"context"
	"sync"
)

// Stream owns one capture and fans its PCM frames out to any number of
// subscribers: speaking-level analysis, recording and transmission all
// read the same track concurrently without sharing channels. Only the
// Stream owns the capture's stop lifecycle.
type Stream struct {
	capture Capture

	mu       sync.Mutex
	subs     []chan []int16
	stopped  bool
	stopOnce sync.Once
}

func NewStream(capture Capture) *Stream {
	return &Stream{capture: capture}
}

// Start begins capturing and pumping frames to subscribers.
func (s *Stream) Start(ctx context.Context) error {
	if err := s.capture.Start(ctx); err != nil {
		return err
	}
	go s.pump()
	return nil
}

func (s *Stream) pump() {
	for frame := range s.capture.Frames() {
		s.mu.Lock()
		for _, sub := range s.subs {
			select {
			case sub <- frame:
			default:
				// A slow subscriber loses frames, never stalls the rest.
			}
		}
		s.mu.Unlock()
	}

	// Capture ended: release subscribers.
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		close(sub)
	}
	s.subs = nil
	s.stopped = true
}

// Frames returns a new subscription. The channel closes when the
// stream stops.
func (s *Stream) Frames() <-chan []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []int16, 16)
	if s.stopped {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Stream) SampleRate() int { return s.capture.SampleRate() }

// Enabled reports whether the stream still delivers frames.
func (s *Stream) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

// Stop ends the capture. Idempotent; subscriber channels close once
// the pump drains.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.capture.Stop()
	})
}
