package media

import (
	"context"
	"sync"
)

// staticCapture replays canned PCM frames. It stands in for a real
// device in tests and dry runs.
type staticCapture struct {
	rate     int
	frames   [][]int16
	out      chan []int16
	stopOnce sync.Once
	stop     chan struct{}
}

func NewStaticCapture(sampleRate int, frames [][]int16) Capture {
	return &staticCapture{
		rate:   sampleRate,
		frames: frames,
		out:    make(chan []int16, len(frames)+1),
		stop:   make(chan struct{}),
	}
}

func (s *staticCapture) Start(ctx context.Context) error {
	go func() {
		defer close(s.out)
		for _, f := range s.frames {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case s.out <- f:
			}
		}
		select {
		case <-ctx.Done():
		case <-s.stop:
		}
	}()
	return nil
}

func (s *staticCapture) Frames() <-chan []int16 { return s.out }

func (s *staticCapture) SampleRate() int { return s.rate }

func (s *staticCapture) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
