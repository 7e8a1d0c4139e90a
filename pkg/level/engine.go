// Package level classifies "is this participant speaking" from a local
// audio track. It calibrates against ambient noise, smooths the signal
// and applies a hysteresis gate so the reported level does not flicker.
package level

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

// FrameSource is a live audio track the engine can sample. Frames
// returns a fresh subscription delivering mono PCM frames; the channel
// closes when the track stops.
type FrameSource interface {
	SampleRate() int
	Enabled() bool
	Frames() <-chan []int16
}

// Engine samples a frame source and reports a speaking level per tick.
// One tick consumes one FFT window; the next window is only read after
// the previous callback has returned, so callbacks never overlap.
type Engine struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// Injected clock, for tests.
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Attach begins continuous sampling of src, reporting levels through
// onLevel. A nil, stopped or disabled source reports 0 once and does
// not start the loop. Any setup failure detaches before returning.
func (e *Engine) Attach(src FrameSource, onLevel func(float64)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detachLocked()

	if src == nil || !src.Enabled() {
		onLevel(0)
		return nil
	}

	a, err := newAnalyser(src.SampleRate())
	if err != nil {
		e.detachLocked()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.sample(ctx, src.Frames(), a, onLevel)
	return nil
}

// Detach stops the sampling loop and releases the analyser. Safe to
// call twice or without a prior Attach.
func (e *Engine) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detachLocked()
}

func (e *Engine) detachLocked() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
	e.done = nil
}

func (e *Engine) sample(ctx context.Context, frames <-chan []int16, a *analyser, onLevel func(float64)) {
	defer close(e.done)

	var g gate
	window := make([]float64, 0, FFTSize)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				log.Debug("frame source closed, stopping level sampling")
				return
			}
			for _, s := range frame {
				window = append(window, float64(s)/32768.0)
				if len(window) < FFTSize {
					continue
				}
				raw := a.process(window)
				onLevel(g.step(raw, e.now()))
				window = window[:0]
			}
		}
	}
}
