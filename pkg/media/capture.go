// Package media is the platform capability layer: local audio device
// acquisition, PCM fan-out and encoding. The call orchestration and
// signal-processing packages only see the interfaces defined here.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/labstack/gommon/log"
)

var ErrAcquisition = errors.New("cannot acquire audio device")

// Constraints mirror the fixed capture settings applied to the local
// audio device.
type Constraints struct {
	SampleRate       int
	Channels         int
	BitDepth         int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       48000,
		Channels:         1,
		BitDepth:         16,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Capture produces PCM frames from a local audio device.
type Capture interface {
	Start(ctx context.Context) error
	Frames() <-chan []int16
	SampleRate() int
	Stop()
}

const framesPerBuffer = 512

type portAudioCapture struct {
	constraints Constraints
	stream      *portaudio.Stream
	buf         []int16
	out         chan []int16
	cancel      context.CancelFunc
	stopOnce    sync.Once
}

// NewPortAudioCapture opens the default input device with the given
// constraints. Echo cancellation, noise suppression and gain control
// are delegated to the host audio stack; the constraints are recorded
// so downstream consumers can inspect what was requested.
func NewPortAudioCapture(c Constraints) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}

	buf := make([]int16, framesPerBuffer*c.Channels)
	stream, err := portaudio.OpenDefaultStream(c.Channels, 0, float64(c.SampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}

	return &portAudioCapture{
		constraints: c,
		stream:      stream,
		buf:         buf,
		out:         make(chan []int16, 8),
	}, nil
}

func (p *portAudioCapture) Start(ctx context.Context) error {
	if err := p.stream.Start(); err != nil {
		p.stream.Close()
		return fmt.Errorf("%w: %v", ErrAcquisition, err)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.read(ctx)
	return nil
}

func (p *portAudioCapture) read(ctx context.Context) {
	defer close(p.out)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := p.stream.Read(); err != nil {
			log.Debugf("audio read stopped | error: %v", err)
			return
		}

		frame := append([]int16(nil), p.buf...)
		select {
		case p.out <- frame:
		default:
			// Drop the frame rather than block the device callback.
		}
	}
}

func (p *portAudioCapture) Frames() <-chan []int16 { return p.out }

func (p *portAudioCapture) SampleRate() int { return p.constraints.SampleRate }

func (p *portAudioCapture) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if err := p.stream.Stop(); err != nil {
			log.Debugf("cannot stop audio stream | error: %v", err)
		}
		if err := p.stream.Close(); err != nil {
			log.Debugf("cannot close audio stream | error: %v", err)
		}
		if err := portaudio.Terminate(); err != nil {
			log.Debugf("cannot terminate audio host | error: %v", err)
		}
	})
}
