package level

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/commune-app/callengine/pkg/media"
)

type fakeSource struct {
	rate    int
	enabled bool
	frames  chan []int16
}

func (f *fakeSource) SampleRate() int        { return f.rate }
func (f *fakeSource) Enabled() bool          { return f.enabled }
func (f *fakeSource) Frames() <-chan []int16 { return f.frames }

func toneFrame(freq float64, rate int, n int) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		frame[i] = int16(20000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return frame
}

func TestAttachNilSourceReportsZero(t *testing.T) {
	e := NewEngine()
	var levels []float64
	err := e.Attach(nil, func(l float64) { levels = append(levels, l) })
	require.NoError(t, err)
	require.Equal(t, []float64{0}, levels)
	e.Detach()
}

func TestAttachDisabledSourceReportsZero(t *testing.T) {
	e := NewEngine()
	src := &fakeSource{rate: 48000, enabled: false}
	var levels []float64
	err := e.Attach(src, func(l float64) { levels = append(levels, l) })
	require.NoError(t, err)
	require.Equal(t, []float64{0}, levels)
}

func TestAttachBadSampleRate(t *testing.T) {
	e := NewEngine()
	src := &fakeSource{rate: 0, enabled: true, frames: make(chan []int16)}
	err := e.Attach(src, func(float64) {})
	require.ErrorIs(t, err, ErrBadSampleRate)
	require.ErrorIs(t, err, media.ErrAcquisition)
}

func TestCalibrationTicksNeverReportNonzero(t *testing.T) {
	e := NewEngine()
	src := &fakeSource{rate: 48000, enabled: true, frames: make(chan []int16, calibrationTicks)}

	levels := make(chan float64, calibrationTicks)
	err := e.Attach(src, func(l float64) { levels <- l })
	require.NoError(t, err)

	// Loud voice-band tone from the very first tick.
	for i := 0; i < calibrationTicks; i++ {
		src.frames <- toneFrame(150, 48000, FFTSize)
	}
	for i := 0; i < calibrationTicks; i++ {
		require.Zero(t, <-levels)
	}
	e.Detach()
}

func TestDetachTwice(t *testing.T) {
	e := NewEngine()
	src := &fakeSource{rate: 48000, enabled: true, frames: make(chan []int16)}
	require.NoError(t, e.Attach(src, func(float64) {}))
	e.Detach()
	e.Detach()
}

func TestDetachWithoutAttach(t *testing.T) {
	e := NewEngine()
	e.Detach()
}

func TestEngineStopsWhenSourceCloses(t *testing.T) {
	e := NewEngine()
	src := &fakeSource{rate: 48000, enabled: true, frames: make(chan []int16)}
	require.NoError(t, e.Attach(src, func(float64) {}))
	close(src.frames)

	// Detach must not hang on an already-finished loop.
	e.Detach()
}

func TestAnalyserVoiceBandSensitivity(t *testing.T) {
	a, err := newAnalyser(48000)
	require.NoError(t, err)

	frame := make([]float64, FFTSize)
	for i, s := range toneFrame(150, 48000, FFTSize) {
		frame[i] = float64(s) / 32768.0
	}
	var inBand float64
	for i := 0; i < 10; i++ {
		buf := make([]float64, FFTSize)
		copy(buf, frame)
		inBand = a.process(buf)
	}

	b, _ := newAnalyser(48000)
	for i, s := range toneFrame(4000, 48000, FFTSize) {
		frame[i] = float64(s) / 32768.0
	}
	var outOfBand float64
	for i := 0; i < 10; i++ {
		buf := make([]float64, FFTSize)
		copy(buf, frame)
		outOfBand = b.process(buf)
	}

	require.Greater(t, inBand, outOfBand)
	require.GreaterOrEqual(t, inBand, 0.0)
	require.LessOrEqual(t, inBand, 1.0)
}
