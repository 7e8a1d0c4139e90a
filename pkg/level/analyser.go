package level

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/commune-app/callengine/pkg/media"
)

const (
	// FFTSize is the number of PCM samples consumed per analysis tick.
	FFTSize = 2048

	// Temporal smoothing applied to the magnitude spectrum between ticks.
	spectrumSmoothing = 0.8

	// Decibel range the spectrum is normalised against.
	minDecibels = -90.0
	maxDecibels = -30.0

	// Voice-relevant frequency band in Hz.
	voiceLowHz  = 85.0
	voiceHighHz = 255.0
)

// ErrBadSampleRate is an acquisition failure: the audio graph cannot
// be built over a source whose rate cannot resolve the voice band.
var ErrBadSampleRate = fmt.Errorf("%w: sample rate too low for voice band", media.ErrAcquisition)

// analyser converts PCM windows into a single raw level reading in [0,1]
// by averaging the normalised decibel magnitudes of the voice band.
type analyser struct {
	fft      *fourier.FFT
	window   []float64
	spectrum []float64
	loBin    int
	hiBin    int
}

func newAnalyser(sampleRate int) (*analyser, error) {
	lo := int(voiceLowHz * FFTSize / float64(sampleRate))
	hi := int(voiceHighHz * FFTSize / float64(sampleRate))
	if sampleRate <= 0 || lo >= hi || hi > FFTSize/2 {
		return nil, ErrBadSampleRate
	}

	// Hann window
	w := make([]float64, FFTSize)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(FFTSize-1)))
	}

	return &analyser{
		fft:      fourier.NewFFT(FFTSize),
		window:   w,
		spectrum: make([]float64, FFTSize/2+1),
		loBin:    lo,
		hiBin:    hi,
	}, nil
}

// process consumes exactly FFTSize samples and returns the raw voice-band
// level for this tick.
func (a *analyser) process(frame []float64) float64 {
	for i := range frame {
		frame[i] *= a.window[i]
	}
	coeffs := a.fft.Coefficients(nil, frame)

	var sum float64
	for i := a.loBin; i < a.hiBin; i++ {
		mag := cmplxAbs(coeffs[i]) / float64(FFTSize)

		// Smooth magnitudes across ticks before converting to decibels.
		a.spectrum[i] = spectrumSmoothing*a.spectrum[i] + (1-spectrumSmoothing)*mag

		db := minDecibels
		if a.spectrum[i] > 0 {
			db = 20 * math.Log10(a.spectrum[i])
		}
		sum += normalise(db)
	}
	return sum / float64(a.hiBin-a.loBin)
}

// normalise maps a decibel value onto [0,1] over the analyser's range.
func normalise(db float64) float64 {
	v := (db - minDecibels) / (maxDecibels - minDecibels)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
