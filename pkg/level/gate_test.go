package level

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateCalibrationWindowReportsZero(t *testing.T) {
	var g gate
	now := time.Now()
	for i := 0; i < calibrationTicks; i++ {
		out := g.step(0.9, now)
		require.Zero(t, out)
		now = now.Add(16 * time.Millisecond)
	}
	require.Equal(t, 0.9, g.noiseFloor)
}

func TestGateOutputBounds(t *testing.T) {
	var g gate
	now := time.Now()
	inputs := []float64{0, 0.1, 0.5, 1, 0.3, 0, 1, 1, 1, 0}
	for i := 0; i < 200; i++ {
		out := g.step(inputs[i%len(inputs)], now)
		require.GreaterOrEqual(t, out, 0.0)
		require.LessOrEqual(t, out, 1.0)
		now = now.Add(16 * time.Millisecond)
	}
}

func TestGateActivatesAboveThreshold(t *testing.T) {
	g := calibrated(0)
	now := time.Now()

	// Sustained loud input drives the smoothed level over 0.25.
	var out float64
	for i := 0; i < 50; i++ {
		out = g.step(0.9, now)
		now = now.Add(16 * time.Millisecond)
	}
	require.Equal(t, 1.0, out)
}

func TestGateStaysStickyWithinHoldWindow(t *testing.T) {
	g := calibrated(0)
	now := time.Now()
	for i := 0; i < 50; i++ {
		g.step(0.9, now)
		now = now.Add(16 * time.Millisecond)
	}

	// Silence right after speech: smoothed level decays slowly and the
	// gate holds at 1 while above the lower threshold.
	out := g.step(0, now)
	require.Equal(t, 1.0, out)
}

func TestGateReleasesAfterHoldWindow(t *testing.T) {
	g := calibrated(0)
	now := time.Now()
	for i := 0; i < 50; i++ {
		g.step(0.9, now)
		now = now.Add(16 * time.Millisecond)
	}

	// Well past the hold window, silence must report 0.
	now = now.Add(5 * time.Second)
	var out float64
	for i := 0; i < 50; i++ {
		out = g.step(0, now)
		now = now.Add(16 * time.Millisecond)
	}
	require.Zero(t, out)
}

func TestGateSubtractsNoiseFloor(t *testing.T) {
	// Calibrated against loud ambient noise, the same level afterwards
	// should not activate the gate.
	g := calibrated(0.5)
	now := time.Now()
	var out float64
	for i := 0; i < 100; i++ {
		out = g.step(0.5, now)
		now = now.Add(16 * time.Millisecond)
	}
	require.Zero(t, out)
}

// calibrated returns a gate whose calibration window has been consumed
// with a constant ambient level.
func calibrated(ambient float64) *gate {
	g := &gate{}
	now := time.Unix(0, 0)
	for i := 0; i < calibrationTicks; i++ {
		g.step(ambient, now)
	}
	return g
}
