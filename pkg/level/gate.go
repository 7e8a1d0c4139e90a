package level

import "time"

const (
	// Number of initial ticks used to measure the ambient noise floor.
	// Nothing is reported while calibrating.
	calibrationTicks = 30

	// Safety margin applied to the measured noise floor before subtraction.
	noiseFloorMargin = 1.2

	// Smoothing factors for the exponential moving average. The slower
	// factor is used right after speech to suppress flicker.
	fastSmoothing = 0.2
	slowSmoothing = 0.05

	// Dual thresholds of the hysteresis gate.
	activeThreshold = 0.25
	holdThreshold   = 0.15

	// How long the gate stays sticky after the last active tick.
	holdWindow = time.Second
)

// gate holds the state of the noise calibration and hysteresis logic.
// It is deliberately free of any scheduling or audio concerns so the
// math can be tested tick by tick.
type gate struct {
	ticks      int
	noiseFloor float64
	smoothed   float64
	lastActive time.Time
}

// step consumes one raw level reading in [0,1] and returns the reported
// speaking level: 1 while the gate considers the participant speaking,
// 0 otherwise. The first calibrationTicks readings always report 0 and
// only feed the noise floor.
func (g *gate) step(raw float64, now time.Time) float64 {
	if g.ticks < calibrationTicks {
		g.ticks++
		if raw > g.noiseFloor {
			g.noiseFloor = raw
		}
		return 0
	}

	adjusted := raw - g.noiseFloor*noiseFloorMargin
	if adjusted < 0 {
		adjusted = 0
	}

	holding := now.Sub(g.lastActive) < holdWindow
	alpha := fastSmoothing
	if holding {
		alpha = slowSmoothing
	}
	g.smoothed += alpha * (adjusted - g.smoothed)

	if g.smoothed > activeThreshold {
		g.lastActive = now
		return 1
	}
	if g.smoothed > holdThreshold && holding {
		return 1
	}
	return 0
}
