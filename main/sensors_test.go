package main

import (
	"math"
	"testing"
	"time"

	"github.com/flyonspeed/OnSpeed-Gen3/ahrs"
	"github.com/flyonspeed/OnSpeed-Gen3/sensors"
)

func setupTest() {
	defaultSettings()
	if onspeedClock == nil {
		onspeedClock = NewMonotonic()
	}
	mySituation = &SituationData{}
}

func TestFracTickerPeriods(t *testing.T) {
	tick := newFracTicker(208)
	if tick.baseUs != 4807 || tick.remUs != 144 {
		t.Errorf("208 Hz ticker: base %d rem %d, want 4807/144", tick.baseUs, tick.remUs)
	}
	tick = newFracTicker(50)
	if tick.baseUs != 20000 || tick.remUs != 0 {
		t.Errorf("50 Hz ticker: base %d rem %d, want 20000/0", tick.baseUs, tick.remUs)
	}
}

// The fractional accumulator inserts exactly remUs extra microseconds
// per rate ticks, so rate ticks advance the deadline by exactly 1 s.
func TestFracTickerExactLongRunRate(t *testing.T) {
	tick := newFracTicker(208)
	start := tick.next
	for i := 0; i < 208; i++ {
		tick.next = tick.next.Add(time.Duration(tick.baseUs) * time.Microsecond)
		tick.acc += tick.remUs
		if tick.acc >= tick.rate {
			tick.next = tick.next.Add(time.Microsecond)
			tick.acc -= tick.rate
		}
	}
	if got := tick.next.Sub(start); got != time.Second {
		t.Errorf("208 ticks advanced deadline by %v, want exactly 1s", got)
	}
	if tick.acc != 0 {
		t.Errorf("accumulator %d after a full second, want 0", tick.acc)
	}
}

func TestFracTickerWallClock(t *testing.T) {
	tick := newFracTicker(1000)
	start := time.Now()
	for i := 0; i < 100; i++ {
		tick.wait()
	}
	elapsed := time.Since(start)
	if elapsed < 90*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Errorf("100 ticks at 1 kHz took %v", elapsed)
	}
}

func TestPressureAltitude(t *testing.T) {
	setupTest()
	if got := pressureAltitudeFeetFromMbar(1013.25, 0); math.Abs(got) > 0.1 {
		t.Errorf("sea level: %g ft", got)
	}
	lower := pressureAltitudeFeetFromMbar(900, 0)
	higher := pressureAltitudeFeetFromMbar(700, 0)
	if lower <= 0 || higher <= lower {
		t.Errorf("altitude not monotone: 900mb=%g 700mb=%g", lower, higher)
	}
	// Bad static reading keeps the previous altitude.
	if got := pressureAltitudeFeetFromMbar(-5, 1234); got != 1234 {
		t.Errorf("non-positive static: %g, want previous 1234", got)
	}
	// Static bias is subtracted before conversion.
	globalSettings.PStaticBias = 10
	biased := pressureAltitudeFeetFromMbar(1023.25, 0)
	if math.Abs(biased) > 0.1 {
		t.Errorf("bias-corrected sea level: %g ft", biased)
	}
}

func TestCalcIAS(t *testing.T) {
	setupTest()
	myPitot = sensors.NewFakeDifferentialPressure(0, 1.0/sensorCountsPerPSI)

	// 0.1 PSI of dynamic pressure.
	counts := 0.1 * sensorCountsPerPSI
	pascal := psi2mb(0.1) * 100
	want := math.Sqrt(2*pascal/1.225) * ktsPerMps
	if got := calcIAS(counts); math.Abs(got-want) > 1e-9 {
		t.Errorf("IAS = %g, want %g", got, want)
	}

	// Negative dynamic pressure clamps to zero.
	if got := calcIAS(-100); got != 0 {
		t.Errorf("negative pressure IAS = %g, want 0", got)
	}

	// The CAS correction curve applies when enabled.
	globalSettings.CasCurveEnabled = true
	globalSettings.CasCurve = ahrs.CalibrationCurve{A1: 1.05, Enabled: true}
	if got := calcIAS(counts); math.Abs(got-want*1.05) > 1e-9 {
		t.Errorf("CAS-corrected IAS = %g, want %g", got, want*1.05)
	}
}
