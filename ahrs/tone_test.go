package ahrs

import (
	"math"
	"testing"
)

// Thresholds for a typical clean-configuration flap setting.
var testThresholds = ToneThresholds{
	LDMaxAOA:       8.03,
	OnSpeedFastAOA: 11.25,
	OnSpeedSlowAOA: 13.84,
	StallWarnAOA:   16.48,
}

func TestCalcToneRegions(t *testing.T) {
	cases := []struct {
		aoa  float64
		tone ToneType
		pps  float64
	}{
		{5, ToneNone, 0},
		{8.03, ToneLow, 1.5},
		{11.25, ToneLow, 0},
		{(11.25 + 13.84) / 2, ToneLow, 0},
		{13.85, ToneHigh, 1.518},
		{(13.84 + 16.48) / 2, ToneHigh, (1.5 + 6.2) / 2},
		{16.48, ToneHigh, 20.0},
		{25, ToneHigh, 20.0},
	}
	for _, c := range cases {
		got := CalcTone(c.aoa, testThresholds)
		if got.Tone != c.tone {
			t.Errorf("AOA %g: tone %v, want %v", c.aoa, got.Tone, c.tone)
		}
		if math.Abs(got.PPS-c.pps) > 0.02 {
			t.Errorf("AOA %g: pps %g, want %g", c.aoa, got.PPS, c.pps)
		}
	}
}

func TestCalcTonePulsedLowRamp(t *testing.T) {
	// Just below on-speed-fast the low tone pulses near its maximum.
	got := CalcTone(11.24, testThresholds)
	if got.Tone != ToneLow || got.PPS < 8.0 || got.PPS > LowTonePPSMax {
		t.Errorf("just below fast: %+v", got)
	}
}

// Full-flap configurations may have LDMax >= OnSpeedFast, which collapses
// the pulsed-low region entirely.
func TestCalcToneCollapsedLowRegion(t *testing.T) {
	th := testThresholds
	th.LDMaxAOA = th.OnSpeedFastAOA
	got := CalcTone(th.OnSpeedFastAOA-0.5, th)
	if got.Tone != ToneNone || got.PPS != 0 {
		t.Errorf("collapsed region below fast: %+v", got)
	}
	got = CalcTone(th.OnSpeedFastAOA, th)
	if got.Tone != ToneLow || got.PPS != 0 {
		t.Errorf("collapsed region at fast: %+v", got)
	}
}

func TestCalcToneMuted(t *testing.T) {
	got := CalcToneMuted(17, 80, testThresholds.StallWarnAOA, 25)
	if got.Tone != ToneHigh || got.PPS != HighToneStallPPS {
		t.Errorf("muted stall above mute IAS: %+v", got)
	}
	got = CalcToneMuted(17, 20, testThresholds.StallWarnAOA, 25)
	if got.Tone != ToneNone || got.PPS != 0 {
		t.Errorf("muted stall below mute IAS: %+v", got)
	}
	got = CalcToneMuted(12, 80, testThresholds.StallWarnAOA, 25)
	if got.Tone != ToneNone {
		t.Errorf("muted on-speed should be silent: %+v", got)
	}
}

// With monotone thresholds the tone escalates monotonically as AOA
// sweeps upward: none, pulsed low, solid low, pulsed high, stall.
func TestCalcToneMonotoneEscalation(t *testing.T) {
	rank := func(r ToneResult) int {
		switch {
		case r.Tone == ToneNone:
			return 0
		case r.Tone == ToneLow && r.PPS > 0:
			return 1
		case r.Tone == ToneLow:
			return 2
		case r.Tone == ToneHigh && r.PPS < HighToneStallPPS:
			return 3
		default:
			return 4
		}
	}

	prev := -1
	seen := make(map[int]bool)
	for aoa := 0.0; aoa <= 20; aoa += 0.01 {
		r := rank(CalcTone(aoa, testThresholds))
		if r < prev {
			t.Fatalf("tone de-escalated at AOA %g: rank %d after %d", aoa, r, prev)
		}
		prev = r
		seen[r] = true
	}
	for r := 0; r <= 4; r++ {
		if !seen[r] {
			t.Errorf("region rank %d never reached in sweep", r)
		}
	}
}

func TestMapFloat(t *testing.T) {
	if got := MapFloat(5, 0, 10, 0, 100); got != 50 {
		t.Errorf("MapFloat midpoint: %g", got)
	}
	if got := MapFloat(15, 0, 10, 0, 100); got != 150 {
		t.Errorf("MapFloat extrapolation: %g", got)
	}
}
