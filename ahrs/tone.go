package ahrs

// Tone selection maps the current AOA against the active flap's
// thresholds. This is the core safety logic of the device: a wrong
// answer here gives the pilot the wrong audio cue near stall.

// ToneType identifies which tone the audio subsystem should play.
type ToneType int

const (
	ToneNone ToneType = iota
	ToneLow
	ToneHigh
)

func (t ToneType) String() string {
	switch t {
	case ToneLow:
		return "low"
	case ToneHigh:
		return "high"
	}
	return "none"
}

// Pulse-rate constants for the tone regions.
const (
	HighToneStallPPS = 20.0
	HighTonePPSMin   = 1.5
	HighTonePPSMax   = 6.2
	LowTonePPSMin    = 1.5
	LowTonePPSMax    = 8.2
)

// ToneThresholds are the per-flap AOA set points in degrees. They are
// monotone increasing, except that the full-flap case may have
// LDMax >= OnSpeedFast, which collapses the pulsed-low region.
type ToneThresholds struct {
	LDMaxAOA       float64
	OnSpeedFastAOA float64
	OnSpeedSlowAOA float64
	StallWarnAOA   float64
}

// ToneResult is the advisor output: tone type and pulses per second,
// where 0 PPS means a solid tone.
type ToneResult struct {
	Tone ToneType
	PPS  float64
}

// CalcTone selects the tone for the given AOA. Regions are evaluated
// top-down, first match wins:
//
//	>= StallWarn          high tone, fixed 20 PPS
//	>  OnSpeedSlow        high tone, 1.5..6.2 PPS interpolated
//	>= OnSpeedFast        low tone, solid
//	>= LDMax (if < Fast)  low tone, 1.5..8.2 PPS interpolated
//	below LDMax           no tone
func CalcTone(aoa float64, th ToneThresholds) ToneResult {
	if aoa >= th.StallWarnAOA {
		return ToneResult{ToneHigh, HighToneStallPPS}
	}

	if aoa > th.OnSpeedSlowAOA {
		pps := MapFloat(aoa, th.OnSpeedSlowAOA, th.StallWarnAOA, HighTonePPSMin, HighTonePPSMax)
		return ToneResult{ToneHigh, pps}
	}

	if aoa >= th.OnSpeedFastAOA {
		return ToneResult{ToneLow, 0}
	}

	if aoa >= th.LDMaxAOA && th.LDMaxAOA < th.OnSpeedFastAOA {
		pps := MapFloat(aoa, th.LDMaxAOA, th.OnSpeedFastAOA, LowTonePPSMin, LowTonePPSMax)
		return ToneResult{ToneLow, pps}
	}

	return ToneResult{ToneNone, 0}
}

// CalcToneMuted is the advisor with pilot audio-disable active: only the
// stall warning comes through, and only above the low-airspeed mute
// threshold.
func CalcToneMuted(aoa, ias, stallWarnAOA float64, muteUnderIAS int) ToneResult {
	if aoa >= stallWarnAOA && ias > float64(muteUnderIAS) {
		return ToneResult{ToneHigh, HighToneStallPPS}
	}
	return ToneResult{ToneNone, 0}
}
