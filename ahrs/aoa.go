package ahrs

// minDynamicPressure is the smallest forward pressure considered valid
// for the coefficient-of-pressure ratio.
const minDynamicPressure = 1e-6

// CalibrationCurve is a quadratic y = A2·x² + A1·x + A0 fitted by the
// calibration wizard. Curves are only evaluated when Enabled; a disabled
// curve makes the AOA calculator fall through to the upstream AOA value.
type CalibrationCurve struct {
	A2      float64 `json:"a2"`
	A1      float64 `json:"a1"`
	A0      float64 `json:"a0"`
	Enabled bool    `json:"enabled"`
}

// Eval evaluates the quadratic at x.
func (c CalibrationCurve) Eval(x float64) float64 {
	return c.A2*x*x + c.A1*x + c.A0
}

// AOAResult carries the smoothed AOA and the raw coefficient of pressure
// it was computed from; CoeffP is also published for telemetry and
// calibration.
type AOAResult struct {
	AOA    float64
	CoeffP float64
}

// AOACalculator converts smoothed pitot and 45°-port pressures into an
// angle of attack: Cp = (Pfwd - P45)/Pfwd, evaluated through the active
// flap's calibration curve and lagged with a running average.
type AOACalculator struct {
	avg    *RunningAverage
	prevCp float64
}

// NewAOACalculator returns a calculator with the given lag window.
func NewAOACalculator(samples int) *AOACalculator {
	return &AOACalculator{avg: NewRunningAverage(samples)}
}

// SetSamples resizes the lag window, clearing the accumulated lag.
func (a *AOACalculator) SetSamples(n int) {
	a.avg = NewRunningAverage(n)
}

// Calculate computes Cp and AOA for one pressure sample. When Pfwd is
// not usable the previous Cp is reused. When the curve is disabled the
// upstream AOA value passes through unmodified.
func (a *AOACalculator) Calculate(pFwd, p45 float64, curve CalibrationCurve, upstreamAOA float64) AOAResult {
	cp := a.prevCp
	if pFwd > minDynamicPressure {
		cp = (pFwd - p45) / pFwd
	}
	a.prevCp = cp

	if !curve.Enabled {
		return AOAResult{AOA: upstreamAOA, CoeffP: cp}
	}

	a.avg.Add(curve.Eval(cp))
	return AOAResult{AOA: a.avg.Average(), CoeffP: cp}
}
