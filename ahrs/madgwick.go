package ahrs

import (
	"math"
)

// madgwickBetaDefault is the gradient-descent gain. Larger values trust
// the accelerometer more; smaller values trust the gyros.
const madgwickBetaDefault = 0.1

// Madgwick is a quaternion attitude filter fusing gyro rates with the
// accelerometer gravity direction by one gradient-descent step per cycle.
// It is the alternative attitude backend to the EKF6.
//
// UpdateIMU takes gyro rates in deg/s and accelerometer specific force
// in g in the z-down body frame: level flight reads (0, 0, -1). The
// gradient step therefore descends toward the -z gravity reference, so
// nose-up pitch and right-wing-down roll come out positive from Pitch
// and Roll. A zero accelerometer vector bypasses the gravity correction
// for that cycle.
type Madgwick struct {
	beta           float64
	q0, q1, q2, q3 float64
	sampleHz       float64
	invSampleFreq  float64
}

// NewMadgwick returns a filter with the given gradient gain, or the
// default when gain <= 0.
func NewMadgwick(gain float64) *Madgwick {
	if gain <= 0 {
		gain = madgwickBetaDefault
	}
	return &Madgwick{beta: gain, q0: 1}
}

// Begin initializes the filter for the given sample rate and starting
// attitude in degrees (nose-up pitch and right-wing-down roll positive).
func (f *Madgwick) Begin(sampleHz, pitchDeg, rollDeg float64) {
	f.sampleHz = sampleHz
	f.invSampleFreq = 1 / sampleHz

	// Quaternion from aerospace ZYX Euler angles with zero yaw; this
	// round-trips through Pitch/Roll below.
	cp := math.Cos(pitchDeg * Deg / 2)
	sp := math.Sin(pitchDeg * Deg / 2)
	cr := math.Cos(rollDeg * Deg / 2)
	sr := math.Sin(rollDeg * Deg / 2)
	f.q0 = cr * cp
	f.q1 = sr * cp
	f.q2 = cr * sp
	f.q3 = -sr * sp
}

// SetDeltaTime overrides the integration period for the next UpdateIMU
// call; used when the measured IMU period differs from nominal.
func (f *Madgwick) SetDeltaTime(dt float64) {
	if dt > 0 && !math.IsInf(dt, 0) && !math.IsNaN(dt) {
		f.invSampleFreq = dt
	}
}

// UpdateIMU runs one fusion step. Gyro rates gx, gy, gz in deg/s; accel
// ax, ay, az in g.
func (f *Madgwick) UpdateIMU(gx, gy, gz, ax, ay, az float64) {
	// Rates to rad/s.
	gx *= Deg
	gy *= Deg
	gz *= Deg

	q0, q1, q2, q3 := f.q0, f.q1, f.q2, f.q3

	// Rate of change of quaternion from gyroscope.
	qDot1 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot2 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot3 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot4 := 0.5 * (q0*gz + q1*gy - q2*gx)

	// Gravity feedback only when the accelerometer reads something.
	if !(ax == 0 && ay == 0 && az == 0) {
		norm := math.Sqrt(ax*ax + ay*ay + az*az)
		// Normalize and flip into the filter's gravity reference: the
		// measured specific force points along -z at rest, so the
		// descent target is the -z reference direction.
		ax = -ax / norm
		ay = -ay / norm
		az = -az / norm

		x2q0 := 2 * q0
		x2q1 := 2 * q1
		x2q2 := 2 * q2
		x2q3 := 2 * q3
		x4q0 := 4 * q0
		x4q1 := 4 * q1
		x4q2 := 4 * q2
		x8q1 := 8 * q1
		x8q2 := 8 * q2
		q0q0 := q0 * q0
		q1q1 := q1 * q1
		q2q2 := q2 * q2
		q3q3 := q3 * q3

		// Gradient-descent corrective step.
		s0 := x4q0*q2q2 + x2q2*ax + x4q0*q1q1 - x2q1*ay
		s1 := x4q1*q3q3 - x2q3*ax + 4*q0q0*q1 - x2q0*ay - x4q1 + x8q1*q1q1 + x8q1*q2q2 + x4q1*az
		s2 := 4*q0q0*q2 + x2q0*ax + x4q2*q3q3 - x2q3*ay - x4q2 + x8q2*q1q1 + x8q2*q2q2 + x4q2*az
		s3 := 4*q1q1*q3 - x2q1*ax + 4*q2q2*q3 - x2q2*ay
		norm = math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3)
		if norm > 0 {
			s0 /= norm
			s1 /= norm
			s2 /= norm
			s3 /= norm

			qDot1 -= f.beta * s0
			qDot2 -= f.beta * s1
			qDot3 -= f.beta * s2
			qDot4 -= f.beta * s3
		}
	}

	// Integrate and renormalize.
	q0 += qDot1 * f.invSampleFreq
	q1 += qDot2 * f.invSampleFreq
	q2 += qDot3 * f.invSampleFreq
	q3 += qDot4 * f.invSampleFreq

	norm := math.Sqrt(q0*q0 + q1*q1 + q2*q2 + q3*q3)
	f.q0 = q0 / norm
	f.q1 = q1 / norm
	f.q2 = q2 / norm
	f.q3 = q3 / norm
}

// Pitch returns the pitch in degrees, nose-up positive.
func (f *Madgwick) Pitch() float64 {
	return math.Asin(-2*(f.q1*f.q3-f.q0*f.q2)) / Deg
}

// Roll returns the roll in degrees, right-wing-down positive.
func (f *Madgwick) Roll() float64 {
	return math.Atan2(f.q0*f.q1+f.q2*f.q3, 0.5-f.q1*f.q1-f.q2*f.q2) / Deg
}

// Quaternion returns the current unit quaternion (w, x, y, z), used for
// earth-frame projections of body accelerations.
func (f *Madgwick) Quaternion() (w, x, y, z float64) {
	return f.q0, f.q1, f.q2, f.q3
}

// Init implements AttitudeBackend; angles in radians, aircraft frame.
func (f *Madgwick) Init(phi0, theta0 float64) {
	hz := f.sampleHz
	if hz <= 0 {
		hz = 208
	}
	f.Begin(hz, theta0/Deg, phi0/Deg)
}

// Update implements AttitudeBackend. The Measurement carries m/s² and
// rad/s in the same z-down frame the filter uses (az = -G in level
// flight), so only the units change.
func (f *Madgwick) Update(m *Measurement, dt float64) {
	f.SetDeltaTime(dt)
	f.UpdateIMU(m.P/Deg, m.Q/Deg, m.R/Deg, m.Ax/G, m.Ay/G, m.Az/G)
}

// RollDeg implements AttitudeBackend.
func (f *Madgwick) RollDeg() float64 { return f.Roll() }

// PitchDeg implements AttitudeBackend.
func (f *Madgwick) PitchDeg() float64 { return f.Pitch() }

// DerivedAOADeg implements AttitudeBackend: pitch minus flight path.
func (f *Madgwick) DerivedAOADeg(gammaDeg float64) float64 {
	return f.PitchDeg() - gammaDeg
}
