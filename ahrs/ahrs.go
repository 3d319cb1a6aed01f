// Package ahrs implements the attitude, altitude and angle-of-attack filters
// for the OnSpeed fusion core: a 6-state extended Kalman filter, a Madgwick
// quaternion filter, a 3-state altitude/VSI Kalman filter, a Savitzky-Golay
// derivative filter and the pressure-based AOA calculator.
package ahrs

import (
	"math"
)

const (
	Pi = math.Pi
	// G is the acceleration due to gravity, m/s².
	G = 9.80665
	// Deg converts degrees to radians when multiplied.
	Deg = Pi / 180
)

// Measurement holds one cycle of compensated sensor data for an attitude
// backend. Accelerations are in m/s² with az = -G in level flight;
// rates are in rad/s; Gamma is the flight path angle in radians.
type Measurement struct {
	Ax, Ay, Az float64
	P, Q, R    float64
	Gamma      float64
}

// AttitudeBackend is the common face of the EKF6 and Madgwick filters.
// Angles passed to Init are radians; the Deg accessors return degrees.
type AttitudeBackend interface {
	Init(phi0, theta0 float64)
	Update(m *Measurement, dt float64)
	RollDeg() float64
	PitchDeg() float64
	// DerivedAOADeg returns the backend's angle-of-attack estimate given
	// the current flight path angle in degrees.
	DerivedAOADeg(gammaDeg float64) float64
}

var (
	_ AttitudeBackend = (*EKF6)(nil)
	_ AttitudeBackend = (*Madgwick)(nil)
)

// AccelPitch returns the pitch angle in degrees implied by a body-frame
// specific-force triple in g (forward, lateral, vertical), z-down frame
// where level flight reads (0, 0, -1).
func AccelPitch(aFwd, aLat, aVert float64) float64 {
	return math.Atan2(aFwd, math.Sqrt(aLat*aLat+aVert*aVert)) / Deg
}

// AccelRoll returns the roll angle in degrees implied by a body-frame
// specific-force triple in g, same convention as AccelPitch.
func AccelRoll(aFwd, aLat, aVert float64) float64 {
	return math.Atan2(-aLat, -aVert) / Deg
}

// MapFloat linearly maps x from [inMin, inMax] to [outMin, outMax],
// extrapolating outside the input range.
func MapFloat(x, inMin, inMax, outMin, outMax float64) float64 {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}
