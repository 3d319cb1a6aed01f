package main

import (
	"math"
	"testing"

	"github.com/flyonspeed/OnSpeed-Gen3/sensors"
)

func levelSample() sensors.IMUSample {
	return sensors.IMUSample{Az: -1}
}

func runPipeline(s sensors.IMUSample, seconds float64) {
	n := int(seconds * float64(globalSettings.IMUSampleRate))
	dt := 1.0 / float64(globalSettings.IMUSampleRate)
	for i := 0; i < n; i++ {
		myAHRS.Process(s, dt)
	}
}

func TestPipelineLevelFlightEKF(t *testing.T) {
	setupTest()
	globalSettings.AHRSAlgorithm = "ekf6"
	myAHRS.init(levelSample(), 0)
	runPipeline(levelSample(), 3)

	mySituation.muAttitude.Lock()
	defer mySituation.muAttitude.Unlock()
	if math.Abs(mySituation.AHRSPitch) > 0.05 || math.Abs(mySituation.AHRSRoll) > 0.05 {
		t.Errorf("level EKF pipeline: pitch=%g roll=%g", mySituation.AHRSPitch, mySituation.AHRSRoll)
	}
	// IAS is zero so the VSI is clamped.
	if mySituation.KalmanVSI != 0 {
		t.Errorf("VSI %g with dead airspeed, want 0", mySituation.KalmanVSI)
	}
	if mySituation.FlightPath != 0 {
		t.Errorf("flight path %g with dead airspeed", mySituation.FlightPath)
	}
	// Level and unaccelerated: compensated vertical accel stays near -1 g
	// (z-down specific force).
	if math.Abs(mySituation.AccelVertComp+1) > 0.05 {
		t.Errorf("vertical accel %g, want ~-1", mySituation.AccelVertComp)
	}
}

func TestPipelineLevelFlightMadgwick(t *testing.T) {
	setupTest()
	globalSettings.AHRSAlgorithm = "madgwick"
	myAHRS.init(levelSample(), 0)
	runPipeline(levelSample(), 3)

	mySituation.muAttitude.Lock()
	defer mySituation.muAttitude.Unlock()
	if math.Abs(mySituation.AHRSPitch) > 0.05 || math.Abs(mySituation.AHRSRoll) > 0.05 {
		t.Errorf("level Madgwick pipeline: pitch=%g roll=%g", mySituation.AHRSPitch, mySituation.AHRSRoll)
	}
}

// With zero installation bias the rotation is the identity; with a pitch
// bias the corrected axes tilt accordingly.
func TestInstallationRotation(t *testing.T) {
	setupTest()
	globalSettings.PitchBias = 0
	globalSettings.RollBias = 0
	myAHRS.init(levelSample(), 0)
	s := sensors.IMUSample{Ax: 0.1, Ay: -0.2, Az: -0.97, Gx: 3, Gy: -2, Gz: 1}
	myAHRS.Process(s, 1.0/208)

	mySituation.muAttitude.Lock()
	if math.Abs(mySituation.AccelVertCorr+0.97) > 1e-9 ||
		math.Abs(mySituation.AccelLatCorr+0.2) > 1e-9 ||
		math.Abs(mySituation.AccelFwdCorr-0.1) > 1e-9 {
		t.Errorf("identity rotation changed accels: %g %g %g",
			mySituation.AccelFwdCorr, mySituation.AccelLatCorr, mySituation.AccelVertCorr)
	}
	mySituation.muAttitude.Unlock()

	// A 90° pitch bias swaps forward and vertical.
	globalSettings.PitchBias = 90
	myAHRS.init(levelSample(), 0)
	myAHRS.Process(sensors.IMUSample{Ax: 1}, 1.0/208)
	mySituation.muAttitude.Lock()
	defer mySituation.muAttitude.Unlock()
	if math.Abs(mySituation.AccelVertCorr+1) > 1e-9 {
		t.Errorf("90° pitch bias: vert = %g, want -1", mySituation.AccelVertCorr)
	}
	if math.Abs(mySituation.AccelFwdCorr) > 1e-9 {
		t.Errorf("90° pitch bias: fwd = %g, want 0", mySituation.AccelFwdCorr)
	}
}

func TestPipelineTAS(t *testing.T) {
	setupTest()
	globalSettings.OatSensorEnabled = false
	myAHRS.init(levelSample(), 0)

	mySituation.muPressure.Lock()
	mySituation.IAS = 100
	mySituation.Palt = 5000
	mySituation.muPressure.Unlock()

	myAHRS.Process(levelSample(), 1.0/208)

	// Without OAT: TAS = IAS * (1 + Palt/1000 * 0.02).
	want := kts2mps(100 * 1.1)
	if got := myAHRS.TAS(); math.Abs(got-want) > 1e-9 {
		t.Errorf("TAS without OAT = %g m/s, want %g", got, want)
	}

	// With standard-day OAT at sea level the density altitude is zero
	// and TAS equals IAS.
	globalSettings.OatSensorEnabled = true
	mySituation.muPressure.Lock()
	mySituation.Palt = 0
	mySituation.OatC = 15
	mySituation.OatValid = true
	mySituation.muPressure.Unlock()
	myAHRS.Process(levelSample(), 1.0/208)
	want = kts2mps(100)
	if got := myAHRS.TAS(); math.Abs(got-want) > 0.05 {
		t.Errorf("TAS at ISA sea level = %g m/s, want %g", got, want)
	}
}

// A genuine pitch-up maneuver through the full pipeline with the
// Madgwick backend: constant pitch rate with the gravity trace tilting
// to match, then a static hold. Published pitch must come out nose-up
// positive at the integrated angle.
func TestPipelineMadgwickPitchManeuver(t *testing.T) {
	setupTest()
	globalSettings.AHRSAlgorithm = "madgwick"
	myAHRS.init(levelSample(), 0)

	dt := 1.0 / 208.0
	iterations := 208 * 3
	for i := 0; i < iterations; i++ {
		pitch := float64(i) / float64(iterations) * 30 * math.Pi / 180
		s := sensors.IMUSample{
			Ax: math.Sin(pitch),
			Az: -math.Cos(pitch),
			Gy: 10, // deg/s nose up
		}
		myAHRS.Process(s, dt)
	}
	mySituation.muAttitude.Lock()
	got := mySituation.AHRSPitch
	mySituation.muAttitude.Unlock()
	if math.Abs(got-30) > 3 {
		t.Errorf("pitch after maneuver: %g deg, want ~30", got)
	}

	// Hold the 30° attitude; the filter settles onto the gravity trace.
	hold := sensors.IMUSample{
		Ax: math.Sin(30 * math.Pi / 180),
		Az: -math.Cos(30 * math.Pi / 180),
	}
	runPipeline(hold, 3)
	mySituation.muAttitude.Lock()
	got = mySituation.AHRSPitch
	mySituation.muAttitude.Unlock()
	if math.Abs(got-30) > 1 {
		t.Errorf("pitch after hold: %g deg, want 30", got)
	}
}

// Same through-the-pipeline check for a roll-right maneuver.
func TestPipelineMadgwickRollManeuver(t *testing.T) {
	setupTest()
	globalSettings.AHRSAlgorithm = "madgwick"
	myAHRS.init(levelSample(), 0)

	dt := 1.0 / 208.0
	iterations := 208 * 2
	for i := 0; i < iterations; i++ {
		roll := float64(i) / float64(iterations) * 30 * math.Pi / 180
		s := sensors.IMUSample{
			Ay: -math.Sin(roll),
			Az: -math.Cos(roll),
			Gx: 15, // deg/s right wing down
		}
		myAHRS.Process(s, dt)
	}

	hold := sensors.IMUSample{
		Ay: -math.Sin(30 * math.Pi / 180),
		Az: -math.Cos(30 * math.Pi / 180),
	}
	runPipeline(hold, 3)
	mySituation.muAttitude.Lock()
	got := mySituation.AHRSRoll
	mySituation.muAttitude.Unlock()
	if math.Abs(got-30) > 1 {
		t.Errorf("roll after hold: %g deg, want 30", got)
	}
}

// Climbing flight: feed a rising pressure altitude with airspeed alive
// and check the flight path angle and derived AOA come out consistent.
func TestPipelineFlightPath(t *testing.T) {
	setupTest()
	globalSettings.AHRSAlgorithm = "madgwick"
	globalSettings.OatSensorEnabled = false
	myAHRS.init(levelSample(), 0)

	dt := 1.0 / 208.0
	climbMps := 2.5
	altFt := 0.0
	for i := 0; i < 208*10; i++ {
		altFt += m2ft(climbMps * dt)
		mySituation.muPressure.Lock()
		mySituation.IAS = 100
		mySituation.Palt = altFt
		mySituation.muPressure.Unlock()
		myAHRS.Process(levelSample(), dt)
	}

	mySituation.muAttitude.Lock()
	defer mySituation.muAttitude.Unlock()
	if math.Abs(mySituation.KalmanVSI-climbMps) > 0.1 {
		t.Errorf("climb VSI = %g, want %g", mySituation.KalmanVSI, climbMps)
	}
	wantGamma := math.Asin(climbMps/myAHRS.TAS()) * 180 / math.Pi
	if math.Abs(mySituation.FlightPath-wantGamma) > 0.2 {
		t.Errorf("flight path = %g deg, want %g", mySituation.FlightPath, wantGamma)
	}
	// Madgwick derived AOA = pitch - gamma.
	wantAOA := mySituation.AHRSPitch - mySituation.FlightPath
	if math.Abs(mySituation.DerivedAOA-wantAOA) > 1e-9 {
		t.Errorf("derived AOA = %g, want %g", mySituation.DerivedAOA, wantAOA)
	}
}
