/*
	ahrs.go: Per-cycle fusion pipeline. Runs at IMU cadence under the
	AHRS mutex: installation-bias rotation, accelerometer smoothing and
	centripetal/tangential compensation, attitude backend update
	(Madgwick or EKF6), earth-vertical acceleration, altitude/VSI Kalman
	filter, flight path and derived AOA.
*/

package main

import (
	"math"
	"sync"

	"github.com/flyonspeed/OnSpeed-Gen3/ahrs"
	"github.com/flyonspeed/OnSpeed-Gen3/sensors"
)

const (
	// One-pole accelerometer smoothing.
	accSmoothing           = 0.060899
	accSmoothingComplement = 1.0 - accSmoothing

	// Airspeed-derivative smoothing, calibrated at the IMU rate; the
	// effective coefficient is rescaled to the actual IAS update period.
	iasSmoothing = 0.0179
	iasTauFactor = 1.0/iasSmoothing - 1.0

	// Below this IAS the VSI is clamped and the EKF alpha covariance is
	// considered stale.
	iasAliveThreshold = 25.0
)

type ahrsContext struct {
	mu sync.Mutex

	imuSampleRate float64
	imuDeltaTime  float64

	// Precomputed installation-bias trig; yaw bias is always zero and is
	// folded into the rotation expressions directly.
	sinPitch, cosPitch float64
	sinRoll, cosRoll   float64

	useEKF bool
	ekf    *ahrs.EKF6
	madg   *ahrs.Madgwick

	kalman ahrs.AltKalman

	gxAvg, gyAvg, gzAvg *ahrs.RunningAverage

	tas            float64 // m/s
	prevTAS        float64
	tasDotSmoothed float64 // m/s²
	lastIasMicros  int64

	accelFwdSmoothed  float64
	accelLatSmoothed  float64
	accelVertSmoothed float64

	smoothedPitch float64 // deg
	smoothedRoll  float64 // deg
	flightPath    float64 // deg
	derivedAOA    float64 // deg
	earthVertG    float64 // g, gravity removed
	kalmanAlt     float64 // m
	kalmanVSI     float64 // m/s

	iasWasBelowThreshold bool
}

var myAHRS ahrsContext

// init prepares the pipeline from settings and the first IMU sample.
func (a *ahrsContext) init(first sensors.IMUSample, paltFt float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.imuSampleRate = float64(globalSettings.IMUSampleRate)
	a.imuDeltaTime = 1.0 / a.imuSampleRate

	pitchBiasRad := globalSettings.PitchBias * ahrs.Deg
	rollBiasRad := globalSettings.RollBias * ahrs.Deg
	a.sinPitch = math.Sin(pitchBiasRad)
	a.cosPitch = math.Cos(pitchBiasRad)
	a.sinRoll = math.Sin(rollBiasRad)
	a.cosRoll = math.Cos(rollBiasRad)

	n := globalSettings.GyroSmoothing
	if n < 1 {
		n = 1
	}
	a.gxAvg = ahrs.NewRunningAverage(n)
	a.gyAvg = ahrs.NewRunningAverage(n)
	a.gzAvg = ahrs.NewRunningAverage(n)

	a.accelFwdSmoothed = 0
	a.accelLatSmoothed = 0
	a.accelVertSmoothed = -1 // level-flight specific force, z-down frame
	a.iasWasBelowThreshold = true
	a.tas = 0
	a.prevTAS = 0
	a.tasDotSmoothed = 0
	a.lastIasMicros = 0

	// Initial attitude from the accelerometers plus the installation bias.
	a.smoothedPitch = ahrs.AccelPitch(first.Ax, first.Ay, first.Az) + globalSettings.PitchBias
	a.smoothedRoll = ahrs.AccelRoll(first.Ax, first.Ay, first.Az) + globalSettings.RollBias
	a.flightPath = 0

	a.useEKF = globalSettings.AHRSAlgorithm == "ekf6"
	if a.useEKF {
		a.ekf = ahrs.NewEKF6(globalSettings.EKF)
		a.ekf.Init(a.smoothedRoll*ahrs.Deg, a.smoothedPitch*ahrs.Deg)
	} else {
		a.madg = ahrs.NewMadgwick(0)
		a.madg.Begin(a.imuSampleRate, a.smoothedPitch, a.smoothedRoll)
	}

	a.kalman.Configure(0.79078, 26.0638, 1e-11, ft2m(paltFt), 0, 0)
}

// Process runs one fusion cycle. dt is the measured IMU period; invalid
// values fall back to the nominal period.
func (a *ahrsContext) Process(s sensors.IMUSample, dt float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		dt = a.imuDeltaTime
	}

	mySituation.muPressure.Lock()
	ias := mySituation.IAS
	paltFt := mySituation.Palt
	oatC := mySituation.OatC
	oatValid := mySituation.OatValid
	iasMicros := mySituation.IasUpdateMicros
	mySituation.muPressure.Unlock()

	mySituation.muEfis.Lock()
	efisOat := mySituation.EfisOatC
	efisOatValid := mySituation.EfisOatValid
	mySituation.muEfis.Unlock()

	// Best available OAT for density-corrected TAS: EFIS feed when it is
	// the calibration source, the onewire probe otherwise.
	haveOat := false
	var oat float64
	if globalSettings.CalSource == "EFIS" && globalSettings.ReadEfisData && efisOatValid {
		oat = efisOat
		haveOat = oat > -100 && oat < 100
	}
	if !haveOat && globalSettings.OatSensorEnabled && oatValid {
		oat = oatC
		haveOat = oat > -100 && oat < 100
	}

	if haveOat {
		// Density-corrected TAS via density altitude.
		const kelvin = 273.15
		const tempRate = 0.00198119993 // ISA lapse, K/ft
		isaTempK := 15 - tempRate*paltFt + kelvin
		oatK := oat + kelvin
		da := paltFt + (isaTempK/tempRate)*(1-math.Pow(isaTempK/oatK, 0.2349690))
		a.tas = kts2mps(ias / math.Pow(1-6.8755856e-6*da, 2.12794))
	} else {
		a.tas = kts2mps(ias * (1 + paltFt/1000*0.02))
	}

	// TAS derivative at the IAS update cadence (50 Hz), not the IMU
	// cadence: the smoother coefficient adapts to the measured period.
	if iasMicros != a.lastIasMicros {
		if a.lastIasMicros == 0 {
			a.lastIasMicros = iasMicros
			a.prevTAS = a.tas
			a.tasDotSmoothed = 0
		} else {
			iasDt := float64(iasMicros-a.lastIasMicros) * 1e-6
			a.lastIasMicros = iasMicros
			if math.IsNaN(iasDt) || math.IsInf(iasDt, 0) || iasDt <= 0 {
				iasDt = 1.0 / float64(globalSettings.PressureSampleRate)
			}
			tasDiff := a.tas - a.prevTAS
			a.prevTAS = a.tas

			iasTau := a.imuDeltaTime * iasTauFactor
			alpha := iasDt / (iasTau + iasDt)
			tasDot := tasDiff / iasDt
			a.tasDotSmoothed = alpha*tasDot + (1-alpha)*a.tasDotSmoothed
		}
	}

	// Installation-corrected gyro and accel values: rotation matrix with
	// the configured pitch/roll biases and yaw = 0 baked in.
	sp, cp := a.sinPitch, a.cosPitch
	sr, cr := a.sinRoll, a.cosRoll

	rollRateCorr := s.Gx*cp + s.Gy*(sr*sp) + s.Gz*(cr*sp)
	pitchRateCorr := s.Gy*cr - s.Gz*sr
	yawRateCorr := -s.Gx*sp + s.Gy*(sr*cp) + s.Gz*(cp*cr)

	accelVertCorr := -s.Ax*sp + s.Ay*(sr*cp) + s.Az*(cr*cp)
	accelLatCorr := s.Ay*cr - s.Az*sr
	accelFwdCorr := s.Ax*cp + s.Ay*(sr*sp) + s.Az*(cr*sp)

	// Averaged gyro values for display and the over-G derate; not used
	// by the attitude filters.
	a.gxAvg.Add(rollRateCorr)
	a.gyAvg.Add(pitchRateCorr)
	a.gzAvg.Add(yawRateCorr)
	gRoll := a.gxAvg.Average()
	gPitch := a.gyAvg.Average()
	gYaw := a.gzAvg.Average()

	// Linear-acceleration compensation. Tangential from TASdot;
	// centripetal from TAS x angular rate. With the EKF backend the
	// rates are corrected with the previous cycle's bias estimates.
	accelFwdCompFactor := mps2g(a.tasDotSmoothed)

	yawRateForComp := yawRateCorr
	pitchRateForComp := pitchRateCorr
	if a.useEKF {
		prev := a.ekf.State()
		yawRateForComp -= prev.BrDps()
		pitchRateForComp -= prev.BqDps()
	}
	accelLatCompFactor := mps2g(a.tas * yawRateForComp * ahrs.Deg)
	accelVertCompFactor := mps2g(a.tas * pitchRateForComp * ahrs.Deg)

	a.accelFwdSmoothed = accSmoothing*accelFwdCorr + accSmoothingComplement*a.accelFwdSmoothed
	accelFwdComp := a.accelFwdSmoothed - accelFwdCompFactor

	a.accelLatSmoothed = accSmoothing*accelLatCorr + accSmoothingComplement*a.accelLatSmoothed
	accelLatComp := a.accelLatSmoothed - accelLatCompFactor

	a.accelVertSmoothed = accSmoothing*accelVertCorr + accSmoothingComplement*a.accelVertSmoothed
	accelVertComp := a.accelVertSmoothed + accelVertCompFactor

	var biasP, biasQ, biasR float64
	if a.useEKF {
		// The EKF measurement model wants m/s² with az = -G in level
		// flight; the pipeline already carries z-down specific force in
		// g, so only the units change.
		m := ahrs.Measurement{
			Ax:    accelFwdComp * ahrs.G,
			Ay:    accelLatComp * ahrs.G,
			Az:    accelVertComp * ahrs.G,
			P:     rollRateCorr * ahrs.Deg,
			Q:     pitchRateCorr * ahrs.Deg,
			R:     yawRateCorr * ahrs.Deg,
			Gamma: a.flightPath * ahrs.Deg, // previous cycle's estimate
		}
		a.ekf.Update(&m, dt)
		st := a.ekf.State()
		a.smoothedPitch = st.ThetaDeg()
		a.smoothedRoll = st.PhiDeg()
		biasP, biasQ, biasR = st.BpDps(), st.BqDps(), st.BrDps()

		// Earth-vertical acceleration (positive up, gravity removed):
		// project the z-down specific force onto earth-down and negate.
		sph, cph := math.Sin(st.Phi), math.Cos(st.Phi)
		sth, cth := math.Sin(st.Theta), math.Cos(st.Theta)
		a.earthVertG = sth*accelFwdCorr - sph*cth*accelLatCorr - cph*cth*accelVertCorr - 1
	} else {
		a.madg.SetDeltaTime(dt)
		a.madg.UpdateIMU(rollRateCorr, pitchRateCorr, yawRateCorr,
			accelFwdComp, accelLatComp, accelVertComp)
		a.smoothedPitch = a.madg.Pitch()
		a.smoothedRoll = a.madg.Roll()

		// Earth-vertical acceleration via the quaternion projection,
		// negated from earth-down for the same reason as the EKF path.
		q0, q1, q2, q3 := a.madg.Quaternion()
		a.earthVertG = -2*(q1*q3-q0*q2)*accelFwdCorr -
			2*(q0*q1+q2*q3)*accelLatCorr -
			(q0*q0-q1*q1-q2*q2+q3*q3)*accelVertCorr - 1
	}

	a.kalmanAlt, a.kalmanVSI = a.kalman.Update(ft2m(paltFt), g2mps(a.earthVertG), dt)

	// Zero the VSI until airspeed is alive; on the first cycle above the
	// threshold let the EKF forget its ground-accumulated alpha
	// covariance.
	if ias < iasAliveThreshold {
		a.kalmanVSI = 0
		a.iasWasBelowThreshold = true
	} else if a.iasWasBelowThreshold && a.useEKF {
		a.ekf.ResetAlphaCovariance()
		a.iasWasBelowThreshold = false
	} else {
		a.iasWasBelowThreshold = false
	}

	if ias != 0 && a.tas > 0 {
		a.flightPath = math.Asin(clamp(a.kalmanVSI/a.tas, -1, 1)) / ahrs.Deg
	} else {
		a.flightPath = 0
	}

	if a.useEKF {
		a.derivedAOA = a.ekf.State().AlphaDeg()
	} else {
		a.derivedAOA = a.smoothedPitch - a.flightPath
	}

	// Publish the attitude group.
	mySituation.muAttitude.Lock()
	mySituation.AHRSRoll = a.smoothedRoll
	mySituation.AHRSPitch = a.smoothedPitch
	mySituation.FlightPath = a.flightPath
	mySituation.DerivedAOA = a.derivedAOA
	mySituation.KalmanAlt = a.kalmanAlt
	mySituation.KalmanVSI = a.kalmanVSI
	mySituation.AccelFwdCorr = accelFwdCorr
	mySituation.AccelLatCorr = accelLatCorr
	mySituation.AccelVertCorr = accelVertCorr
	mySituation.AccelFwdSmooth = a.accelFwdSmoothed
	mySituation.AccelLatSmooth = a.accelLatSmoothed
	mySituation.AccelVertSmooth = a.accelVertSmoothed
	mySituation.AccelFwdComp = accelFwdComp
	mySituation.AccelLatComp = accelLatComp
	mySituation.AccelVertComp = accelVertComp
	mySituation.GyroRoll = gRoll
	mySituation.GyroPitch = gPitch
	mySituation.GyroYaw = gYaw
	mySituation.BiasP = biasP
	mySituation.BiasQ = biasQ
	mySituation.BiasR = biasR
	mySituation.LastAttitudeTime = onspeedClock.Now()
	mySituation.muAttitude.Unlock()
}

// TAS returns the current true airspeed in m/s.
func (a *ahrsContext) TAS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tas
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
