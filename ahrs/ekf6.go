package ahrs

import (
	"math"
)

const (
	ekfStates = 6
	ekfMeas   = 4

	// Below this |cos(theta)| the Euler kinematics are clamped; tan(theta)
	// is then bounded near ±1000 and attitudes beyond ±85° pitch are
	// tracked only approximately.
	singularityThreshold = 1e-3

	// Gauss-Jordan pivot floor for the 4x4 innovation inverse.
	innovationPivotMin = 1e-10
)

// EKF6Config holds the filter tuning. All variances must be > 0.
type EKF6Config struct {
	QAttitude float64 // attitude process noise, rad²
	QAlpha    float64 // AOA process noise, rad²
	QBias     float64 // gyro bias drift, (rad/s)²
	RAccel    float64 // accelerometer noise, (m/s²)²
	RAlpha    float64 // derived-alpha noise, rad²
	PAttitude float64 // initial attitude uncertainty, rad²
	PAlpha    float64 // initial AOA uncertainty, rad²
	PBias     float64 // initial bias uncertainty, (rad/s)²
}

// DefaultEKF6Config returns the production tuning.
func DefaultEKF6Config() EKF6Config {
	return EKF6Config{
		QAttitude: 1e-3,
		QAlpha:    1e-4,
		QBias:     1e-8,
		RAccel:    0.5,
		RAlpha:    1e-2,
		PAttitude: 0.1,
		PAlpha:    0.1,
		PBias:     1e-2,
	}
}

// EKF6State is the filter state: roll, pitch and AOA in radians, gyro
// biases in rad/s.
type EKF6State struct {
	Phi, Theta, Alpha float64
	Bp, Bq, Br        float64
}

func (s EKF6State) PhiDeg() float64   { return s.Phi / Deg }
func (s EKF6State) ThetaDeg() float64 { return s.Theta / Deg }
func (s EKF6State) AlphaDeg() float64 { return s.Alpha / Deg }
func (s EKF6State) BpDps() float64    { return s.Bp / Deg }
func (s EKF6State) BqDps() float64    { return s.Bq / Deg }
func (s EKF6State) BrDps() float64    { return s.Br / Deg }

// EKF6 is a 6-state extended Kalman filter estimating roll, pitch, angle
// of attack and the three gyro biases from accelerometer, gyro and
// flight-path measurements.
//
// State x = (phi, theta, alpha, bp, bq, br). Measurements
// z = (ax, ay, az, alpha_meas) with alpha_meas = theta - gamma. The
// accelerometer convention is az = -G in level flight.
//
// The predict and correct steps exploit the sparsity of the Jacobians:
// F rows 2-5 are identity and H has six non-zero entries. The covariance
// update uses the Joseph form to preserve symmetry and positive
// semi-definiteness in float arithmetic.
type EKF6 struct {
	cfg EKF6Config
	x   [ekfStates]float64
	p   [ekfStates][ekfStates]float64
	q   [ekfStates]float64 // process noise diagonal
	r   [ekfMeas]float64   // measurement noise diagonal
}

// NewEKF6 constructs a filter with the given tuning and a zeroed state.
func NewEKF6(cfg EKF6Config) *EKF6 {
	k := &EKF6{cfg: cfg}
	k.q = [ekfStates]float64{cfg.QAttitude, cfg.QAttitude, cfg.QAlpha, cfg.QBias, cfg.QBias, cfg.QBias}
	k.r = [ekfMeas]float64{cfg.RAccel, cfg.RAccel, cfg.RAccel, cfg.RAlpha}
	k.Init(0, 0)
	return k
}

// Init resets the state to (phi0, theta0, 0, 0, 0, 0) and the covariance
// to the configured initial diagonal.
func (k *EKF6) Init(phi0, theta0 float64) {
	k.x = [ekfStates]float64{phi0, theta0, 0, 0, 0, 0}
	k.p = [ekfStates][ekfStates]float64{}
	k.p[0][0] = k.cfg.PAttitude
	k.p[1][1] = k.cfg.PAttitude
	k.p[2][2] = k.cfg.PAlpha
	k.p[3][3] = k.cfg.PBias
	k.p[4][4] = k.cfg.PBias
	k.p[5][5] = k.cfg.PBias
}

// Update runs one predict/correct cycle. dt must be positive; callers
// substitute the nominal sample period when it is not.
func (k *EKF6) Update(m *Measurement, dt float64) {
	k.predict(m.P, m.Q, m.R, dt)
	k.correct(m.Ax, m.Ay, m.Az, m.Gamma)
}

// State returns the current estimate.
func (k *EKF6) State() EKF6State {
	return EKF6State{k.x[0], k.x[1], k.x[2], k.x[3], k.x[4], k.x[5]}
}

// Covariance returns a copy of the 6x6 state covariance.
func (k *EKF6) Covariance() [ekfStates][ekfStates]float64 {
	return k.p
}

// ResetAlphaCovariance zeroes row and column 2 of P and restores the
// configured initial alpha variance. Called once when airspeed first
// comes alive so the first in-flight alpha correction is not biased by
// covariance accumulated on the ground.
func (k *EKF6) ResetAlphaCovariance() {
	for i := 0; i < ekfStates; i++ {
		k.p[2][i] = 0
		k.p[i][2] = 0
	}
	k.p[2][2] = k.cfg.PAlpha
}

func (k *EKF6) predict(p, q, r, dt float64) {
	phi := k.x[0]
	theta := k.x[1]

	pc := p - k.x[3]
	qc := q - k.x[4]
	rc := r - k.x[5]

	sph := math.Sin(phi)
	cph := math.Cos(phi)
	cth := math.Cos(theta)

	// Singularity guard at theta = ±90°.
	if math.Abs(cth) < singularityThreshold {
		if cth >= 0 {
			cth = singularityThreshold
		} else {
			cth = -singularityThreshold
		}
	}
	sth := math.Sin(theta)
	tth := sth / cth

	phiDot := pc + qc*sph*tth + rc*cph*tth
	thetaDot := qc*cph - rc*sph

	k.x[0] = phi + dt*phiDot
	k.x[1] = theta + dt*thetaDot
	// alpha and the biases are modeled constant; their rows of F are
	// identity and only Q moves their covariance.

	// Non-trivial entries of F = I + dt*A (rows 0 and 1 only).
	f00 := 1 + dt*(qc*cph*tth-rc*sph*tth)
	sec2 := 1 + tth*tth
	f01 := dt * (qc*sph*sec2 + rc*cph*sec2)
	f03 := -dt
	f04 := -dt * sph * tth
	f05 := -dt * cph * tth

	f10 := dt * (-qc*sph - rc*cph)
	f14 := -dt * cph
	f15 := dt * sph

	// FP = F*P. Rows 2-5 of F are identity so those rows copy P.
	var fp [ekfStates][ekfStates]float64
	for j := 0; j < ekfStates; j++ {
		fp[0][j] = f00*k.p[0][j] + f01*k.p[1][j] + f03*k.p[3][j] + f04*k.p[4][j] + f05*k.p[5][j]
		fp[1][j] = f10*k.p[0][j] + k.p[1][j] + f14*k.p[4][j] + f15*k.p[5][j]
	}
	for i := 2; i < ekfStates; i++ {
		fp[i] = k.p[i]
	}

	// P = FP*F' + Q. Columns 2-5 of F' are identity so only columns 0
	// and 1 need dot products.
	var pn [ekfStates][ekfStates]float64
	for i := 0; i < ekfStates; i++ {
		pn[i][0] = fp[i][0]*f00 + fp[i][1]*f01 + fp[i][3]*f03 + fp[i][4]*f04 + fp[i][5]*f05
		pn[i][1] = fp[i][0]*f10 + fp[i][1] + fp[i][4]*f14 + fp[i][5]*f15
		pn[i][2] = fp[i][2]
		pn[i][3] = fp[i][3]
		pn[i][4] = fp[i][4]
		pn[i][5] = fp[i][5]
	}
	for i := 0; i < ekfStates; i++ {
		pn[i][i] += k.q[i]
	}
	k.p = pn
}

func (k *EKF6) correct(ax, ay, az, gamma float64) {
	phi := k.x[0]
	theta := k.x[1]
	alpha := k.x[2]

	sph := math.Sin(phi)
	cph := math.Cos(phi)
	sth := math.Sin(theta)
	cth := math.Cos(theta)

	zPred := [ekfMeas]float64{
		G * sth,
		-G * cth * sph,
		-G * cth * cph,
		alpha,
	}

	// Non-zero entries of the 4x6 measurement Jacobian H. H[3][2] = 1.
	h01 := G * cth
	h10 := -G * cth * cph
	h11 := G * sth * sph
	h20 := G * cth * sph
	h21 := G * sth * cph

	alphaMeas := theta - gamma
	z := [ekfMeas]float64{ax, ay, az, alphaMeas}

	var y [ekfMeas]float64
	for i := 0; i < ekfMeas; i++ {
		y[i] = z[i] - zPred[i]
	}

	// HP = H*P, two non-zeros per row (plus H32 = 1).
	var hp [ekfMeas][ekfStates]float64
	for j := 0; j < ekfStates; j++ {
		hp[0][j] = h01 * k.p[1][j]
		hp[1][j] = h10*k.p[0][j] + h11*k.p[1][j]
		hp[2][j] = h20*k.p[0][j] + h21*k.p[1][j]
		hp[3][j] = k.p[2][j]
	}

	// S = HP*H' + R.
	var s [ekfMeas][ekfMeas]float64
	for i := 0; i < ekfMeas; i++ {
		s[i][0] = hp[i][1] * h01
		s[i][1] = hp[i][0]*h10 + hp[i][1]*h11
		s[i][2] = hp[i][0]*h20 + hp[i][1]*h21
		s[i][3] = hp[i][2]
	}
	for i := 0; i < ekfMeas; i++ {
		s[i][i] += k.r[i]
	}

	sInv, ok := invert4x4(s)
	if !ok {
		// Singular innovation: skip this correction, keep x and P.
		return
	}

	// PHt = P*H'.
	var pht [ekfStates][ekfMeas]float64
	for i := 0; i < ekfStates; i++ {
		pht[i][0] = k.p[i][1] * h01
		pht[i][1] = k.p[i][0]*h10 + k.p[i][1]*h11
		pht[i][2] = k.p[i][0]*h20 + k.p[i][1]*h21
		pht[i][3] = k.p[i][2]
	}

	// K = PHt * S⁻¹. S⁻¹ is generally full.
	var kk [ekfStates][ekfMeas]float64
	for i := 0; i < ekfStates; i++ {
		for j := 0; j < ekfMeas; j++ {
			var sum float64
			for l := 0; l < ekfMeas; l++ {
				sum += pht[i][l] * sInv[l][j]
			}
			kk[i][j] = sum
		}
	}

	for i := 0; i < ekfStates; i++ {
		for j := 0; j < ekfMeas; j++ {
			k.x[i] += kk[i][j] * y[j]
		}
	}

	// IKH = I - K*H. H columns 3-5 are zero so those columns of IKH are
	// identity columns.
	var ikh [ekfStates][ekfStates]float64
	for i := 0; i < ekfStates; i++ {
		ikh[i][0] = -kk[i][1]*h10 - kk[i][2]*h20
		ikh[i][1] = -kk[i][0]*h01 - kk[i][1]*h11 - kk[i][2]*h21
		ikh[i][2] = -kk[i][3]
		if i == 0 {
			ikh[i][0]++
		}
		if i == 1 {
			ikh[i][1]++
		}
		if i == 2 {
			ikh[i][2]++
		}
		if i >= 3 {
			ikh[i][i] = 1
		}
	}

	// Joseph form: P = IKH*P*IKH' + K*R*K'.
	var ikhp [ekfStates][ekfStates]float64
	for i := 0; i < ekfStates; i++ {
		for j := 0; j < ekfStates; j++ {
			var sum float64
			for l := 0; l < ekfStates; l++ {
				sum += ikh[i][l] * k.p[l][j]
			}
			ikhp[i][j] = sum
		}
	}
	var pn [ekfStates][ekfStates]float64
	for i := 0; i < ekfStates; i++ {
		for j := 0; j < ekfStates; j++ {
			var sum float64
			for l := 0; l < ekfStates; l++ {
				sum += ikhp[i][l] * ikh[j][l]
			}
			for l := 0; l < ekfMeas; l++ {
				sum += kk[i][l] * k.r[l] * kk[j][l]
			}
			pn[i][j] = sum
		}
	}
	k.p = pn
}

// invert4x4 inverts a 4x4 matrix by Gauss-Jordan elimination with partial
// pivoting. Returns ok = false when the largest available pivot falls
// below the singularity floor.
func invert4x4(a [ekfMeas][ekfMeas]float64) (inv [ekfMeas][ekfMeas]float64, ok bool) {
	var work [ekfMeas][2 * ekfMeas]float64
	for i := 0; i < ekfMeas; i++ {
		for j := 0; j < ekfMeas; j++ {
			work[i][j] = a[i][j]
		}
		work[i][i+ekfMeas] = 1
	}

	for col := 0; col < ekfMeas; col++ {
		maxRow := col
		maxVal := math.Abs(work[col][col])
		for row := col + 1; row < ekfMeas; row++ {
			if v := math.Abs(work[row][col]); v > maxVal {
				maxVal = v
				maxRow = row
			}
		}
		if maxVal < innovationPivotMin {
			return inv, false
		}
		if maxRow != col {
			work[col], work[maxRow] = work[maxRow], work[col]
		}

		pivot := work[col][col]
		for j := 0; j < 2*ekfMeas; j++ {
			work[col][j] /= pivot
		}
		for row := 0; row < ekfMeas; row++ {
			if row == col {
				continue
			}
			factor := work[row][col]
			for j := 0; j < 2*ekfMeas; j++ {
				work[row][j] -= factor * work[col][j]
			}
		}
	}

	for i := 0; i < ekfMeas; i++ {
		for j := 0; j < ekfMeas; j++ {
			inv[i][j] = work[i][j+ekfMeas]
		}
	}
	return inv, true
}

// RollDeg implements AttitudeBackend.
func (k *EKF6) RollDeg() float64 { return k.x[0] / Deg }

// PitchDeg implements AttitudeBackend.
func (k *EKF6) PitchDeg() float64 { return k.x[1] / Deg }

// DerivedAOADeg implements AttitudeBackend. The EKF estimates alpha
// directly, so the flight path argument is unused here.
func (k *EKF6) DerivedAOADeg(_ float64) float64 { return k.x[2] / Deg }
