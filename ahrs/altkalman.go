package ahrs

// AltKalman is a 3-state linear Kalman filter producing smoothed pressure
// altitude and vertical speed from barometric altitude and earth-vertical
// acceleration. State: altitude z (m), vertical speed vz (m/s) and an
// accelerometer bias (m/s²). The acceleration input is integrated into
// velocity and altitude and traded against the altimeter measurement.
type AltKalman struct {
	zVar    float64 // altimeter measurement variance, m²
	aVar    float64 // acceleration process variance, (m/s²)²
	biasVar float64 // bias drift variance per step, (m/s²)²

	x [3]float64
	p [3][3]float64
}

// Configure resets the filter: measurement and process variances plus the
// initial altitude, vertical speed and acceleration bias.
func (k *AltKalman) Configure(zVar, aVar, biasVar, z0, v0, bias0 float64) {
	k.zVar = zVar
	k.aVar = aVar
	k.biasVar = biasVar
	k.x = [3]float64{z0, v0, bias0}
	k.p = [3][3]float64{
		{zVar, 0, 0},
		{0, aVar, 0},
		{0, 0, biasVar},
	}
}

// Update runs one predict/correct cycle with a measured altitude (m) and
// earth-vertical acceleration (m/s², positive up) and returns the
// filtered altitude and vertical speed. A non-positive dt leaves the
// state unchanged.
func (k *AltKalman) Update(zMeas, accel, dt float64) (z, vz float64) {
	if dt <= 0 {
		return k.x[0], k.x[1]
	}

	a := accel - k.x[2]
	hdt := 0.5 * dt * dt

	// Predict: z += vz*dt + a*dt²/2, vz += a*dt, bias constant.
	k.x[0] += k.x[1]*dt + a*hdt
	k.x[1] += a * dt

	// P = F P F' + Q with F = [[1, dt, -dt²/2], [0, 1, -dt], [0, 0, 1]]
	// and Q from the acceleration noise mapped through (dt²/2, dt, 0)
	// plus the bias random walk.
	f02 := -hdt
	f12 := -dt

	p := &k.p
	// FP
	var fp [3][3]float64
	for j := 0; j < 3; j++ {
		fp[0][j] = p[0][j] + dt*p[1][j] + f02*p[2][j]
		fp[1][j] = p[1][j] + f12*p[2][j]
		fp[2][j] = p[2][j]
	}
	// FP F'
	var pn [3][3]float64
	for i := 0; i < 3; i++ {
		pn[i][0] = fp[i][0] + dt*fp[i][1] + f02*fp[i][2]
		pn[i][1] = fp[i][1] + f12*fp[i][2]
		pn[i][2] = fp[i][2]
	}
	pn[0][0] += k.aVar * hdt * hdt
	pn[0][1] += k.aVar * hdt * dt
	pn[1][0] += k.aVar * dt * hdt
	pn[1][1] += k.aVar * dt * dt
	pn[2][2] += k.biasVar

	// Correct against the altimeter: H = [1 0 0].
	s := pn[0][0] + k.zVar
	k0 := pn[0][0] / s
	k1 := pn[1][0] / s
	k2 := pn[2][0] / s

	y := zMeas - k.x[0]
	k.x[0] += k0 * y
	k.x[1] += k1 * y
	k.x[2] += k2 * y

	for j := 0; j < 3; j++ {
		p[0][j] = pn[0][j] - k0*pn[0][j]
		p[1][j] = pn[1][j] - k1*pn[0][j]
		p[2][j] = pn[2][j] - k2*pn[0][j]
	}

	return k.x[0], k.x[1]
}

// State returns the current altitude, vertical speed and bias estimates.
func (k *AltKalman) State() (z, vz, bias float64) {
	return k.x[0], k.x[1], k.x[2]
}
