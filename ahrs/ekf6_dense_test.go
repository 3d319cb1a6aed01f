package ahrs

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// denseEKF6 is a frozen reference implementation of the EKF6 using full
// matrix products. The production filter exploits the sparsity of F and
// H; this one does not, so any divergence between the two flags a bug in
// the sparse index bookkeeping.
type denseEKF6 struct {
	cfg EKF6Config
	x   *mat.VecDense
	p   *mat.Dense
	q   *mat.Dense
	r   *mat.Dense
}

func newDenseEKF6(cfg EKF6Config) *denseEKF6 {
	d := &denseEKF6{
		cfg: cfg,
		x:   mat.NewVecDense(6, nil),
		p:   mat.NewDense(6, 6, nil),
		q:   mat.NewDense(6, 6, nil),
		r:   mat.NewDense(4, 4, nil),
	}
	qd := []float64{cfg.QAttitude, cfg.QAttitude, cfg.QAlpha, cfg.QBias, cfg.QBias, cfg.QBias}
	for i, v := range qd {
		d.q.Set(i, i, v)
	}
	rd := []float64{cfg.RAccel, cfg.RAccel, cfg.RAccel, cfg.RAlpha}
	for i, v := range rd {
		d.r.Set(i, i, v)
	}
	d.init(0, 0)
	return d
}

func (d *denseEKF6) init(phi0, theta0 float64) {
	d.x = mat.NewVecDense(6, []float64{phi0, theta0, 0, 0, 0, 0})
	d.p = mat.NewDense(6, 6, nil)
	pd := []float64{d.cfg.PAttitude, d.cfg.PAttitude, d.cfg.PAlpha, d.cfg.PBias, d.cfg.PBias, d.cfg.PBias}
	for i, v := range pd {
		d.p.Set(i, i, v)
	}
}

func (d *denseEKF6) update(m *Measurement, dt float64) {
	phi := d.x.AtVec(0)
	theta := d.x.AtVec(1)

	pc := m.P - d.x.AtVec(3)
	qc := m.Q - d.x.AtVec(4)
	rc := m.R - d.x.AtVec(5)

	sph, cph := math.Sin(phi), math.Cos(phi)
	cth := math.Cos(theta)
	if math.Abs(cth) < singularityThreshold {
		cth = math.Copysign(singularityThreshold, cth)
	}
	sth := math.Sin(theta)
	tth := sth / cth

	phiDot := pc + qc*sph*tth + rc*cph*tth
	thetaDot := qc*cph - rc*sph
	d.x.SetVec(0, phi+dt*phiDot)
	d.x.SetVec(1, theta+dt*thetaDot)

	sec2 := 1 + tth*tth
	f := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		f.Set(i, i, 1)
	}
	f.Set(0, 0, 1+dt*(qc*cph*tth-rc*sph*tth))
	f.Set(0, 1, dt*(qc*sph*sec2+rc*cph*sec2))
	f.Set(0, 3, -dt)
	f.Set(0, 4, -dt*sph*tth)
	f.Set(0, 5, -dt*cph*tth)
	f.Set(1, 0, dt*(-qc*sph-rc*cph))
	f.Set(1, 4, -dt*cph)
	f.Set(1, 5, dt*sph)

	// P = F P F' + Q
	var fp, pn mat.Dense
	fp.Mul(f, d.p)
	pn.Mul(&fp, f.T())
	pn.Add(&pn, d.q)
	d.p.CloneFrom(&pn)

	// Correction.
	phi = d.x.AtVec(0)
	theta = d.x.AtVec(1)
	sph, cph = math.Sin(phi), math.Cos(phi)
	sth, cth = math.Sin(theta), math.Cos(theta)

	zPred := mat.NewVecDense(4, []float64{
		G * sth,
		-G * cth * sph,
		-G * cth * cph,
		d.x.AtVec(2),
	})
	z := mat.NewVecDense(4, []float64{m.Ax, m.Ay, m.Az, theta - m.Gamma})

	h := mat.NewDense(4, 6, nil)
	h.Set(0, 1, G*cth)
	h.Set(1, 0, -G*cth*cph)
	h.Set(1, 1, G*sth*sph)
	h.Set(2, 0, G*cth*sph)
	h.Set(2, 1, G*sth*cph)
	h.Set(3, 2, 1)

	var y mat.VecDense
	y.SubVec(z, zPred)

	var hp, s mat.Dense
	hp.Mul(h, d.p)
	s.Mul(&hp, h.T())
	s.Add(&s, d.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return
	}

	var pht, kGain mat.Dense
	pht.Mul(d.p, h.T())
	kGain.Mul(&pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(&kGain, &y)
	d.x.AddVec(d.x, &dx)

	// Joseph form.
	var kh, ikh mat.Dense
	kh.Mul(&kGain, h)
	ikh.Scale(-1, &kh)
	for i := 0; i < 6; i++ {
		ikh.Set(i, i, ikh.At(i, i)+1)
	}
	var ikhp, j1, krk, kr mat.Dense
	ikhp.Mul(&ikh, d.p)
	j1.Mul(&ikhp, ikh.T())
	kr.Mul(&kGain, d.r)
	krk.Mul(&kr, kGain.T())
	j1.Add(&j1, &krk)
	d.p.CloneFrom(&j1)
}

// The sparse predict/correct must match the dense reference for any
// admissible input sequence.
func TestEKF6SparseMatchesDense(t *testing.T) {
	sparse := NewEKF6(DefaultEKF6Config())
	dense := newDenseEKF6(DefaultEKF6Config())

	rng := rand.New(rand.NewSource(42))
	theta := 0.0
	for i := 0; i < 5000; i++ {
		q := (rng.Float64() - 0.5) * 10 * Deg
		theta += q * imuDT
		m := Measurement{
			Ax:    G*math.Sin(theta) + rng.NormFloat64()*0.2,
			Ay:    rng.NormFloat64() * 0.2,
			Az:    -G*math.Cos(theta) + rng.NormFloat64()*0.2,
			P:     (rng.Float64() - 0.5) * 5 * Deg,
			Q:     q,
			R:     (rng.Float64() - 0.5) * 5 * Deg,
			Gamma: (rng.Float64() - 0.5) * 2 * Deg,
		}
		sparse.Update(&m, imuDT)
		dense.update(&m, imuDT)

		s := sparse.State()
		got := []float64{s.Phi, s.Theta, s.Alpha, s.Bp, s.Bq, s.Br}
		for j, v := range got {
			if math.Abs(v-dense.x.AtVec(j)) > 1e-6 {
				t.Fatalf("step %d state %d: sparse %g dense %g", i, j, v, dense.x.AtVec(j))
			}
		}

		p := sparse.Covariance()
		for a := 0; a < 6; a++ {
			for b := 0; b < 6; b++ {
				dv := dense.p.At(a, b)
				diff := math.Abs(p[a][b] - dv)
				scale := math.Max(math.Abs(dv), 1e-10)
				if diff/scale > 1e-3 && diff > 1e-10 {
					t.Fatalf("step %d P[%d][%d]: sparse %g dense %g", i, a, b, p[a][b], dv)
				}
			}
		}
	}
}

// P must remain positive semi-definite over a long mixed-motion run.
func TestEKF6CovariancePSD(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	for i := 0; i < 100000; i++ {
		th := 0.3 * math.Sin(float64(i)*0.004)
		m := Measurement{
			Ax: G * math.Sin(th),
			Az: -G * math.Cos(th),
			Q:  0.3 * 0.004 * math.Cos(float64(i)*0.004) / imuDT,
		}
		k.Update(&m, imuDT)
	}

	p := k.Covariance()
	sym := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			sym.SetSym(i, j, 0.5*(p[i][j]+p[j][i]))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		t.Fatal("eigendecomposition failed")
	}
	for _, ev := range eig.Values(nil) {
		if ev < -1e-5 {
			t.Errorf("negative eigenvalue %g", ev)
		}
	}
}
