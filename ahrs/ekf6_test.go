package ahrs

import (
	"math"
	"testing"
)

const imuDT = 1.0 / 208

func runEKF(k *EKF6, m Measurement, seconds float64) {
	n := int(seconds / imuDT)
	for i := 0; i < n; i++ {
		k.Update(&m, imuDT)
	}
}

func TestEKF6InitRoundTrip(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	k.Init(0.1, -0.2)
	s := k.State()
	if s.Phi != 0.1 || s.Theta != -0.2 || s.Alpha != 0 || s.Bp != 0 || s.Bq != 0 || s.Br != 0 {
		t.Errorf("Init state round trip failed: %+v", s)
	}
	p := k.Covariance()
	cfg := DefaultEKF6Config()
	want := []float64{cfg.PAttitude, cfg.PAttitude, cfg.PAlpha, cfg.PBias, cfg.PBias, cfg.PBias}
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			w := 0.0
			if i == j {
				w = want[i]
			}
			if p[i][j] != w {
				t.Errorf("P[%d][%d] = %g, want %g", i, j, p[i][j], w)
			}
		}
	}
}

func TestEKF6LevelFlight(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	runEKF(k, Measurement{Az: -G}, 5)
	s := k.State()
	if math.Abs(s.PhiDeg()) > 1e-3 || math.Abs(s.ThetaDeg()) > 1e-3 || math.Abs(s.AlphaDeg()) > 1e-3 {
		t.Errorf("level flight: phi=%g theta=%g alpha=%g deg", s.PhiDeg(), s.ThetaDeg(), s.AlphaDeg())
	}
}

func TestEKF6StaticPitch(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	th := 10 * Deg
	runEKF(k, Measurement{Ax: G * math.Sin(th), Az: -G * math.Cos(th)}, 5)
	s := k.State()
	if math.Abs(s.ThetaDeg()-10) > 0.01 {
		t.Errorf("static pitch: theta = %g deg, want 10", s.ThetaDeg())
	}
	if math.Abs(s.AlphaDeg()-10) > 0.01 {
		t.Errorf("static pitch: alpha = %g deg, want 10", s.AlphaDeg())
	}
	if math.Abs(s.PhiDeg()) > 0.01 {
		t.Errorf("static pitch: phi = %g deg, want 0", s.PhiDeg())
	}
}

func TestEKF6StaticBank(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	ph := 20 * Deg
	runEKF(k, Measurement{Ay: -G * math.Sin(ph), Az: -G * math.Cos(ph)}, 5)
	s := k.State()
	if math.Abs(s.PhiDeg()-20) > 0.01 {
		t.Errorf("static bank: phi = %g deg, want 20", s.PhiDeg())
	}
	if math.Abs(s.ThetaDeg()) > 0.01 || math.Abs(s.AlphaDeg()) > 0.01 {
		t.Errorf("static bank: theta=%g alpha=%g deg, want 0", s.ThetaDeg(), s.AlphaDeg())
	}
}

// Pitch-rate ramp: 5°/s for 2 s then level off, with accelerometer values
// consistent with the accumulated pitch.
func TestEKF6PitchRamp(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	rate := 5 * Deg // rad/s
	theta := 0.0
	step := func(q float64) {
		theta += q * imuDT
		m := Measurement{
			Ax: G * math.Sin(theta),
			Az: -G * math.Cos(theta),
			Q:  q,
		}
		k.Update(&m, imuDT)
	}

	checks := map[int]float64{ // step index -> expected theta, deg
		int(0.5 / imuDT): 2.5,
		int(1.0 / imuDT): 5.0,
	}
	for i := 0; i < int(2/imuDT); i++ {
		step(rate)
		if want, ok := checks[i+1]; ok {
			got := k.State().ThetaDeg()
			if math.Abs(got-want) > 0.1 {
				t.Errorf("ramp at step %d: theta = %g deg, want ~%g", i+1, got, want)
			}
		}
	}
	for i := 0; i < int(3/imuDT); i++ {
		step(0)
	}
	if got := k.State().ThetaDeg(); math.Abs(got-10) > 0.05 {
		t.Errorf("after ramp: theta = %g deg, want ~10", got)
	}
}

// A constant gyro reading with a level accelerometer and no actual motion
// must be absorbed into the pitch-gyro bias state.
func TestEKF6BiasLearning(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	runEKF(k, Measurement{Az: -G, Q: 2 * Deg}, 5)
	s := k.State()
	if math.Abs(s.ThetaDeg()) > 0.1 {
		t.Errorf("bias learn: theta drifted to %g deg", s.ThetaDeg())
	}
	if s.BqDps() < 1.0 || s.BqDps() > 2.2 {
		t.Errorf("bias learn: bq = %g deg/s, want near 2", s.BqDps())
	}
}

func TestEKF6CovarianceSymmetry(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	for i := 0; i < 100000; i++ {
		ph := 0.3 * math.Sin(float64(i)*0.011)
		th := 0.2 * math.Sin(float64(i)*0.007)
		m := Measurement{
			Ax:    G * math.Sin(th),
			Ay:    -G * math.Cos(th) * math.Sin(ph),
			Az:    -G * math.Cos(th) * math.Cos(ph),
			P:     0.1 * math.Sin(float64(i)*0.013),
			Q:     0.1 * math.Cos(float64(i)*0.017),
			R:     0.05 * math.Sin(float64(i)*0.019),
			Gamma: 0.02 * math.Sin(float64(i)*0.003),
		}
		k.Update(&m, imuDT)
		if i%10000 != 0 {
			continue
		}
		p := k.Covariance()
		for a := 0; a < 6; a++ {
			for b := a + 1; b < 6; b++ {
				if math.Abs(p[a][b]-p[b][a]) > 1e-5 {
					t.Fatalf("P not symmetric at step %d: P[%d][%d]=%g P[%d][%d]=%g",
						i, a, b, p[a][b], b, a, p[b][a])
				}
			}
			if p[a][a] < -1e-5 {
				t.Fatalf("negative variance at step %d: P[%d][%d]=%g", i, a, a, p[a][a])
			}
		}
	}
}

func TestEKF6ResetAlphaCovariance(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	runEKF(k, Measurement{Az: -G}, 2)
	k.ResetAlphaCovariance()
	p := k.Covariance()
	for i := 0; i < 6; i++ {
		if i == 2 {
			continue
		}
		if p[2][i] != 0 || p[i][2] != 0 {
			t.Errorf("alpha cross covariance not cleared: P[2][%d]=%g P[%d][2]=%g", i, p[2][i], i, p[i][2])
		}
	}
	if p[2][2] != DefaultEKF6Config().PAlpha {
		t.Errorf("P[2][2] = %g, want %g", p[2][2], DefaultEKF6Config().PAlpha)
	}
}

// A pivot whose magnitude falls below the floor must report singularity
// rather than dividing by it.
func TestInvert4x4Singular(t *testing.T) {
	var a [4][4]float64
	a[0] = [4]float64{1, 2, 3, 4}
	a[1] = [4]float64{2, 4, 6, 8} // linearly dependent on row 0
	a[2] = [4]float64{0, 0, 1, 0}
	a[3] = [4]float64{0, 0, 0, 1}
	if _, ok := invert4x4(a); ok {
		t.Error("expected singular matrix to be rejected")
	}
}

func TestInvert4x4Identity(t *testing.T) {
	a := [4][4]float64{
		{4, 1, 0, 0.5},
		{1, 3, 0.2, 0},
		{0, 0.2, 2, 0.1},
		{0.5, 0, 0.1, 1.5},
	}
	inv, ok := invert4x4(a)
	if !ok {
		t.Fatal("well-conditioned matrix reported singular")
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for l := 0; l < 4; l++ {
				sum += a[i][l] * inv[l][j]
			}
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(sum-want) > 1e-9 {
				t.Errorf("(A·A⁻¹)[%d][%d] = %g, want %g", i, j, sum, want)
			}
		}
	}
}

// A filter fed with a non-positive dt substituted by the caller must stay
// finite; here we just confirm tiny dt values are harmless.
func TestEKF6TinyDt(t *testing.T) {
	k := NewEKF6(DefaultEKF6Config())
	m := Measurement{Az: -G}
	for i := 0; i < 100; i++ {
		k.Update(&m, 1e-9)
	}
	s := k.State()
	for _, v := range []float64{s.Phi, s.Theta, s.Alpha, s.Bp, s.Bq, s.Br} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite state after tiny dt updates: %+v", s)
		}
	}
}
