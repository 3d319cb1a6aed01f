package ahrs

import (
	"log"
)

const (
	sgMinWindow     = 5
	sgMaxWindow     = 25
	sgDefaultWindow = 15
)

// SGDeriv is a Savitzky-Golay first-derivative filter. The convolution
// coefficients for the first derivative of a quadratic fit over an odd
// window are the antisymmetric integers -k..k with normalization
// k(k+1)(2k+1)/3, so the output is the smoothed derivative per sample;
// callers multiply by the sample rate to get a per-second derivative.
//
// The buffer is float64: the derivative subtracts nearly-equal samples
// and would lose precision in float32.
type SGDeriv struct {
	window int
	norm   float64
	buf    []float64
	fill   int
}

// NewSGDeriv returns a filter for the given window size. Windows must be
// odd and within [5, 25]; anything else falls back to 15 with a single
// log line.
func NewSGDeriv(window int) *SGDeriv {
	if window < sgMinWindow || window > sgMaxWindow || window%2 == 0 {
		log.Printf("SGDeriv: invalid window %d, using %d\n", window, sgDefaultWindow)
		window = sgDefaultWindow
	}
	k := float64((window - 1) / 2)
	return &SGDeriv{
		window: window,
		norm:   k * (k + 1) * (2*k + 1) / 3,
		buf:    make([]float64, 0, window),
	}
}

// Update pushes a sample and returns the smoothed first derivative per
// sample, or 0 until the window has been filled. Positive output means
// increasing input; for a linear ramp the output equals the slope
// exactly.
func (s *SGDeriv) Update(v float64) float64 {
	if s.fill < s.window {
		s.buf = append(s.buf, v)
		s.fill++
	} else {
		copy(s.buf, s.buf[1:])
		s.buf[s.window-1] = v
	}
	if s.fill < s.window {
		return 0
	}

	half := s.window / 2
	var sum float64
	for i := 1; i <= half; i++ {
		sum += float64(i) * (s.buf[half+i] - s.buf[half-i])
	}
	return sum / s.norm
}

// Window reports the effective window size.
func (s *SGDeriv) Window() int { return s.window }

// Reset returns the filter to the unfilled state.
func (s *SGDeriv) Reset() {
	s.buf = s.buf[:0]
	s.fill = 0
}
