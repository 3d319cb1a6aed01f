package sensors

import (
	"sync"
	"time"
)

// The fake sensors stand in for hardware during bench testing and replay:
// they serve whatever values the test (or replay file) loads into them,
// through the same interfaces the real drivers implement.

// FakeIMU serves a settable IMU sample. Safe for concurrent use.
type FakeIMU struct {
	mu     sync.Mutex
	sample IMUSample
	err    error
}

// NewFakeIMU returns a fake reading level and still.
func NewFakeIMU() *FakeIMU {
	return &FakeIMU{sample: IMUSample{Az: -1}}
}

// Set loads the next sample to serve.
func (f *FakeIMU) Set(s IMUSample) {
	f.mu.Lock()
	f.sample = s
	f.mu.Unlock()
}

// Fail makes subsequent reads return err (nil to heal).
func (f *FakeIMU) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeIMU) Read() (IMUSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return IMUSample{}, f.err
	}
	s := f.sample
	s.T = time.Now()
	return s, nil
}

func (f *FakeIMU) Close() error { return nil }

// FakeDifferentialPressure serves settable counts with a linear
// counts-to-PSI transfer.
type FakeDifferentialPressure struct {
	mu        sync.Mutex
	counts    int
	psiPerCnt float64
	zeroCnt   float64
	err       error
}

// NewFakeDifferentialPressure returns a fake with the given transfer:
// psi = (counts - zero) * psiPerCount.
func NewFakeDifferentialPressure(zero, psiPerCount float64) *FakeDifferentialPressure {
	return &FakeDifferentialPressure{zeroCnt: zero, psiPerCnt: psiPerCount}
}

func (f *FakeDifferentialPressure) SetCounts(c int) {
	f.mu.Lock()
	f.counts = c
	f.mu.Unlock()
}

func (f *FakeDifferentialPressure) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeDifferentialPressure) ReadCounts() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts, f.err
}

func (f *FakeDifferentialPressure) PSI(counts float64) float64 {
	return (counts - f.zeroCnt) * f.psiPerCnt
}

func (f *FakeDifferentialPressure) Close() error { return nil }

// FakeStaticPressure serves a settable static pressure.
type FakeStaticPressure struct {
	mu   sync.Mutex
	mbar float64
	err  error
}

// NewFakeStaticPressure returns a fake at sea-level standard pressure.
func NewFakeStaticPressure() *FakeStaticPressure {
	return &FakeStaticPressure{mbar: 1013.25}
}

func (f *FakeStaticPressure) SetMillibars(p float64) {
	f.mu.Lock()
	f.mbar = p
	f.mu.Unlock()
}

func (f *FakeStaticPressure) ReadMillibars() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mbar, f.err
}

func (f *FakeStaticPressure) Close() error { return nil }

// FakeOat serves a settable temperature.
type FakeOat struct {
	mu sync.Mutex
	c  float64
}

func NewFakeOat(c float64) *FakeOat { return &FakeOat{c: c} }

func (f *FakeOat) SetC(c float64) {
	f.mu.Lock()
	f.c = c
	f.mu.Unlock()
}

func (f *FakeOat) ReadC() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.c, nil
}
