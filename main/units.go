package main

// Unit conversions used across the pipeline. Internally TAS and the
// Kalman altitude filter run in SI; IAS and Palt are published in the
// cockpit units (knots, feet).

const (
	ktsPerMps  = 1.94384
	mbarPerPsi = 68.9475729
	mPerFoot   = 0.3048
)

func kts2mps(kts float64) float64 { return kts / ktsPerMps }

func mps2kts(mps float64) float64 { return mps * ktsPerMps }

func psi2mb(psi float64) float64 { return psi * mbarPerPsi }

func ft2m(ft float64) float64 { return ft * mPerFoot }

func m2ft(m float64) float64 { return m / mPerFoot }

func mps2g(mps2 float64) float64 { return mps2 / 9.80665 }

func g2mps(g float64) float64 { return g * 9.80665 }
