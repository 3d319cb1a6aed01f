package main

import (
	"sync"
	"time"

	"github.com/flyonspeed/OnSpeed-Gen3/ahrs"
)

// SituationData is the fused sensor snapshot shared between the tasks:
// the pressure side (IAS, AOA, Palt) updates at 50 Hz under muPressure,
// the AHRS side (attitude, VSI, accelerations) at 208 Hz under
// muAttitude. Readers in other tasks may see values from adjacent cycles
// but never a torn one.
type SituationData struct {
	muPressure sync.Mutex
	// Pressure-side fields.
	PfwdCounts       int
	P45Counts        int
	PfwdSmoothed     float64
	P45Smoothed      float64
	PStatic          float64 // mbar
	Palt             float64 // ft
	IAS              float64 // kt
	AOA              float64 // deg
	CoeffP           float64
	DecelRate        float64 // kt/s
	FlapPosition     int
	FlapIndex        int
	OatC             float64
	OatValid         bool
	IasUpdateMicros  int64 // monotonic µs of the last IAS update
	LastPressureTime time.Time

	muAttitude sync.Mutex
	// AHRS-side fields.
	AHRSRoll         float64 // deg
	AHRSPitch        float64 // deg
	FlightPath       float64 // deg
	DerivedAOA       float64 // deg
	KalmanAlt        float64 // m
	KalmanVSI        float64 // m/s
	AccelFwdCorr     float64 // g
	AccelLatCorr     float64 // g
	AccelVertCorr    float64 // g
	AccelFwdSmooth   float64
	AccelLatSmooth   float64
	AccelVertSmooth  float64
	AccelFwdComp     float64
	AccelLatComp     float64
	AccelVertComp    float64
	GyroRoll         float64 // deg/s
	GyroPitch        float64
	GyroYaw          float64
	BiasP            float64 // deg/s, EKF backend only
	BiasQ            float64
	BiasR            float64
	LastAttitudeTime time.Time

	muEfis sync.Mutex
	// EFIS serial feed (OAT consumer only; the rest is telemetry).
	EfisOatC     float64
	EfisOatValid bool
	EfisLastTime time.Time

	muTone sync.Mutex
	// Latest advisor output, consumed by the audio collaborator.
	Tone ahrs.ToneResult
}

var mySituation = &SituationData{}

// SituationSnapshot is the JSON view served to the UI and the datalog;
// one consistent copy of every published field.
type SituationSnapshot struct {
	IAS             float64
	TAS             float64
	Palt            float64
	KalmanAlt       float64
	KalmanVSI       float64
	AOA             float64
	DerivedAOA      float64
	CoeffP          float64
	DecelRate       float64
	Roll            float64
	Pitch           float64
	FlightPath      float64
	AccelFwd        float64
	AccelLat        float64
	AccelVert       float64
	AccelFwdCorr    float64
	AccelLatCorr    float64
	AccelVertCorr   float64
	AccelFwdSmooth  float64
	AccelLatSmooth  float64
	AccelVertSmooth float64
	GyroRoll        float64
	GyroPitch       float64
	GyroYaw         float64
	FlapPosition    int
	FlapIndex       int
	OatC            float64
	OatValid        bool
	Tone            string
	TonePPS         float64
}

// snapshot copies the shared state field groups under their mutexes.
func (s *SituationData) snapshot(tasMps float64) SituationSnapshot {
	var out SituationSnapshot

	s.muPressure.Lock()
	out.IAS = s.IAS
	out.Palt = s.Palt
	out.AOA = s.AOA
	out.CoeffP = s.CoeffP
	out.DecelRate = s.DecelRate
	out.FlapPosition = s.FlapPosition
	out.FlapIndex = s.FlapIndex
	out.OatC = s.OatC
	out.OatValid = s.OatValid
	s.muPressure.Unlock()

	s.muAttitude.Lock()
	out.KalmanAlt = s.KalmanAlt
	out.KalmanVSI = s.KalmanVSI
	out.Roll = s.AHRSRoll
	out.Pitch = s.AHRSPitch
	out.FlightPath = s.FlightPath
	out.DerivedAOA = s.DerivedAOA
	out.AccelFwd = s.AccelFwdComp
	out.AccelLat = s.AccelLatComp
	out.AccelVert = s.AccelVertComp
	out.AccelFwdCorr = s.AccelFwdCorr
	out.AccelLatCorr = s.AccelLatCorr
	out.AccelVertCorr = s.AccelVertCorr
	out.AccelFwdSmooth = s.AccelFwdSmooth
	out.AccelLatSmooth = s.AccelLatSmooth
	out.AccelVertSmooth = s.AccelVertSmooth
	out.GyroRoll = s.GyroRoll
	out.GyroPitch = s.GyroPitch
	out.GyroYaw = s.GyroYaw
	s.muAttitude.Unlock()

	s.muTone.Lock()
	out.Tone = s.Tone.Tone.String()
	out.TonePPS = s.Tone.PPS
	s.muTone.Unlock()

	out.TAS = tasMps
	return out
}
