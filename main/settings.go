package main

import (
	"encoding/json"
	"log"
	"os"

	"golang.org/x/exp/slices"

	"github.com/flyonspeed/OnSpeed-Gen3/ahrs"
)

const configLocation = "/etc/onspeed.conf"

// FlapSetting is one row of the per-flap configuration table: the flap
// position in degrees, the four AOA set points and the pressure-to-AOA
// calibration curve for that position.
type FlapSetting struct {
	Position       int     // flap position, degrees
	AnalogValue    int     // flap sender counts at this detent
	LDMaxAOA       float64 // deg
	OnSpeedFastAOA float64 // deg
	OnSpeedSlowAOA float64 // deg
	StallWarnAOA   float64 // deg
	AoaCurve       ahrs.CalibrationCurve
}

// Thresholds returns the tone-advisor view of this flap setting.
func (f FlapSetting) Thresholds() ahrs.ToneThresholds {
	return ahrs.ToneThresholds{
		LDMaxAOA:       f.LDMaxAOA,
		OnSpeedFastAOA: f.OnSpeedFastAOA,
		OnSpeedSlowAOA: f.OnSpeedSlowAOA,
		StallWarnAOA:   f.StallWarnAOA,
	}
}

type settings struct {
	// Attitude backend: "madgwick" or "ekf6".
	AHRSAlgorithm string
	EKF           ahrs.EKF6Config

	// Installation biases, degrees. Yaw bias is always zero.
	PitchBias float64
	RollBias  float64

	Flaps []FlapSetting

	// Smoothing windows.
	AOASmoothing      int // AOA lag, samples
	PressureSmoothing int // pressure median window, samples
	GyroSmoothing     int // gyro display average, samples

	// Pressure channel biases, counts (forward/45°) and mbar (static).
	PFwdBias    int
	P45Bias     int
	PStaticBias float64

	CasCurveEnabled bool
	CasCurve        ahrs.CalibrationCurve

	// OAT sources. CalSource "EFIS" prefers the EFIS feed when serial
	// data is enabled; the onewire probe is the fallback.
	OatSensorEnabled bool
	ReadEfisData     bool
	CalSource        string
	EfisSerialPort   string

	// Audio.
	MuteAudioUnderIAS int
	Audio3D           bool
	VolumeControl     bool
	VolumeLowAnalog   int
	VolumeHighAnalog  int
	DefaultVolume     int

	// Housekeeping warnings.
	OverGWarning      bool
	LoadLimitPositive float64
	LoadLimitNegative float64
	VnoChimeEnabled   bool
	Vno               int
	VnoChimeInterval  uint // seconds

	// Sample rates, Hz.
	IMUSampleRate      int
	PressureSampleRate int

	// Services.
	DataLog        bool
	AhrsWebEnabled bool
	DEBUG          bool
}

type status struct {
	Version           string
	IMUConnected      bool
	PressureConnected bool
	EFISConnected     bool
	AudioFault        bool
	IMUCycles         uint64
	PressureCycles    uint64
	IMULateCycles     uint64
	Uptime            int64
	UptimeClock       string
	CPUTemp           float32
}

var globalSettings settings
var globalStatus status

var validAlgorithms = []string{"madgwick", "ekf6"}

func defaultSettings() {
	globalSettings = settings{
		AHRSAlgorithm:      "ekf6",
		EKF:                ahrs.DefaultEKF6Config(),
		AOASmoothing:       20,
		PressureSmoothing:  15,
		GyroSmoothing:      20,
		OatSensorEnabled:   true,
		CalSource:          "ONSPEED",
		MuteAudioUnderIAS:  25,
		VolumeHighAnalog:   4095,
		DefaultVolume:      80,
		OverGWarning:       true,
		LoadLimitPositive:  3.8,
		LoadLimitNegative:  -1.52,
		VnoChimeEnabled:    false,
		Vno:                140,
		VnoChimeInterval:   30,
		IMUSampleRate:      208,
		PressureSampleRate: 50,
		Flaps: []FlapSetting{
			{Position: 0, AnalogValue: 100, LDMaxAOA: 8.03, OnSpeedFastAOA: 11.25,
				OnSpeedSlowAOA: 13.84, StallWarnAOA: 16.48,
				AoaCurve: ahrs.CalibrationCurve{A2: -20.77, A1: 27.55, A0: 0.22, Enabled: true}},
			{Position: 10, AnalogValue: 1800, LDMaxAOA: 7.18, OnSpeedFastAOA: 10.36,
				OnSpeedSlowAOA: 12.95, StallWarnAOA: 15.21,
				AoaCurve: ahrs.CalibrationCurve{A2: -19.11, A1: 25.94, A0: 0.45, Enabled: true}},
			{Position: 40, AnalogValue: 3500, LDMaxAOA: 10.10, OnSpeedFastAOA: 9.93,
				OnSpeedSlowAOA: 12.63, StallWarnAOA: 14.90,
				AoaCurve: ahrs.CalibrationCurve{A2: -17.41, A1: 24.12, A0: 0.61, Enabled: true}},
		},
	}
}

// validateSettings clamps anything a hand-edited config file could have
// broken badly enough to crash a task.
func validateSettings() {
	if !slices.Contains(validAlgorithms, globalSettings.AHRSAlgorithm) {
		log.Printf("settings: unknown AHRS algorithm %q, using ekf6\n", globalSettings.AHRSAlgorithm)
		globalSettings.AHRSAlgorithm = "ekf6"
	}
	if globalSettings.IMUSampleRate <= 0 {
		globalSettings.IMUSampleRate = 208
	}
	if globalSettings.PressureSampleRate <= 0 {
		globalSettings.PressureSampleRate = 50
	}
	if globalSettings.AOASmoothing < 1 {
		globalSettings.AOASmoothing = 1
	}
	if globalSettings.PressureSmoothing < 1 {
		globalSettings.PressureSmoothing = 1
	}
	if len(globalSettings.Flaps) == 0 {
		log.Printf("settings: no flap table, restoring defaults\n")
		flaps := defaultFlapTable()
		globalSettings.Flaps = flaps
	}
}

func defaultFlapTable() []FlapSetting {
	saved := globalSettings
	defaultSettings()
	flaps := globalSettings.Flaps
	globalSettings = saved
	return flaps
}

func readSettings() {
	buf, err := os.ReadFile(configLocation)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configLocation, err.Error())
		defaultSettings()
		return
	}
	var newSettings settings
	err = json.Unmarshal(buf, &newSettings)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configLocation, err.Error())
		defaultSettings()
		return
	}
	globalSettings = newSettings
	validateSettings()
	log.Printf("read in settings.\n")
}

func saveSettings() {
	jsonSettings, _ := json.MarshalIndent(&globalSettings, "", "\t")
	err := os.WriteFile(configLocation, jsonSettings, 0644)
	if err != nil {
		log.Printf("can't save settings %s: %s\n", configLocation, err.Error())
		return
	}
	log.Printf("wrote settings.\n")
}

// flapSetting returns the flap table row for index i, clamped into range.
func flapSetting(i int) FlapSetting {
	if i < 0 {
		i = 0
	}
	if i >= len(globalSettings.Flaps) {
		i = len(globalSettings.Flaps) - 1
	}
	return globalSettings.Flaps[i]
}
