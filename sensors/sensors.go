// Package sensors provides the OnSpeed interface to the flight sensors:
// the IMU, the three pressure ports (pitot, 45° AOA port, static), the
// flap position sender and the outside-air-temperature probe. The fusion
// core consumes these interfaces only; concrete drivers live behind them.
package sensors

import (
	"time"
)

// IMUSample is one accelerometer/gyro reading. Accelerations are
// specific force in g in the z-down body frame (level flight reads
// Az ≈ -1); rates are in deg/s.
type IMUSample struct {
	T          time.Time
	Ax, Ay, Az float64
	Gx, Gy, Gz float64
}

// IMUReader reads the inertial measurement unit over the shared sensor
// bus. Read must be quick; callers hold the bus mutex across it.
type IMUReader interface {
	Read() (IMUSample, error)
	Close() error
}

// DifferentialPressureReader reads one differential pressure port as raw
// ADC counts and converts counts to PSI. The split lets the pipeline
// smooth in counts and convert the smoothed value.
type DifferentialPressureReader interface {
	ReadCounts() (int, error)
	PSI(counts float64) float64
	Close() error
}

// StaticPressureReader reads the static port in millibars.
type StaticPressureReader interface {
	ReadMillibars() (float64, error)
	Close() error
}

// OatReader reads the outside air temperature in °C. Values outside
// (-100, +100) are considered invalid by the consumer.
type OatReader interface {
	ReadC() (float64, error)
}
