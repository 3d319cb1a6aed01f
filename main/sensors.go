/*
	sensors.go: Sensor task loops. The IMU/AHRS task runs at the IMU
	sample rate on a fractional-accumulator tick so the long-run rate is
	exact; the pressure/AOA task runs at the pressure rate on
	deadline-based sleeps. Both take the sensor-bus mutex only around the
	driver calls, never across filter math.
*/

package main

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"

	"github.com/flyonspeed/OnSpeed-Gen3/ahrs"
	"github.com/flyonspeed/OnSpeed-Gen3/sensors"
)

const numRetries uint8 = 5

var (
	i2cbus embd.I2CBus

	sensorMutex sync.Mutex // guards the shared sensor bus
	ahrsMutex   sync.Mutex // held by the IMU task around myAHRS.Process; readers use myAHRS's own lock

	myIMU    sensors.IMUReader
	myPitot  sensors.DifferentialPressureReader
	myP45    sensors.DifferentialPressureReader
	myStatic sensors.StaticPressureReader
	myOat    sensors.OatReader
	myFlaps  *sensors.FlapSensor

	volumeReader sensors.AnalogReader

	shutdownFlag atomic.Bool

	imuCycles      atomic.Uint64
	imuLateCycles  atomic.Uint64
	pressureCycles atomic.Uint64
)

func shutdownRequested() bool { return shutdownFlag.Load() }

func requestShutdown() { shutdownFlag.Store(true) }

// micros is the monotonic microsecond counter used for dt measurement
// and IAS update stamps.
func micros() int64 {
	return onspeedClock.Micros()
}

// initSensors installs the sensor set. With hardware enabled the pitot
// and 45° ports are MS4525 transducers on the I2C bus; the IMU, static
// and OAT drivers are injected by the platform layer. Without hardware
// everything is served by the bench fakes so the fusion pipeline and UI
// still run.
func initSensors(hardware bool) {
	fakeFlapRead := func() (int, error) { return 0, nil }
	var flapPositions, flapAnalogs []int
	for _, f := range globalSettings.Flaps {
		flapPositions = append(flapPositions, f.Position)
		flapAnalogs = append(flapAnalogs, f.AnalogValue)
	}
	myFlaps = sensors.NewFlapSensor(fakeFlapRead, flapPositions, flapAnalogs)

	if hardware {
		i2cbus = embd.NewI2CBus(1)
		if pitot, err := sensors.NewMS4525(i2cbus, sensors.MS4525Address, 1.0); err == nil {
			myPitot = pitot
		} else {
			log.Printf("Sensor Error: pitot: %s\n", err)
		}
		if p45, err := sensors.NewMS4525(i2cbus, sensors.MS4525Address+1, 1.0); err == nil {
			myP45 = p45
		} else {
			log.Printf("Sensor Error: 45° port: %s\n", err)
		}
	}

	if myPitot == nil || myP45 == nil || myIMU == nil || myStatic == nil {
		log.Println("Sensor Info: running with bench (fake) sensors")
		if myIMU == nil {
			myIMU = sensors.NewFakeIMU()
		}
		if myPitot == nil {
			myPitot = sensors.NewFakeDifferentialPressure(0, 1.0/sensorCountsPerPSI)
		}
		if myP45 == nil {
			myP45 = sensors.NewFakeDifferentialPressure(0, 1.0/sensorCountsPerPSI)
		}
		if myStatic == nil {
			myStatic = sensors.NewFakeStaticPressure()
		}
	}
	if myOat == nil {
		myOat = sensors.NewFakeOat(15)
	}

	globalStatus.IMUConnected = true
	globalStatus.PressureConnected = true
}

// sensorCountsPerPSI is the nominal ADC transfer for the bench fakes.
const sensorCountsPerPSI = 6553.0

// fracTicker generates the IMU tick. The base period is 1e6/rate µs and
// the division remainder accumulates per tick, adding one extra µs on
// overflow, so the long-run rate is exact without float accumulation.
type fracTicker struct {
	rate   int64
	baseUs int64
	remUs  int64
	acc    int64
	next   time.Time
}

func newFracTicker(rateHz int) *fracTicker {
	r := int64(rateHz)
	return &fracTicker{
		rate:   r,
		baseUs: 1000000 / r,
		remUs:  1000000 % r,
		next:   time.Now(),
	}
}

// wait blocks until the next tick and reports the lateness observed at
// wakeup. When more than 1 ms late the ticker re-bases to now instead of
// trying to catch up.
func (t *fracTicker) wait() (late time.Duration, resynced bool) {
	t.next = t.next.Add(time.Duration(t.baseUs) * time.Microsecond)
	t.acc += t.remUs
	if t.acc >= t.rate {
		t.next = t.next.Add(time.Microsecond)
		t.acc -= t.rate
	}

	if d := time.Until(t.next); d > 0 {
		time.Sleep(d)
	}

	late = time.Since(t.next)
	if late > time.Millisecond {
		t.next = time.Now()
		t.acc = 0
		return late, true
	}
	return late, false
}

// pressureAltitudeFeetFromMbar converts bias-corrected static pressure
// to pressure altitude; a non-positive corrected pressure keeps the
// previous altitude.
func pressureAltitudeFeetFromMbar(staticMbar, prevPaltFt float64) float64 {
	corrected := staticMbar - globalSettings.PStaticBias
	if corrected <= 0 {
		return prevPaltFt
	}
	return 145366.45 * (1 - math.Pow(corrected/1013.25, 0.190284))
}

// imuAhrsTask reads the IMU and static port and runs the AHRS pipeline
// at the IMU sample rate.
func imuAhrsTask() {
	tick := newFracTicker(globalSettings.IMUSampleRate)
	var lastLateLog, lastErrLog time.Time
	var lastReadUs int64
	var failnum uint8

	for !shutdownRequested() {
		if late, resynced := tick.wait(); resynced {
			imuLateCycles.Add(1)
			if time.Since(lastLateLog) > time.Second {
				log.Printf("AHRS Warning: IMU task late by %v\n", late)
				lastLateLog = time.Now()
			}
		}

		sensorMutex.Lock()
		readUs := micros()
		sample, imuErr := myIMU.Read()
		staticMbar, staticErr := myStatic.ReadMillibars()
		sensorMutex.Unlock()

		if imuErr != nil {
			if time.Since(lastErrLog) > time.Second {
				log.Printf("AHRS Error: IMU read: %s\n", imuErr)
				lastErrLog = time.Now()
			}
			failnum++
			if failnum > numRetries {
				log.Printf("AHRS Error: IMU failed %d times, marking disconnected\n", failnum-1)
				globalStatus.IMUConnected = false
				failnum = 0
			}
			continue
		}
		failnum = 0

		if staticErr == nil {
			mySituation.muPressure.Lock()
			mySituation.PStatic = staticMbar
			mySituation.Palt = pressureAltitudeFeetFromMbar(staticMbar, mySituation.Palt)
			mySituation.muPressure.Unlock()
		}

		var dt float64
		if lastReadUs > 0 {
			dt = float64(readUs-lastReadUs) * 1e-6
		}
		lastReadUs = readUs

		ahrsMutex.Lock()
		myAHRS.Process(sample, dt)
		ahrsMutex.Unlock()

		imuCycles.Add(1)
	}
}

// pressureAoaTask reads the pitot and 45° ports, computes AOA/IAS and
// runs the tone advisor at the pressure sample rate. Flap position and
// OAT are throttled to about once per second; the deceleration
// derivative updates at 10 Hz.
func pressureAoaTask() {
	period := time.Second / time.Duration(globalSettings.PressureSampleRate)
	next := time.Now()

	pfwdMedian := ahrs.NewRunningMedian(globalSettings.PressureSmoothing)
	pfwdAvg := ahrs.NewRunningAverage(10)
	p45Median := ahrs.NewRunningMedian(globalSettings.PressureSmoothing)
	p45Avg := ahrs.NewRunningAverage(10)

	aoaCalc := ahrs.NewAOACalculator(globalSettings.AOASmoothing)
	iasDeriv := ahrs.NewSGDeriv(15)

	var lastFlapsRead, lastOatRead, lastDecelUpdate time.Time
	var lastLateLog, lastErrLog time.Time

	for !shutdownRequested() {
		next = next.Add(period)
		if d := time.Until(next); d > 0 {
			time.Sleep(d)
		} else if -d > 5*time.Millisecond {
			if time.Since(lastLateLog) > time.Second {
				log.Printf("Sensor Warning: pressure task late by %v\n", -d)
				lastLateLog = time.Now()
			}
			next = time.Now()
		}

		sensorMutex.Lock()
		pfwdRaw, pfwdErr := myPitot.ReadCounts()
		p45Raw, p45Err := myP45.ReadCounts()
		sensorMutex.Unlock()
		if pfwdErr != nil || p45Err != nil {
			if pfwdErr != nil {
				log.Printf("Sensor Error: pitot read: %s\n", pfwdErr)
			}
			if p45Err != nil {
				log.Printf("Sensor Error: 45° port read: %s\n", p45Err)
			}
			continue
		}

		pfwd := pfwdRaw - globalSettings.PFwdBias
		p45 := p45Raw - globalSettings.P45Bias

		// Flap position about once per second.
		if time.Since(lastFlapsRead) > time.Second {
			if err := myFlaps.Update(); err != nil {
				log.Printf("Sensor Error: flaps read: %s\n", err)
			}
			lastFlapsRead = time.Now()
		}

		// OAT about once per second.
		if globalSettings.OatSensorEnabled && time.Since(lastOatRead) > time.Second {
			if c, err := myOat.ReadC(); err == nil {
				mySituation.muPressure.Lock()
				mySituation.OatC = c
				mySituation.OatValid = c > -100 && c < 100
				mySituation.muPressure.Unlock()
			} else {
				log.Printf("Sensor Error: OAT read: %s\n", err)
			}
			lastOatRead = time.Now()
		}

		// Median filter then a short moving average on both channels.
		pfwdMedian.Add(float64(pfwd))
		pfwdAvg.Add(pfwdMedian.Median())
		pfwdSmoothed := pfwdAvg.Average()

		p45Median.Add(float64(p45))
		p45Avg.Add(p45Median.Median())
		p45Smoothed := p45Avg.Average()

		mySituation.muPressure.Lock()
		upstreamAOA := mySituation.AOA
		mySituation.muPressure.Unlock()

		flap := flapSetting(myFlaps.Index)
		result := aoaCalc.Calculate(pfwdSmoothed, p45Smoothed, flap.AoaCurve, upstreamAOA)

		ias := calcIAS(pfwdSmoothed)

		mySituation.muPressure.Lock()
		mySituation.PfwdCounts = pfwd
		mySituation.P45Counts = p45
		mySituation.PfwdSmoothed = pfwdSmoothed
		mySituation.P45Smoothed = p45Smoothed
		mySituation.AOA = result.AOA
		mySituation.CoeffP = result.CoeffP
		mySituation.IAS = ias
		mySituation.FlapPosition = myFlaps.Position
		mySituation.FlapIndex = myFlaps.Index
		mySituation.IasUpdateMicros = micros()
		mySituation.LastPressureTime = onspeedClock.Now()

		// Airspeed derivative for the deceleration cue, at the 10 Hz
		// display cadence, scaled by the actual elapsed period.
		if lastDecelUpdate.IsZero() {
			lastDecelUpdate = time.Now()
		} else if d := time.Since(lastDecelUpdate); d >= 100*time.Millisecond {
			lastDecelUpdate = time.Now()
			sampleHz := 10.0
			if d > 0 {
				sampleHz = float64(time.Second) / float64(d)
			}
			mySituation.DecelRate = iasDeriv.Update(ias) * sampleHz
		}
		mySituation.muPressure.Unlock()

		myAudio.UpdateTones()
		logSituation()

		pressureCycles.Add(1)
	}
}

// calcIAS converts smoothed forward-pressure counts to indicated
// airspeed in knots. The smoothed value has the bias removed, so it is
// re-added before the PSI conversion. Negative dynamic pressure clamps
// to zero.
func calcIAS(pfwdSmoothed float64) float64 {
	pfwdPSI := myPitot.PSI(pfwdSmoothed + float64(globalSettings.PFwdBias))
	pfwdPascal := psi2mb(pfwdPSI) * 100
	if pfwdPascal <= 0 {
		return 0
	}
	ias := math.Sqrt(2*pfwdPascal/1.225) * ktsPerMps
	if globalSettings.CasCurveEnabled {
		ias = globalSettings.CasCurve.Eval(ias)
	}
	return ias
}
