/*
	housekeeping.go: 10 Hz background task. Over-G warning with the
	asymmetric-gyro derate, Vno chime, 3D audio ball tracking and volume
	control. None of this is flight-critical, so the task tolerates
	seeing sensor and AHRS values from different cycles and takes the
	bus lock with a short timeout rather than blocking the IMU task.
*/

package main

import (
	"log"
	"math"
	"time"

	"github.com/flyonspeed/OnSpeed-Gen3/ahrs"
)

const (
	housekeepingPeriod = 100 * time.Millisecond

	gLimitRepeatTicks   = 30 // 30 x 100 ms cooldown between over-G callouts
	asymmetricGyroLimit = 15 // deg/s roll or yaw beyond which G limits derate

	// 3D audio: gain versus lateral G, scaled 0.08 G per ball width.
	audio3DSmoothing = 0.1

	volumeSmoothing = 0.5
	busLockTimeout  = 5 * time.Millisecond
)

func audio3DCurve(x float64) float64 {
	return -92.822*x*x + 20.025*x
}

// trySensorLock takes the sensor bus with a timeout so housekeeping
// never stalls the IMU task's bus access.
func trySensorLock(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if sensorMutex.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func housekeepingTask() {
	var (
		tick           uint64
		gLimitCooldown int
		vnoCooldown    int
		channelGain    float64
		volPos         float64
		volInit        bool
	)

	timer := time.NewTicker(housekeepingPeriod)
	defer timer.Stop()

	for !shutdownRequested() {
		<-timer.C
		tick++

		mySituation.muAttitude.Lock()
		gRoll := mySituation.GyroRoll
		gYaw := mySituation.GyroYaw
		accelVertCorr := mySituation.AccelVertCorr
		accelLatCorr := mySituation.AccelLatCorr
		mySituation.muAttitude.Unlock()

		mySituation.muPressure.Lock()
		ias := mySituation.IAS
		mySituation.muPressure.Unlock()

		// Over-G warning, with a derate when sustained roll/yaw rates
		// put asymmetric load on the airframe.
		if gLimitCooldown > 0 {
			gLimitCooldown--
		} else if globalSettings.OverGWarning {
			limitPos := globalSettings.LoadLimitPositive
			limitNeg := globalSettings.LoadLimitNegative
			if math.Abs(gRoll) >= asymmetricGyroLimit || math.Abs(gYaw) >= asymmetricGyroLimit {
				limitPos *= 0.666
				limitNeg *= 0.666
			}
			if accelVertCorr >= limitPos || accelVertCorr <= limitNeg {
				myAudio.SetVoice(voiceGLimit)
				gLimitCooldown = gLimitRepeatTicks
			}
		}

		// Vno chime with its configured repeat interval.
		if vnoCooldown > 0 {
			vnoCooldown--
		} else if globalSettings.VnoChimeEnabled && ias > float64(globalSettings.Vno) {
			myAudio.SetVoice(voiceVnoChime)
			interval := globalSettings.VnoChimeInterval
			if interval == 0 {
				interval = 1
			}
			vnoCooldown = int(interval) * 10 // seconds -> 100 ms ticks
		}

		// 3D audio: pan the tone toward the slip ball.
		if globalSettings.Audio3D {
			sign := 1.0
			if accelLatCorr < 0 {
				sign = -1
			}
			curveGain := audio3DCurve(math.Abs(accelLatCorr))
			curveGain = clamp(curveGain, 0, 1) * sign
			channelGain = audio3DSmoothing*curveGain + (1-audio3DSmoothing)*channelGain
			channelGain = clamp(channelGain, -1, 1)
			myAudio.SetGain(math.Abs(-1+channelGain), math.Abs(1+channelGain))
		}

		// Volume every 2nd tick (200 ms).
		if tick%2 == 0 {
			if globalSettings.VolumeControl && volumeReader != nil {
				if trySensorLock(busLockTimeout) {
					if raw, err := volumeReader(); err == nil {
						if !volInit {
							volPos = float64(raw)
							volInit = true
						} else {
							volPos = volumeSmoothing*float64(raw) + (1-volumeSmoothing)*volPos
						}
					}
					sensorMutex.Unlock()
				}
				percent := ahrs.MapFloat(volPos,
					float64(globalSettings.VolumeLowAnalog), float64(globalSettings.VolumeHighAnalog), 0, 100)
				myAudio.SetVolume(int(percent))
			} else {
				myAudio.SetVolume(globalSettings.DefaultVolume)
			}
		}

		// Status heartbeat every 3rd tick (300 ms).
		if tick%3 == 0 {
			updateStatus()
		}
	}
}

func updateStatus() {
	globalStatus.IMUCycles = imuCycles.Load()
	globalStatus.PressureCycles = pressureCycles.Load()
	globalStatus.IMULateCycles = imuLateCycles.Load()
	globalStatus.Uptime = int64(onspeedClock.Elapsed().Seconds())
	globalStatus.UptimeClock = onspeedClock.HumanizeTime(time.Time{})
	if globalSettings.DEBUG {
		log.Printf("status: imu=%d pressure=%d late=%d\n",
			globalStatus.IMUCycles, globalStatus.PressureCycles, globalStatus.IMULateCycles)
	}
}
