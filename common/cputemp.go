package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const InvalidCpuTemp = float32(-99.0)

type CpuTempUpdateFunc func(cpuTemp float32)

/* CpuTempMonitor reads the board temperature every second and calls a
callback. Broken out into its own goroutine because the kernel thermal
sysfs read can hang quite some time on some boards. */

func CpuTempMonitor(updater CpuTempUpdateFunc) {
	timer := time.NewTicker(1 * time.Second)
	for {
		// Update CPUTemp.
		temp, err := os.ReadFile("/sys/class/thermal/thermal_zone0/temp")
		tempStr := strings.Trim(string(temp), "\n")
		t := InvalidCpuTemp
		if err == nil {
			tInt, err := strconv.Atoi(tempStr)
			if err == nil {
				if tInt > 1000 {
					t = float32(tInt) / float32(1000.0)
				} else {
					t = float32(tInt) // case where Temp is returned as simple integer
				}
			}
		}
		if t >= InvalidCpuTemp { // Only update if valid value was obtained.
			updater(t)
		}
		<-timer.C
	}
}

// Check if CPU temperature is valid. Assume <= 0 is invalid.
func IsCPUTempValid(cpuTemp float32) bool {
	return cpuTemp > 0
}
