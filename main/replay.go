/*
	replay.go: Bench replay. Feeds a recorded sensor CSV through the
	fake sensors at the IMU rate so the whole fusion pipeline, advisor
	and UI run from a flight recording.
*/

package main

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/flyonspeed/OnSpeed-Gen3/sensors"
)

// replaySensorLog reads rows of
// pfwdCounts,p45Counts,staticMbar,ax,ay,az,gx,gy,gz and pushes them into
// the fake sensor set at the IMU cadence. Requires the bench fakes; a
// hardware sensor set is left alone.
func replaySensorLog(path string) {
	imu, imuOK := myIMU.(*sensors.FakeIMU)
	pitot, pitotOK := myPitot.(*sensors.FakeDifferentialPressure)
	p45, p45OK := myP45.(*sensors.FakeDifferentialPressure)
	static, staticOK := myStatic.(*sensors.FakeStaticPressure)
	if !imuOK || !pitotOK || !p45OK || !staticOK {
		log.Println("replay: hardware sensors active, replay disabled")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.Printf("replay: %s\n", err)
		return
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 9
	tick := newFracTicker(globalSettings.IMUSampleRate)

	rows := 0
	for !shutdownRequested() {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("replay: row %d: %s\n", rows, err)
			return
		}
		vals := make([]float64, len(rec))
		bad := false
		for i, s := range rec {
			if vals[i], err = strconv.ParseFloat(s, 64); err != nil {
				bad = true
				break
			}
		}
		if bad {
			continue // header or comment row
		}

		tick.wait()
		pitot.SetCounts(int(vals[0]))
		p45.SetCounts(int(vals[1]))
		static.SetMillibars(vals[2])
		imu.Set(sensors.IMUSample{
			Ax: vals[3], Ay: vals[4], Az: vals[5],
			Gx: vals[6], Gy: vals[7], Gz: vals[8],
		})
		rows++
	}
	log.Printf("replay: finished after %d rows\n", rows)
}
