/*
	onspeed.go: Entry point. Loads settings, brings up the sensor set,
	seeds the AHRS from the first accelerometer reading and starts the
	three periodic tasks plus the network services.
*/

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/takama/daemon"

	"github.com/flyonspeed/OnSpeed-Gen3/common"
	"github.com/flyonspeed/OnSpeed-Gen3/sensors"
)

var onspeedVersion = "v3.3-go"

var onspeedClock *monotonic

const (
	daemonName        = "onspeed"
	daemonDescription = "OnSpeed AOA fusion core"
)

// handleDaemonCommand services "install", "remove", "start", "stop" and
// "status" before the fusion core comes up.
func handleDaemonCommand(cmd string) (string, error) {
	srv, err := daemon.New(daemonName, daemonDescription, daemon.SystemDaemon)
	if err != nil {
		return "", err
	}
	switch cmd {
	case "install":
		return srv.Install()
	case "remove":
		return srv.Remove()
	case "start":
		return srv.Start()
	case "stop":
		return srv.Stop()
	case "status":
		return srv.Status()
	}
	return "", fmt.Errorf("unknown command %q", cmd)
}

func main() {
	hardware := flag.Bool("hw", false, "use the I2C/serial hardware sensors")
	replay := flag.String("replay", "", "replay a recorded sensor csv instead of hardware")
	flag.Parse()

	if args := flag.Args(); len(args) == 1 {
		if !common.IsRunningAsRoot() {
			fmt.Println("service commands must run as root")
			os.Exit(1)
		}
		state, err := handleDaemonCommand(args[0])
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Println(state)
		return
	}

	onspeedClock = NewMonotonic()

	initLogging()
	log.Printf("OnSpeed %s starting.\n", onspeedVersion)

	readSettings()
	globalStatus.Version = onspeedVersion

	initSensors(*hardware)
	if *replay != "" {
		go replaySensorLog(*replay)
	}

	// Seed the attitude pipeline from a first accelerometer reading and
	// the current pressure altitude.
	sensorMutex.Lock()
	first, err := myIMU.Read()
	staticMbar, staticErr := myStatic.ReadMillibars()
	sensorMutex.Unlock()
	if err != nil {
		log.Printf("AHRS Warning: no initial IMU sample (%s), assuming level\n", err)
		first = sensors.IMUSample{Az: -1}
	}
	paltFt := 0.0
	if staticErr == nil {
		paltFt = pressureAltitudeFeetFromMbar(staticMbar, 0)
	}
	mySituation.muPressure.Lock()
	mySituation.Palt = paltFt
	mySituation.muPressure.Unlock()
	myAHRS.init(first, paltFt)

	go common.CpuTempMonitor(func(t float32) { globalStatus.CPUTemp = t })
	go imuAhrsTask()
	go pressureAoaTask()
	go housekeepingTask()
	go dataLogWriter()
	go managementInterface()
	if globalSettings.ReadEfisData && globalSettings.EfisSerialPort != "" {
		go efisSerialReader()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Println("OnSpeed stopping.")
	requestShutdown()
	time.Sleep(200 * time.Millisecond) // let the tasks notice the flag
}
