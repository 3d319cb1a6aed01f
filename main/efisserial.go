/*
	efisserial.go: EFIS serial feed. The wire protocols themselves are
	parsed by the display/telemetry side; the fusion core only consumes
	the outside-air-temperature field, used for density-corrected TAS
	when the calibration source is the EFIS.
*/

package main

import (
	"bufio"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// efisSerialReader opens the configured EFIS port and keeps the OAT
// field of the situation fresh. Reconnects on error with a short
// backoff.
func efisSerialReader() {
	for !shutdownRequested() {
		cfg := &serial.Config{
			Name:        globalSettings.EfisSerialPort,
			Baud:        115200,
			ReadTimeout: time.Second,
		}
		port, err := serial.OpenPort(cfg)
		if err != nil {
			log.Printf("EFIS Error: open %s: %s\n", cfg.Name, err)
			globalStatus.EFISConnected = false
			time.Sleep(5 * time.Second)
			continue
		}
		log.Printf("EFIS Info: connected on %s\n", cfg.Name)
		globalStatus.EFISConnected = true

		scanner := bufio.NewScanner(port)
		for scanner.Scan() && !shutdownRequested() {
			if oat, ok := parseEfisOat(scanner.Text()); ok {
				mySituation.muEfis.Lock()
				mySituation.EfisOatC = oat
				mySituation.EfisOatValid = oat > -100 && oat < 100
				mySituation.EfisLastTime = onspeedClock.Now()
				mySituation.muEfis.Unlock()
			}
		}
		if err := scanner.Err(); err != nil {
			log.Printf("EFIS Error: read: %s\n", err)
		}
		port.Close()
		globalStatus.EFISConnected = false
		time.Sleep(time.Second)
	}
}

// parseEfisOat extracts the OAT in °C from a text-format EFIS line.
// Accepted forms are comma-separated key=value pairs ("...,OAT=12.5,...")
// and the bare "OAT 12.5" used by the display link.
func parseEfisOat(line string) (float64, bool) {
	for _, field := range strings.Split(line, ",") {
		field = strings.TrimSpace(field)
		var val string
		switch {
		case strings.HasPrefix(field, "OAT="):
			val = field[len("OAT="):]
		case strings.HasPrefix(field, "OAT "):
			val = strings.TrimSpace(field[len("OAT "):])
		default:
			continue
		}
		oat, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return oat, true
	}
	return 0, false
}
