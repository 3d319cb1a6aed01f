/*
	logging.go: Initialize go logging, watch log file size and rotate,
	delete old logs when the disk fills.
*/

package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ricochet2200/go-disk-usage/du"
)

const debugLogFile = "onspeed.log"

var (
	logDir        = "/var/log/onspeed"
	debugLogf     string
	logFileHandle *os.File
)

const (
	maxLogSize   = 10 * 1024 * 1024 // rotate at 10 MB
	maxDiskUsage = 0.95             // delete the oldest rotated logs beyond this fill ratio
)

func getOnspeedLogFiles() []string {
	entries, err := os.ReadDir(logDir)
	logs := make([]string, 0)
	if err != nil {
		return logs
	}

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), debugLogFile+".") {
			logs = append(logs, filepath.Join(logDir, e.Name()))
		}
	}
	sort.Strings(logs)
	return logs
}

func rotateLogs() {
	logs := getOnspeedLogFiles()

	// Bump each numeric suffix; drop anything past .9.
	for i := len(logs) - 1; i >= 0; i-- {
		parts := strings.Split(logs[i], ".")
		logNum, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			continue
		}

		newPath := filepath.Join(logDir, debugLogFile+"."+strconv.Itoa(logNum+1))

		if logNum == 9 {
			os.Remove(logs[i])
		} else {
			os.Rename(logs[i], newPath)
		}
	}

	os.Rename(debugLogf, debugLogf+".1")
	openLogFile()
}

func deleteOldestLog() int64 {
	logs := getOnspeedLogFiles()
	if len(logs) == 0 {
		return 0
	}
	oldest := logs[len(logs)-1]
	info, err := os.Stat(oldest)
	if err != nil {
		return 0
	}
	os.Remove(oldest)
	return info.Size()
}

func diskUsageRatio() float64 {
	usage := du.NewDiskUsage(logDir)
	if usage.Size() == 0 {
		return 0
	}
	return float64(usage.Used()) / float64(usage.Size())
}

func openLogFile() {
	fp, err := os.OpenFile(debugLogf, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("Failed to open log file '%s': %s\n", debugLogf, err.Error())
		return
	}
	if logFileHandle != nil {
		logFileHandle.Close()
	}
	logFileHandle = fp
	log.SetOutput(io.MultiWriter(fp, os.Stdout))
}

// logWatcher rotates on size and frees space when the disk is nearly
// full. Checked once a minute.
func logWatcher() {
	timer := time.NewTicker(time.Minute)
	for {
		<-timer.C

		if info, err := os.Stat(debugLogf); err == nil && info.Size() > maxLogSize {
			rotateLogs()
		}
		for diskUsageRatio() > maxDiskUsage {
			if deleteOldestLog() == 0 {
				break
			}
		}
	}
}

func initLogging() {
	os.MkdirAll(logDir, 0755)
	debugLogf = filepath.Join(logDir, debugLogFile)
	openLogFile()
	go logWatcher()
}
