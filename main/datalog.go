/*
	datalog.go: Log the fused sensor stream to sqlite for post-flight
	analysis and calibration. Columns are derived from the snapshot
	struct by reflection so the schema follows the published fields.
*/

package main

import (
	"database/sql"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var dataLogFile = "/var/log/onspeed/onspeed.db"

var dataLogChan = make(chan SituationSnapshot, 256)

// sqlTypeFor maps Go kinds onto sqlite column types; anything else is
// skipped.
func sqlTypeFor(k reflect.Kind) string {
	switch k {
	case reflect.Bool, reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return "INTEGER"
	case reflect.Float32, reflect.Float64:
		return "REAL"
	case reflect.String:
		return "TEXT"
	}
	return ""
}

func snapshotColumns() []string {
	t := reflect.TypeOf(SituationSnapshot{})
	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if sqlTypeFor(t.Field(i).Type.Kind()) != "" {
			cols = append(cols, t.Field(i).Name)
		}
	}
	return cols
}

func createSensorTable(db *sql.DB) error {
	t := reflect.TypeOf(SituationSnapshot{})
	defs := []string{"id INTEGER PRIMARY KEY AUTOINCREMENT", "timestamp_ms INTEGER"}
	for i := 0; i < t.NumField(); i++ {
		sqlType := sqlTypeFor(t.Field(i).Type.Kind())
		if sqlType == "" {
			continue
		}
		defs = append(defs, fmt.Sprintf("%s %s", t.Field(i).Name, sqlType))
	}
	_, err := db.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS sensor_log (%s)", strings.Join(defs, ", ")))
	return err
}

func insertSnapshot(stmt *sql.Stmt, ts uint64, s SituationSnapshot) error {
	v := reflect.ValueOf(s)
	t := v.Type()
	args := make([]interface{}, 0, t.NumField()+1)
	args = append(args, int64(ts))
	for i := 0; i < t.NumField(); i++ {
		if sqlTypeFor(t.Field(i).Type.Kind()) == "" {
			continue
		}
		args = append(args, v.Field(i).Interface())
	}
	_, err := stmt.Exec(args...)
	return err
}

// logSituation queues the current snapshot for the datalog writer; when
// logging is off or the writer is saturated the sample is dropped.
func logSituation() {
	if !globalSettings.DataLog {
		return
	}
	select {
	case dataLogChan <- mySituation.snapshot(myAHRS.TAS()):
	default:
	}
}

// dataLogWriter owns the database connection; batches queued rows into
// one transaction per second to keep sd-card wear sane.
func dataLogWriter() {
	db, err := sql.Open("sqlite3", dataLogFile)
	if err != nil {
		log.Printf("datalog: open %s: %s\n", dataLogFile, err.Error())
		return
	}
	defer db.Close()

	if err := createSensorTable(db); err != nil {
		log.Printf("datalog: create table: %s\n", err.Error())
		return
	}

	cols := snapshotColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)+1), ",")
	insertSQL := fmt.Sprintf("INSERT INTO sensor_log (timestamp_ms, %s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders)

	timer := time.NewTicker(time.Second)
	pending := make([]SituationSnapshot, 0, 64)
	for {
		select {
		case s := <-dataLogChan:
			pending = append(pending, s)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			tx, err := db.Begin()
			if err != nil {
				log.Printf("datalog: begin: %s\n", err.Error())
				pending = pending[:0]
				continue
			}
			stmt, err := tx.Prepare(insertSQL)
			if err != nil {
				log.Printf("datalog: prepare: %s\n", err.Error())
				tx.Rollback()
				pending = pending[:0]
				continue
			}
			for _, s := range pending {
				if err := insertSnapshot(stmt, onspeedClock.Milliseconds(), s); err != nil {
					log.Printf("datalog: insert: %s\n", err.Error())
					break
				}
			}
			stmt.Close()
			if err := tx.Commit(); err != nil {
				log.Printf("datalog: commit: %s\n", err.Error())
			}
			pending = pending[:0]
		}
	}
}
