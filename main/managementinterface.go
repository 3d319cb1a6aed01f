package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"github.com/flyonspeed/OnSpeed-Gen3/ahrsweb"
)

const managementAddr = ":80"

type SettingMessage struct {
	Setting string  `json:"setting"`
	Value   bool    `json:"state"`
	Number  float64 `json:"value"`
}

type InfoMessage struct {
	*status
	*settings
}

func statusSender(conn *websocket.Conn) {
	timer := time.NewTicker(1 * time.Second)
	for {
		<-timer.C

		update, _ := json.Marshal(InfoMessage{status: &globalStatus, settings: &globalSettings})
		_, err := conn.Write(update)

		if err != nil {
			break
		}
	}
}

func handleManagementConnection(conn *websocket.Conn) {
	go statusSender(conn)

	for {
		var msg SettingMessage
		err := websocket.JSON.Receive(conn, &msg)
		if err == io.EOF {
			break
		} else if err != nil {
			log.Printf("handleManagementConnection: %s\n", err.Error())
			continue
		}

		switch msg.Setting {
		case "AudioEnabled":
			myAudio.SetEnabled(msg.Value)
		case "Audio3D":
			globalSettings.Audio3D = msg.Value
		case "VnoChimeEnabled":
			globalSettings.VnoChimeEnabled = msg.Value
		case "OverGWarning":
			globalSettings.OverGWarning = msg.Value
		case "DataLog":
			globalSettings.DataLog = msg.Value
		case "DEBUG":
			globalSettings.DEBUG = msg.Value
		case "AudioTestStart":
			if !myAudio.StartAudioTest() {
				log.Println("Audio Info: audio test already running")
			}
			continue // transient command, nothing to persist
		case "AudioTestStop":
			myAudio.StopAudioTest()
			continue
		default:
			log.Printf("handleManagementConnection: unknown setting %q\n", msg.Setting)
			continue
		}

		validateSettings()
		saveSettings()
	}
}

// AJAX call - /getSituation. Responds with the current fused snapshot.
func handleSituationRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	situationJSON, _ := json.Marshal(mySituation.snapshot(myAHRS.TAS()))
	fmt.Fprintf(w, "%s\n", situationJSON)
}

// AJAX call - /getSettings. Responds with all onspeed.conf data.
func handleSettingsGetRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	settingsJSON, _ := json.Marshal(&globalSettings)
	fmt.Fprintf(w, "%s\n", settingsJSON)
}

// AJAX call - /setSettings. Receives any/all onspeed.conf data via POST.
func handleSettingsSetRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	newSettings := globalSettings
	if err := json.Unmarshal(body, &newSettings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	globalSettings = newSettings
	validateSettings()
	saveSettings()
	handleSettingsGetRequest(w, r)
}

func registerMetrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "onspeed_imu_cycles_total",
			Help: "IMU/AHRS cycles executed.",
		}, func() float64 { return float64(imuCycles.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "onspeed_imu_late_cycles_total",
			Help: "IMU cycles that missed their deadline by more than 1ms.",
		}, func() float64 { return float64(imuLateCycles.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "onspeed_pressure_cycles_total",
			Help: "Pressure/AOA cycles executed.",
		}, func() float64 { return float64(pressureCycles.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "onspeed_ias_kts",
			Help: "Indicated airspeed.",
		}, func() float64 {
			mySituation.muPressure.Lock()
			defer mySituation.muPressure.Unlock()
			return mySituation.IAS
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "onspeed_aoa_deg",
			Help: "Smoothed angle of attack.",
		}, func() float64 {
			mySituation.muPressure.Lock()
			defer mySituation.muPressure.Unlock()
			return mySituation.AOA
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "onspeed_kalman_vsi_mps",
			Help: "Kalman vertical speed.",
		}, func() float64 {
			mySituation.muAttitude.Lock()
			defer mySituation.muAttitude.Unlock()
			return mySituation.KalmanVSI
		}),
	)
	return reg
}

func managementInterface() {
	telemetryRoom := ahrsweb.NewRoom()
	go telemetryRoom.Run()
	go telemetrySender(telemetryRoom)

	http.Handle("/", http.FileServer(http.Dir("/var/www")))
	http.Handle("/logs/", http.StripPrefix("/logs/", http.FileServer(http.Dir(logDir))))
	http.HandleFunc("/control",
		func(w http.ResponseWriter, req *http.Request) {
			s := websocket.Server{
				Handler: websocket.Handler(handleManagementConnection)}
			s.ServeHTTP(w, req)
		})
	http.HandleFunc("/situation",
		func(w http.ResponseWriter, req *http.Request) {
			s := websocket.Server{
				Handler: websocket.Handler(func(conn *websocket.Conn) {
					uiBroadcaster.AddSocket(conn)
					// Block until the connection dies; the broadcaster
					// drops it on write failure.
					buf := make([]byte, 64)
					for {
						if _, err := conn.Read(buf); err != nil {
							break
						}
					}
				})}
			s.ServeHTTP(w, req)
		})
	http.Handle("/ahrsweb", telemetryRoom)

	http.HandleFunc("/getSituation", handleSituationRequest)
	http.HandleFunc("/getSettings", handleSettingsGetRequest)
	http.HandleFunc("/setSettings", handleSettingsSetRequest)
	http.Handle("/metrics", promhttp.HandlerFor(registerMetrics(), promhttp.HandlerOpts{}))

	err := http.ListenAndServe(managementAddr, nil)

	if err != nil {
		log.Printf("managementInterface ListenAndServe: %s\n", err.Error())
	}
}

// telemetrySender feeds the analysis room and the UI broadcaster at
// 10 Hz with one consistent snapshot.
func telemetrySender(room *ahrsweb.Room) {
	timer := time.NewTicker(100 * time.Millisecond)
	for !shutdownRequested() {
		<-timer.C

		snap := mySituation.snapshot(myAHRS.TAS())

		if msg, err := json.Marshal(snap); err == nil {
			uiBroadcaster.Send(msg)
		}

		mySituation.muAttitude.Lock()
		biasP, biasQ, biasR := mySituation.BiasP, mySituation.BiasQ, mySituation.BiasR
		mySituation.muAttitude.Unlock()

		room.Send(&ahrsweb.FusionData{
			T:            onspeedClock.Elapsed().Seconds(),
			IAS:          snap.IAS,
			TAS:          snap.TAS,
			Palt:         snap.Palt,
			KalmanAlt:    snap.KalmanAlt,
			KalmanVSI:    snap.KalmanVSI,
			DecelRate:    snap.DecelRate,
			Roll:         snap.Roll,
			Pitch:        snap.Pitch,
			FlightPath:   snap.FlightPath,
			AOA:          snap.AOA,
			DerivedAOA:   snap.DerivedAOA,
			CoeffP:       snap.CoeffP,
			BiasP:        biasP,
			BiasQ:        biasQ,
			BiasR:        biasR,
			AccelFwd:     snap.AccelFwd,
			AccelLat:     snap.AccelLat,
			AccelVert:    snap.AccelVert,
			GyroRoll:     snap.GyroRoll,
			GyroPitch:    snap.GyroPitch,
			GyroYaw:      snap.GyroYaw,
			FlapIndex:    snap.FlapIndex,
			FlapPosition: snap.FlapPosition,
			OatC:         snap.OatC,
			Tone:         snap.Tone,
			PPS:          snap.TonePPS,
		})
	}
}
