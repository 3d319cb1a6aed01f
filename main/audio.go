/*
	audio.go: Advisor-side audio state. The fusion core decides which
	tone to request and at what pulse rate; the I2S playback path is an
	external collaborator that consumes the published ToneResult. Also
	implements the audio-test start/stop protocol used by the
	management interface.
*/

package main

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flyonspeed/OnSpeed-Gen3/ahrs"
)

// Voice clips the housekeeping task can request.
type voiceClip int

const (
	voiceNone voiceClip = iota
	voiceGLimit
	voiceVnoChime
)

type audioPlay struct {
	mu        sync.Mutex
	enabled   bool // pilot audio switch; false = muted
	tone      ahrs.ToneResult
	voice     voiceClip
	volume    int     // percent
	leftGain  float64 // 3D audio channel gains
	rightGain float64

	testRunning  atomic.Bool
	testStarting atomic.Bool
	testStop     atomic.Bool
}

var myAudio = &audioPlay{enabled: true, volume: 80, leftGain: 1, rightGain: 1}

// SetEnabled is the pilot audio-disable switch.
func (a *audioPlay) SetEnabled(on bool) {
	a.mu.Lock()
	a.enabled = on
	a.mu.Unlock()
}

func (a *audioPlay) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// UpdateTones runs the tone advisor against the current AOA/IAS snapshot
// and publishes the result for the playback collaborator. Muted mode
// passes only the stall warning; below the low-airspeed threshold the
// output is silent but carries a high pulse rate so the tone resumes
// instantly when airspeed comes alive.
func (a *audioPlay) UpdateTones() {
	if a.testRunning.Load() {
		return
	}

	mySituation.muPressure.Lock()
	aoa := mySituation.AOA
	ias := mySituation.IAS
	flapIndex := mySituation.FlapIndex
	mySituation.muPressure.Unlock()

	flap := flapSetting(flapIndex)

	var result ahrs.ToneResult
	switch {
	case !a.Enabled():
		result = ahrs.CalcToneMuted(aoa, ias, flap.StallWarnAOA, globalSettings.MuteAudioUnderIAS)
	case ias <= float64(globalSettings.MuteAudioUnderIAS):
		result = ahrs.ToneResult{Tone: ahrs.ToneNone, PPS: ahrs.HighToneStallPPS}
	default:
		result = ahrs.CalcTone(aoa, flap.Thresholds())
	}

	a.mu.Lock()
	a.tone = result
	a.mu.Unlock()

	mySituation.muTone.Lock()
	mySituation.Tone = result
	mySituation.muTone.Unlock()
}

// Tone returns the last advisor output.
func (a *audioPlay) Tone() ahrs.ToneResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tone
}

func (a *audioPlay) SetVoice(v voiceClip) {
	a.mu.Lock()
	a.voice = v
	a.mu.Unlock()
}

func (a *audioPlay) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	a.mu.Lock()
	a.volume = percent
	a.mu.Unlock()
}

func (a *audioPlay) SetGain(left, right float64) {
	a.mu.Lock()
	a.leftGain = left
	a.rightGain = right
	a.mu.Unlock()
}

func (a *audioPlay) setTone(t ahrs.ToneResult) {
	a.mu.Lock()
	a.tone = t
	a.mu.Unlock()
	mySituation.muTone.Lock()
	mySituation.Tone = t
	mySituation.muTone.Unlock()
}

// StartAudioTest launches the speaker-check sequence in its own
// goroutine. The compare-exchange on the starting flag guarantees a
// single instance even under concurrent requests from the UI.
func (a *audioPlay) StartAudioTest() bool {
	if !a.testStarting.CompareAndSwap(false, true) {
		return false
	}
	if a.testRunning.Load() {
		a.testStarting.Store(false)
		return false
	}
	a.testStop.Store(false)
	a.testRunning.Store(true)
	a.testStarting.Store(false)
	go a.audioTestTask()
	return true
}

// StopAudioTest requests the test stop and silences any continuous tone
// immediately; the test goroutine notices within 50 ms.
func (a *audioPlay) StopAudioTest() {
	if !a.IsAudioTestRunning() {
		return
	}
	a.testStop.Store(true)
	a.setTone(ahrs.ToneResult{})
	a.SetVoice(voiceNone)
}

func (a *audioPlay) IsAudioTestRunning() bool {
	return a.testRunning.Load() || a.testStarting.Load()
}

// delayOrStop sleeps in ≤50 ms slices, polling the stop flag. Returns
// false when the test was stopped mid-wait.
func (a *audioPlay) delayOrStop(d time.Duration) bool {
	for remaining := d; remaining > 0; {
		if a.testStop.Load() {
			a.setTone(ahrs.ToneResult{})
			a.SetVoice(voiceNone)
			return false
		}
		slice := remaining
		if slice > 50*time.Millisecond {
			slice = 50 * time.Millisecond
		}
		time.Sleep(slice)
		remaining -= slice
	}
	return !a.testStop.Load()
}

// audioTestTask cycles the left and right channels through the low and
// high tones so an installer can verify the speaker wiring.
func (a *audioPlay) audioTestTask() {
	defer a.testRunning.Store(false)
	log.Println("Audio Info: audio test started")

	steps := []struct {
		left, right float64
		tone        ahrs.ToneResult
	}{
		{1, 0, ahrs.ToneResult{Tone: ahrs.ToneLow, PPS: 0}},
		{1, 0, ahrs.ToneResult{Tone: ahrs.ToneHigh, PPS: 2}},
		{0, 1, ahrs.ToneResult{Tone: ahrs.ToneLow, PPS: 0}},
		{0, 1, ahrs.ToneResult{Tone: ahrs.ToneHigh, PPS: 2}},
	}
	for _, st := range steps {
		a.SetGain(st.left, st.right)
		a.setTone(st.tone)
		if !a.delayOrStop(2 * time.Second) {
			log.Println("Audio Info: audio test stopped")
			a.SetGain(1, 1)
			return
		}
	}

	a.setTone(ahrs.ToneResult{})
	a.SetGain(1, 1)
	log.Println("Audio Info: audio test complete")
}
