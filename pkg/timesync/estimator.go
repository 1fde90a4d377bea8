// Package timesync derives a smoothed estimate of the game server's clock
// from round-trip latency probes. It is pure state - the connection session
// feeds it samples and the render loop reads display time out of it.
package timesync

import "sync"

const (
	DefaultWindowSize = 10

	// DisplaySafetyMargin is subtracted from every displayed server time, in
	// seconds. The displayed timeline runs a fixed step behind the raw
	// estimate so that server state for the displayed instant has usually
	// already arrived.
	DisplaySafetyMargin = 0.010
)

// Estimator keeps the most recent round-trip and clock-offset measurements in
// paired fixed-size windows and reports their arithmetic means. Values are
// unit-agnostic; the session feeds seconds.
type Estimator struct {
	mut_samples sync.RWMutex
	rtts        []float64
	offsets     []float64
	head        int
	count       int
}

func CreateEstimator(windowSize int) *Estimator {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Estimator{
		rtts:    make([]float64, windowSize),
		offsets: make([]float64, windowSize),
	}
}

// RecordSample appends a paired measurement, evicting the oldest pair once
// the window is full.
func (e *Estimator) RecordSample(rtt, offset float64) {
	e.mut_samples.Lock()
	defer e.mut_samples.Unlock()

	if e.count == len(e.rtts) {
		e.rtts[e.head] = rtt
		e.offsets[e.head] = offset
		e.head = (e.head + 1) % len(e.rtts)
		return
	}

	slot := (e.head + e.count) % len(e.rtts)
	e.rtts[slot] = rtt
	e.offsets[slot] = offset
	e.count++
}

// FilteredOffsetAndRtt returns the mean offset and round-trip time over the
// current windows. ok is false when no samples have been recorded yet.
func (e *Estimator) FilteredOffsetAndRtt() (offset, rtt float64, ok bool) {
	e.mut_samples.RLock()
	defer e.mut_samples.RUnlock()

	if e.count == 0 {
		return 0, 0, false
	}

	var offsetSum, rttSum float64
	for i := 0; i < e.count; i++ {
		slot := (e.head + i) % len(e.rtts)
		offsetSum += e.offsets[slot]
		rttSum += e.rtts[slot]
	}

	return offsetSum / float64(e.count), rttSum / float64(e.count), true
}

// DisplayServerTime maps a client-clock reading onto the estimated server
// timeline: clientNow + offset - rtt/2 - DisplaySafetyMargin. ok is false
// until the first sample arrives; callers fall back to client time or hold
// their previous value.
func (e *Estimator) DisplayServerTime(clientNow float64) (float64, bool) {
	offset, rtt, ok := e.FilteredOffsetAndRtt()
	if !ok {
		return 0, false
	}
	return clientNow + offset - 0.5*rtt - DisplaySafetyMargin, true
}

func (e *Estimator) SampleCount() int {
	e.mut_samples.RLock()
	defer e.mut_samples.RUnlock()
	return e.count
}

func (e *Estimator) Reset() {
	e.mut_samples.Lock()
	defer e.mut_samples.Unlock()
	e.head = 0
	e.count = 0
}
