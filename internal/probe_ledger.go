package internal

import (
	"sync"
	"sync/atomic"
)

// ProbeLedger tracks latency probes that are in flight: which sequence
// numbers went out and when, in client time (seconds since the connection
// was established). Responses claim their entry back out; entries that never
// get claimed are evicted once they pass a staleness cutoff so the table
// stays bounded on a lossy or silent server.
type ProbeLedger struct {
	nextSequence atomic.Uint64

	mut_sentProbes sync.RWMutex
	sentProbes     map[uint64]float64
}

func CreateProbeLedger() *ProbeLedger {
	return &ProbeLedger{
		nextSequence:   atomic.Uint64{},
		mut_sentProbes: sync.RWMutex{},
		sentProbes:     make(map[uint64]float64),
	}
}

// NextSequence hands out probe sequence numbers, starting at 1. The counter
// wraps modulo 2^64; eviction is keyed on send time, so a wrapped sequence
// cannot collide with a live entry.
func (l *ProbeLedger) NextSequence() uint64 {
	return l.nextSequence.Add(1)
}

func (l *ProbeLedger) Record(sequence uint64, sentAt float64) {
	l.mut_sentProbes.Lock()
	defer l.mut_sentProbes.Unlock()
	l.sentProbes[sequence] = sentAt
}

// Claim looks up and removes a probe entry in one step. A miss means the
// response is a duplicate, was already evicted as stale, or was never sent
// on this connection - callers ignore those.
func (l *ProbeLedger) Claim(sequence uint64) (float64, bool) {
	l.mut_sentProbes.Lock()
	defer l.mut_sentProbes.Unlock()

	sentAt, has := l.sentProbes[sequence]
	if !has {
		return 0, false
	}
	delete(l.sentProbes, sequence)
	return sentAt, true
}

// EvictStale removes every entry sent before the cutoff and reports how many
// were dropped.
func (l *ProbeLedger) EvictStale(cutoff float64) int {
	l.mut_sentProbes.Lock()
	defer l.mut_sentProbes.Unlock()

	evicted := 0
	for sequence, sentAt := range l.sentProbes {
		if sentAt < cutoff {
			delete(l.sentProbes, sequence)
			evicted++
		}
	}
	return evicted
}

func (l *ProbeLedger) Len() int {
	l.mut_sentProbes.RLock()
	defer l.mut_sentProbes.RUnlock()
	return len(l.sentProbes)
}

// Reset clears in-flight entries. The sequence counter keeps counting so a
// reconnect never reuses recent sequence numbers.
func (l *ProbeLedger) Reset() {
	l.mut_sentProbes.Lock()
	defer l.mut_sentProbes.Unlock()
	l.sentProbes = make(map[uint64]float64)
}
