package internal

import (
	"math"
	"testing"
)

func TestSequenceNumbersIncrease(t *testing.T) {
	l := CreateProbeLedger()

	prev := l.NextSequence()
	if prev != 1 {
		t.Errorf("expected first sequence number 1, got %d", prev)
	}
	for i := 0; i < 100; i++ {
		seq := l.NextSequence()
		if seq != prev+1 {
			t.Fatalf("expected sequence %d, got %d", prev+1, seq)
		}
		prev = seq
	}
}

func TestRecordAndClaim(t *testing.T) {
	l := CreateProbeLedger()

	seq := l.NextSequence()
	l.Record(seq, 1.5)

	sentAt, ok := l.Claim(seq)
	if !ok {
		t.Fatal("expected to claim a recorded probe")
	}
	if sentAt != 1.5 {
		t.Errorf("expected send time 1.5, got %v", sentAt)
	}

	// A claim removes the entry: a duplicate response misses.
	if _, ok := l.Claim(seq); ok {
		t.Error("expected second claim of the same sequence to miss")
	}
}

func TestClaimUnknownSequence(t *testing.T) {
	l := CreateProbeLedger()
	if _, ok := l.Claim(999); ok {
		t.Error("expected claim of an unknown sequence to miss")
	}
}

func TestEvictStale(t *testing.T) {
	l := CreateProbeLedger()
	l.Record(1, 1.0)
	l.Record(2, 2.0)
	l.Record(3, 9.0)

	evicted := l.EvictStale(5.0)
	if evicted != 2 {
		t.Errorf("expected 2 stale entries evicted, got %d", evicted)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", l.Len())
	}

	if _, ok := l.Claim(1); ok {
		t.Error("expected evicted probe to be unclaimable")
	}
	if _, ok := l.Claim(3); !ok {
		t.Error("expected fresh probe to survive eviction")
	}
}

func TestEvictStaleKeepsEntryAtCutoff(t *testing.T) {
	l := CreateProbeLedger()
	l.Record(1, 5.0)

	if evicted := l.EvictStale(5.0); evicted != 0 {
		t.Errorf("expected entry exactly at the cutoff to survive, evicted %d", evicted)
	}
}

func TestSequenceWraparound(t *testing.T) {
	l := CreateProbeLedger()
	l.nextSequence.Store(math.MaxUint64)

	seq := l.NextSequence()
	if seq != 0 {
		t.Fatalf("expected sequence counter to wrap to 0, got %d", seq)
	}

	l.Record(seq, 3.0)
	if sentAt, ok := l.Claim(seq); !ok || sentAt != 3.0 {
		t.Errorf("expected wrapped sequence to round-trip, got sentAt=%v ok=%v", sentAt, ok)
	}

	if next := l.NextSequence(); next != 1 {
		t.Errorf("expected counting to resume at 1 after wrap, got %d", next)
	}
}

func TestReset(t *testing.T) {
	l := CreateProbeLedger()
	seqBefore := l.NextSequence()
	l.Record(seqBefore, 1.0)

	l.Reset()

	if l.Len() != 0 {
		t.Errorf("expected empty ledger after reset, got %d entries", l.Len())
	}
	if _, ok := l.Claim(seqBefore); ok {
		t.Error("expected pre-reset probes to be unclaimable")
	}
	if seqAfter := l.NextSequence(); seqAfter != seqBefore+1 {
		t.Errorf("expected sequence counter to survive reset, got %d after %d", seqAfter, seqBefore)
	}
}
