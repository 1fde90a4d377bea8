package utils

import (
	"strings"
	"sync"
	"testing"
)

func TestGetRandomStringLength(t *testing.T) {
	gen := CreateRandomstringGenerator(42)
	for _, n := range []int{0, 1, 6, 32} {
		if got := gen.GetRandomString(n); len(got) != n {
			t.Errorf("expected length %d, got %d (%q)", n, len(got), got)
		}
	}
}

func TestGetRandomStringUsesCharset(t *testing.T) {
	gen := CreateRandomstringGenerator(42)
	s := gen.GetRandomString(256)
	for _, r := range s {
		if !strings.ContainsRune(string(letters), r) {
			t.Fatalf("unexpected rune %q in generated string", r)
		}
	}
}

func TestSameSeedSameSequence(t *testing.T) {
	a := CreateRandomstringGenerator(7)
	b := CreateRandomstringGenerator(7)
	for i := 0; i < 10; i++ {
		sa, sb := a.GetRandomString(8), b.GetRandomString(8)
		if sa != sb {
			t.Fatalf("expected identical sequences for identical seeds, got %q vs %q", sa, sb)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	gen := CreateRandomstringGenerator(99)

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := gen.GetRandomString(6); len(got) != 6 {
					t.Errorf("expected length 6, got %d", len(got))
				}
			}
		}()
	}
	wg.Wait()
}
