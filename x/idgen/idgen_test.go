package idgen

import (
	"sync"
	"testing"
)

func TestCounterSequential(t *testing.T) {
	var c Counter[uint32]
	for want := uint32(0); want < 5; want++ {
		if got := c.Next(); got != want {
			t.Fatalf("Next: got %d want %d", got, want)
		}
	}
	if c.Peek() != 5 {
		t.Fatalf("Peek: got %d", c.Peek())
	}
}

func TestCounterConcurrentUnique(t *testing.T) {
	var c Counter[uint64]
	const workers, per = 8, 500

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, c.Next())
			}
			mu.Lock()
			for _, v := range local {
				seen[v] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != workers*per {
		t.Fatalf("duplicate ids: %d unique of %d", len(seen), workers*per)
	}
}
