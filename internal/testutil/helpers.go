package testutil

import (
	"sync"
	"testing"
)

// RunConcurrent calls fn from n goroutines and waits for all of them.
// A panic in fn fails the test instead of crashing the binary.
func RunConcurrent(t *testing.T, n int, fn func(workerID int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("worker %d panicked: %v", workerID, r)
				}
			}()
			fn(workerID)
		}(i)
	}

	wg.Wait()
}

// AssertNoRaces runs fn concurrently. Pair it with go test -race.
func AssertNoRaces(t *testing.T, fn func(), iterations int) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping race detection test in short mode")
	}

	RunConcurrent(t, iterations, func(_ int) {
		fn()
	})
}
