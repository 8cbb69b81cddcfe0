package sdktest

import (
	"fmt"
	"sync"
	"testing"
)

// ConcurrentTestHelper runs a function from many goroutines and reports
// every failure.
type ConcurrentTestHelper struct {
	t         *testing.T
	wg        sync.WaitGroup
	errors    []error
	errorsMux sync.Mutex
}

// NewConcurrentTestHelper creates a new concurrent test helper
func NewConcurrentTestHelper(t *testing.T) *ConcurrentTestHelper {
	return &ConcurrentTestHelper{
		t:      t,
		errors: make([]error, 0),
	}
}

// Run executes fn from numGoroutines goroutines
func (cth *ConcurrentTestHelper) Run(numGoroutines int, fn func(id int) error) {
	cth.wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer cth.wg.Done()

			if err := fn(id); err != nil {
				cth.errorsMux.Lock()
				cth.errors = append(cth.errors, fmt.Errorf("goroutine %d: %w", id, err))
				cth.errorsMux.Unlock()
			}
		}(i)
	}
}

// Wait waits for all goroutines to complete and checks for errors
func (cth *ConcurrentTestHelper) Wait() {
	cth.wg.Wait()

	cth.errorsMux.Lock()
	defer cth.errorsMux.Unlock()

	if len(cth.errors) > 0 {
		for _, err := range cth.errors {
			cth.t.Error(err)
		}
		cth.t.Fatalf("concurrent test failed with %d errors", len(cth.errors))
	}
}
