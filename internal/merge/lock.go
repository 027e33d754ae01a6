package merge

import (
	"path/filepath"
	"sync"
)

// Concurrent runs against the same destination must not interleave their
// read-merge-write cycles. Locks are scoped per cleaned destination path.
var (
	locksMu sync.Mutex
	locks   = make(map[string]*sync.Mutex)
)

// LockDestination acquires the mutex for one destination and returns the
// release function.
func LockDestination(path string) func() {
	key := filepath.Clean(path)

	locksMu.Lock()
	mu, ok := locks[key]
	if !ok {
		mu = &sync.Mutex{}
		locks[key] = mu
	}
	locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
