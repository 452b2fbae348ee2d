// Package lock provides drop-in replacements for sync mutexes with
// deadlock detection enabled.
package lock

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Mutex is sync.Mutex with deadlock detection
type Mutex = deadlock.Mutex

// RWMutex is sync.RWMutex with deadlock detection
type RWMutex = deadlock.RWMutex

func init() {
	// mirror operations can legitimately hold the lock for a long time
	// while the external git process runs
	deadlock.Opts.DeadlockTimeout = 30 * time.Minute
}
