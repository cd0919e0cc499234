/*
sweeper.go - Expired advisory-lock sweeper

PURPOSE:
  Advisory verification locks carry a TTL so an abandoned review session
  cannot block a document forever. Expired locks are already treated as
  released on read; this background sweeper additionally clears the
  stored flags and writes the auto_unlocked audit entry.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each sweep force-unlocks every expired lock in one pass
  - Safe to run alongside request traffic: the sweep runs in the same
    transactional path as manual unlock

USAGE:
  sweeper := NewLockSweeper(workflow, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - npd/lock.go: CleanupExpired, lock semantics
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sipd/npd-tracker/npd"
)

// LockSweeper periodically clears expired advisory locks.
type LockSweeper struct {
	Workflow      *npd.Workflow
	CheckInterval time.Duration
	Log           *logrus.Logger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewLockSweeper creates a sweeper with a five-minute interval, well
// under the default lock TTL.
func NewLockSweeper(workflow *npd.Workflow, log *logrus.Logger) *LockSweeper {
	if log == nil {
		log = logrus.New()
	}
	return &LockSweeper{
		Workflow:      workflow,
		CheckInterval: 5 * time.Minute,
		Log:           log,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (ls *LockSweeper) Start() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.ticker = time.NewTicker(ls.CheckInterval)
	ls.wg.Add(1)
	go ls.run()

	ls.Log.WithField("interval", ls.CheckInterval.String()).Info("lock sweeper started")
}

// Stop stops the sweeper.
func (ls *LockSweeper) Stop() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.ticker != nil {
		ls.ticker.Stop()
		close(ls.stop)
		ls.wg.Wait()
		ls.Log.Info("lock sweeper stopped")
	}
}

func (ls *LockSweeper) run() {
	defer ls.wg.Done()

	// Run immediately on start
	ls.sweep()

	for {
		select {
		case <-ls.ticker.C:
			ls.sweep()
		case <-ls.stop:
			return
		}
	}
}

func (ls *LockSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cleared, err := ls.Workflow.CleanupExpired(ctx, time.Now())
	if err != nil {
		ls.Log.WithError(err).Error("lock sweep failed")
		return
	}
	if cleared > 0 {
		ls.Log.WithField("cleared", cleared).Info("expired locks released")
	}
}
