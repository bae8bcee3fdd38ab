// Package sweep runs periodic maintenance: flipping past-due assignments
// to overdue and, when retention is configured, purging old ledger entries.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/store"
)

// Sweeper periodically marks overdue assignments and applies ledger
// retention.
type Sweeper struct {
	mu        sync.RWMutex
	tasks     *store.TaskStore
	ledger    *ledger.Service
	retention time.Duration // 0 disables the retention purge
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a sweeper. retention 0 disables the ledger purge.
func New(tasks *store.TaskStore, ledgerSvc *ledger.Service, interval, retention time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		tasks:     tasks,
		ledger:    ledgerSvc,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the sweeper clock. Tests only.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	now := s.now()

	n, err := s.tasks.MarkOverdue(now)
	if err != nil {
		s.logger.Error("mark overdue assignments", "error", err)
	} else if n > 0 {
		s.logger.Info("marked assignments overdue", "count", n)
	}

	if s.retention <= 0 {
		return
	}

	purged, err := s.ledger.Purge(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Error("purge ledger entries", "error", err)
	} else if purged > 0 {
		s.logger.Info("purged ledger entries", "count", purged)
	}
}
