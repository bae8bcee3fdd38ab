// Package workflow drives the task-assignment and reward-redemption
// lifecycles. Terminal approvals are the only callers of the ledger's
// balance update protocol, and each approval shares one transaction with
// its status transition.
package workflow

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/notify"
	"github.com/dukerupert/tally/internal/store"
)

type Engine struct {
	db       *sql.DB
	members  *store.FamilyMemberStore
	tasks    *store.TaskStore
	rewards  *store.RewardStore
	ledger   *ledger.Service
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(db *sql.DB, members *store.FamilyMemberStore, tasks *store.TaskStore, rewards *store.RewardStore, ledgerSvc *ledger.Service, notifier notify.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		db:       db,
		members:  members,
		tasks:    tasks,
		rewards:  rewards,
		ledger:   ledgerSvc,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the engine clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// notify emits an event to one user. Called only after the surrounding
// transaction has committed; never fails the operation.
func (e *Engine) notify(userID int64, eventType string, payload map[string]any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(notify.NewEvent(userID, eventType, payload))
}

// notifyParents emits an event to every parent of a family.
func (e *Engine) notifyParents(familyID int64, eventType string, payload map[string]any) {
	parents, err := e.members.ListParents(familyID)
	if err != nil {
		e.logger.Warn("list parents for notification", "family_id", familyID, "error", err)
		return
	}
	for _, p := range parents {
		e.notify(p.UserID, eventType, payload)
	}
}
