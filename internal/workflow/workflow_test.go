package workflow

import (
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/notify"
	"github.com/dukerupert/tally/internal/store"
)

// captureNotifier records emitted events for assertions.
type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Notify(e notify.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *captureNotifier) byType(eventType string) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type engineFixture struct {
	db       *sql.DB
	engine   *Engine
	members  *store.FamilyMemberStore
	tasks    *store.TaskStore
	rewards  *store.RewardStore
	ledger   *ledger.Service
	notifier *captureNotifier

	parent *model.FamilyMember
	child  *model.FamilyMember
}

func setupEngine(t *testing.T, dbPath string) *engineFixture {
	t.Helper()
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	members := store.NewFamilyMemberStore(db)
	tasks := store.NewTaskStore(db)
	rewards := store.NewRewardStore(db)
	ledgerSvc := ledger.NewService(db)
	notifier := &captureNotifier{}

	engine := NewEngine(db, members, tasks, rewards, ledgerSvc, notifier, slog.Default())

	parent, err := members.Create(10, 1, "Hamfast", model.RoleParent)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := members.Create(11, 1, "Samwise", model.RoleChild)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	return &engineFixture{
		db:       db,
		engine:   engine,
		members:  members,
		tasks:    tasks,
		rewards:  rewards,
		ledger:   ledgerSvc,
		notifier: notifier,
		parent:   parent,
		child:    child,
	}
}

func (f *engineFixture) mustTask(t *testing.T, title string, points int, photoRequired bool) *model.Task {
	t.Helper()
	task, err := f.tasks.Create(1, title, "", points, "normal", photoRequired, "", f.parent.ID)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (f *engineFixture) mustAssignment(t *testing.T, task *model.Task, due *time.Time) *model.TaskAssignment {
	t.Helper()
	a, err := f.tasks.CreateAssignment(task.ID, f.child.ID, f.parent.ID, due)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return a
}

func (f *engineFixture) mustReward(t *testing.T, name string, price int, quantity *int) *model.Reward {
	t.Helper()
	reward, err := f.rewards.Create(1, name, "", price, quantity)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	return reward
}

func (f *engineFixture) seedBalance(t *testing.T, memberID int64, points int) {
	t.Helper()
	if _, err := f.ledger.ManualAdjust(t.Context(), memberID, points, "seed", f.parent.ID); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func (f *engineFixture) balance(t *testing.T, memberID int64) int {
	t.Helper()
	balance, err := f.ledger.Balance(memberID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return balance
}

func (f *engineFixture) entriesFor(t *testing.T, memberID int64) []model.LedgerEntry {
	t.Helper()
	entries, err := f.ledger.History(memberID, ledger.HistoryFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	return entries
}
