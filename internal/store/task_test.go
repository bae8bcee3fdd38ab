package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/model"
)

func setupTaskTestDB(t *testing.T) (*TaskStore, *FamilyMemberStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTaskStore(db), NewFamilyMemberStore(db)
}

// inTx runs fn in a committed transaction so the Tx-only store methods can
// be exercised directly.
func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		t.Fatalf("tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	ts, ms := setupTaskTestDB(t)
	parent, _ := ms.Create(1, 1, "Bilbo", model.RoleParent)

	task, err := ts.Create(1, "Polish silverware", "All of it", 35, "high", true, "weekly", parent.ID)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Title != "Polish silverware" {
		t.Errorf("title = %q", task.Title)
	}
	if task.PointsReward != 35 {
		t.Errorf("points_reward = %d, want 35", task.PointsReward)
	}
	if !task.PhotoRequired {
		t.Error("expected photo_required")
	}
	if task.Recurrence != "weekly" {
		t.Errorf("recurrence = %q, want weekly", task.Recurrence)
	}

	title := "Polish the silver"
	points := 40
	photo := false
	updated, err := ts.Update(task.ID, model.TaskPatch{Title: &title, PointsReward: &points, PhotoRequired: &photo})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Title != "Polish the silver" || updated.PointsReward != 40 {
		t.Errorf("updated = %q/%d", updated.Title, updated.PointsReward)
	}
	if updated.PhotoRequired {
		t.Error("photo_required should be cleared")
	}
	if updated.Priority != "high" {
		t.Errorf("priority changed to %q", updated.Priority)
	}

	if err := ts.Delete(task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	got, err := ts.GetByID(task.ID)
	if err != nil {
		t.Fatalf("get deleted task: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestTaskNotFound(t *testing.T) {
	ts, _ := setupTaskTestDB(t)

	got, err := ts.GetByID(999)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got != nil {
		t.Error("expected nil for non-existent task")
	}
}

func TestAssignmentLifecycleColumns(t *testing.T) {
	ts, ms := setupTaskTestDB(t)
	parent, _ := ms.Create(1, 1, "Bilbo", model.RoleParent)
	child, _ := ms.Create(2, 1, "Frodo", model.RoleChild)
	task, _ := ts.Create(1, "Tend garden", "", 20, "normal", false, "", parent.ID)

	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	a, err := ts.CreateAssignment(task.ID, child.ID, parent.ID, &due)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if a.Status != model.AssignmentPending {
		t.Errorf("status = %s, want pending", a.Status)
	}
	if a.DueDate == nil || !a.DueDate.Equal(due) {
		t.Errorf("due_date = %v, want %v", a.DueDate, due)
	}
	if a.StartedAt != nil || a.CompletedAt != nil || a.ReviewedBy != nil {
		t.Error("lifecycle timestamps should start unset")
	}

	startAt := time.Now().UTC().Truncate(time.Second)
	inTx(t, ts.db, func(tx *sql.Tx) error {
		return ts.SetStartedTx(tx, a.ID, startAt)
	})
	got, _ := ts.GetAssignment(a.ID)
	if got.Status != model.AssignmentInProgress {
		t.Errorf("status = %s, want in_progress", got.Status)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(startAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, startAt)
	}

	doneAt := startAt.Add(time.Hour)
	inTx(t, ts.db, func(tx *sql.Tx) error {
		return ts.SetSubmittedTx(tx, a.ID, doneAt)
	})
	got, _ = ts.GetAssignment(a.ID)
	if got.Status != model.AssignmentPendingReview {
		t.Errorf("status = %s, want pending_review", got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(doneAt) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, doneAt)
	}

	reviewAt := doneAt.Add(time.Hour)
	inTx(t, ts.db, func(tx *sql.Tx) error {
		return ts.SetReviewedTx(tx, a.ID, model.AssignmentApproved, parent.ID, reviewAt, "well done")
	})
	got, _ = ts.GetAssignment(a.ID)
	if got.Status != model.AssignmentApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
	if got.ReviewedBy == nil || *got.ReviewedBy != parent.ID {
		t.Errorf("reviewed_by = %v, want %d", got.ReviewedBy, parent.ID)
	}
	if got.ReviewComments != "well done" {
		t.Errorf("review_comments = %q", got.ReviewComments)
	}
}

func TestListAssignments(t *testing.T) {
	ts, ms := setupTaskTestDB(t)
	parent, _ := ms.Create(1, 1, "Bilbo", model.RoleParent)
	frodo, _ := ms.Create(2, 1, "Frodo", model.RoleChild)
	sam, _ := ms.Create(3, 1, "Sam", model.RoleChild)
	task, _ := ts.Create(1, "Dishes", "", 5, "normal", false, "", parent.ID)

	ts.CreateAssignment(task.ID, frodo.ID, parent.ID, nil)
	ts.CreateAssignment(task.ID, frodo.ID, parent.ID, nil)
	ts.CreateAssignment(task.ID, sam.ID, parent.ID, nil)

	frodos, err := ts.ListAssignmentsByMember(frodo.ID)
	if err != nil {
		t.Fatalf("list by member: %v", err)
	}
	if len(frodos) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(frodos))
	}

	sams, err := ts.ListAssignmentsByMember(sam.ID)
	if err != nil {
		t.Fatalf("list by member: %v", err)
	}
	if len(sams) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(sams))
	}
}

func TestListPendingReviewByFamily(t *testing.T) {
	ts, ms := setupTaskTestDB(t)
	parent, _ := ms.Create(1, 1, "Bilbo", model.RoleParent)
	frodo, _ := ms.Create(2, 1, "Frodo", model.RoleChild)
	pippin, _ := ms.Create(3, 2, "Pippin", model.RoleChild)
	task, _ := ts.Create(1, "Dust shelves", "", 5, "normal", false, "", parent.ID)

	first, _ := ts.CreateAssignment(task.ID, frodo.ID, parent.ID, nil)
	second, _ := ts.CreateAssignment(task.ID, frodo.ID, parent.ID, nil)
	stillPending, _ := ts.CreateAssignment(task.ID, frodo.ID, parent.ID, nil)
	otherFamily, _ := ts.CreateAssignment(task.ID, pippin.ID, parent.ID, nil)

	now := time.Now().UTC().Truncate(time.Second)
	inTx(t, ts.db, func(tx *sql.Tx) error {
		// Submit out of order so the queue ordering is observable.
		if err := ts.SetSubmittedTx(tx, second.ID, now.Add(-time.Hour)); err != nil {
			return err
		}
		if err := ts.SetSubmittedTx(tx, first.ID, now); err != nil {
			return err
		}
		return ts.SetSubmittedTx(tx, otherFamily.ID, now)
	})

	queue, err := ts.ListPendingReviewByFamily(1)
	if err != nil {
		t.Fatalf("list pending review: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("expected 2 queued assignments, got %d", len(queue))
	}
	// Oldest submission first, other families and unsubmitted work excluded.
	if queue[0].ID != second.ID || queue[1].ID != first.ID {
		t.Errorf("queue order = [%d %d], want [%d %d]", queue[0].ID, queue[1].ID, second.ID, first.ID)
	}
	for _, a := range queue {
		if a.ID == stillPending.ID || a.ID == otherFamily.ID {
			t.Errorf("assignment %d should not be in family 1's queue", a.ID)
		}
	}
}

func TestMarkOverdue(t *testing.T) {
	ts, ms := setupTaskTestDB(t)
	parent, _ := ms.Create(1, 1, "Bilbo", model.RoleParent)
	child, _ := ms.Create(2, 1, "Frodo", model.RoleChild)
	task, _ := ts.Create(1, "Mail letters", "", 5, "normal", false, "", parent.ID)

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	late, _ := ts.CreateAssignment(task.ID, child.ID, parent.ID, &past)
	lateStarted, _ := ts.CreateAssignment(task.ID, child.ID, parent.ID, &past)
	onTime, _ := ts.CreateAssignment(task.ID, child.ID, parent.ID, &future)
	noDue, _ := ts.CreateAssignment(task.ID, child.ID, parent.ID, nil)
	lateReviewed, _ := ts.CreateAssignment(task.ID, child.ID, parent.ID, &past)

	inTx(t, ts.db, func(tx *sql.Tx) error {
		if err := ts.SetStartedTx(tx, lateStarted.ID, now); err != nil {
			return err
		}
		return ts.SetReviewedTx(tx, lateReviewed.ID, model.AssignmentApproved, parent.ID, now, "")
	})

	n, err := ts.MarkOverdue(now)
	if err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	if n != 2 {
		t.Fatalf("marked %d, want 2", n)
	}

	for _, tc := range []struct {
		id   int64
		want model.AssignmentStatus
	}{
		{late.ID, model.AssignmentOverdue},
		{lateStarted.ID, model.AssignmentOverdue},
		{onTime.ID, model.AssignmentPending},
		{noDue.ID, model.AssignmentPending},
		{lateReviewed.ID, model.AssignmentApproved},
	} {
		got, err := ts.GetAssignment(tc.id)
		if err != nil {
			t.Fatalf("get assignment %d: %v", tc.id, err)
		}
		if got.Status != tc.want {
			t.Errorf("assignment %d status = %s, want %s", tc.id, got.Status, tc.want)
		}
	}

	// A second sweep changes nothing.
	n, err = ts.MarkOverdue(now)
	if err != nil {
		t.Fatalf("second mark overdue: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep marked %d, want 0", n)
	}
}

func TestSubmissionLatestFlagHandoff(t *testing.T) {
	ts, ms := setupTaskTestDB(t)
	parent, _ := ms.Create(1, 1, "Bilbo", model.RoleParent)
	child, _ := ms.Create(2, 1, "Frodo", model.RoleChild)
	task, _ := ts.Create(1, "Paint fence", "", 15, "normal", false, "", parent.ID)
	a, _ := ts.CreateAssignment(task.ID, child.ID, parent.ID, nil)

	first := time.Now().UTC().Truncate(time.Second)
	inTx(t, ts.db, func(tx *sql.Tx) error {
		_, err := ts.AddSubmissionTx(tx, a.ID, "", "first coat", first)
		return err
	})
	inTx(t, ts.db, func(tx *sql.Tx) error {
		_, err := ts.AddSubmissionTx(tx, a.ID, "/photos/fence.jpg", "second coat", first.Add(time.Hour))
		return err
	})

	subs, err := ts.ListSubmissions(a.ID)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}

	// Newest first, and only the newest carries the latest flag.
	if subs[0].Notes != "second coat" || !subs[0].Latest {
		t.Errorf("subs[0] = %q latest=%v, want second coat latest", subs[0].Notes, subs[0].Latest)
	}
	if subs[1].Notes != "first coat" || subs[1].Latest {
		t.Errorf("subs[1] = %q latest=%v, want first coat not latest", subs[1].Notes, subs[1].Latest)
	}
	if subs[0].PhotoURL != "/photos/fence.jpg" {
		t.Errorf("photo_url = %q", subs[0].PhotoURL)
	}
}
