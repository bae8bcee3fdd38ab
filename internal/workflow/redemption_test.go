package workflow

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/notify"
)

func TestRequestRedemption(t *testing.T) {
	f := setupEngine(t, ":memory:")
	reward := f.mustReward(t, "Movie night", 30, nil)
	f.seedBalance(t, f.child.ID, 50)

	r, err := f.engine.RequestRedemption(t.Context(), reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if r.Status != model.RedemptionPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
	if r.PointsSpent != 30 {
		t.Errorf("points_spent = %d, want 30", r.PointsSpent)
	}

	// Requesting reserves nothing.
	if got := f.balance(t, f.child.ID); got != 50 {
		t.Errorf("balance = %d, want 50", got)
	}
	if got := f.notifier.byType(notify.TypeRedemptionRequested); len(got) != 1 {
		t.Errorf("expected 1 requested notification, got %d", len(got))
	}
}

func TestRequestRedemptionInsufficientBalance(t *testing.T) {
	f := setupEngine(t, ":memory:")
	reward := f.mustReward(t, "Ice cream", 100, nil)
	f.seedBalance(t, f.child.ID, 40)

	_, err := f.engine.RequestRedemption(t.Context(), reward.ID, f.child.ID)
	var insufficient *ledger.InsufficientPointsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientPointsError, got %v", err)
	}
	if insufficient.Balance != 40 || insufficient.Required != 100 {
		t.Errorf("error = %+v", insufficient)
	}

	// No record is created for a failed request.
	reds, err := f.rewards.ListRedemptionsByChild(f.child.ID)
	if err != nil {
		t.Fatalf("list redemptions: %v", err)
	}
	if len(reds) != 0 {
		t.Errorf("expected no redemptions, got %d", len(reds))
	}
}

func TestRequestRedemptionUnavailable(t *testing.T) {
	f := setupEngine(t, ":memory:")
	f.seedBalance(t, f.child.ID, 500)

	one := 1
	reward := f.mustReward(t, "Limited edition", 10, &one)

	ctx := t.Context()

	// Consume the only unit.
	first, err := f.engine.RequestRedemption(ctx, reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, _, err := f.engine.ApproveRedemption(ctx, first.ID, f.parent.ID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err = f.engine.RequestRedemption(ctx, reward.ID, f.child.ID)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	reds, err := f.rewards.ListRedemptionsByChild(f.child.ID)
	if err != nil {
		t.Fatalf("list redemptions: %v", err)
	}
	if len(reds) != 1 {
		t.Errorf("expected 1 redemption, got %d", len(reds))
	}

	// Unknown reward.
	if _, err := f.engine.RequestRedemption(ctx, 9999, f.child.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApproveRedemption(t *testing.T) {
	f := setupEngine(t, ":memory:")
	two := 2
	reward := f.mustReward(t, "Extra screen time", 25, &two)
	f.seedBalance(t, f.child.ID, 60)

	ctx := t.Context()
	r, err := f.engine.RequestRedemption(ctx, reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	approved, change, err := f.engine.ApproveRedemption(ctx, r.ID, f.parent.ID, "enjoy")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.RedemptionApproved {
		t.Errorf("status = %s, want approved", approved.Status)
	}
	if approved.ReviewedBy == nil || *approved.ReviewedBy != f.parent.ID {
		t.Errorf("reviewed_by = %v, want %d", approved.ReviewedBy, f.parent.ID)
	}
	if change.Delta != -25 || change.NewBalance != 35 {
		t.Errorf("change = %+v, want delta -25 balance 35", change)
	}

	if got := f.balance(t, f.child.ID); got != 35 {
		t.Errorf("balance = %d, want 35", got)
	}
	entries := f.entriesFor(t, f.child.ID)
	var spent int
	for _, e := range entries {
		if e.Type == model.TransactionSpent {
			spent++
			if e.ReferenceType != model.ReferenceReward {
				t.Errorf("reference type = %s, want reward", e.ReferenceType)
			}
		}
	}
	if spent != 1 {
		t.Errorf("expected 1 spent entry, got %d", spent)
	}

	got, err := f.rewards.GetByID(reward.ID)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if got.QuantityRedeemed != 1 {
		t.Errorf("quantity_redeemed = %d, want 1", got.QuantityRedeemed)
	}
	if len(f.notifier.byType(notify.TypeRedemptionApproved)) != 1 {
		t.Error("expected approved notification")
	}
}

func TestApproveRedemptionAfterBalanceDrop(t *testing.T) {
	f := setupEngine(t, ":memory:")
	reward := f.mustReward(t, "New book", 50, nil)
	f.seedBalance(t, f.child.ID, 50)

	ctx := t.Context()
	r, err := f.engine.RequestRedemption(ctx, reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Drain the balance between request and approval.
	if _, err := f.ledger.ManualAdjust(ctx, f.child.ID, -40, "correction", f.parent.ID); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	_, _, err = f.engine.ApproveRedemption(ctx, r.ID, f.parent.ID, "")
	var insufficient *ledger.InsufficientPointsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientPointsError, got %v", err)
	}

	// The redemption stays pending and the stock is untouched.
	got, err := f.rewards.GetRedemption(r.ID)
	if err != nil {
		t.Fatalf("get redemption: %v", err)
	}
	if got.Status != model.RedemptionPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	rw, err := f.rewards.GetByID(reward.ID)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if rw.QuantityRedeemed != 0 {
		t.Errorf("quantity_redeemed = %d, want 0", rw.QuantityRedeemed)
	}
	if balance := f.balance(t, f.child.ID); balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}
}

func TestDenyRedemption(t *testing.T) {
	f := setupEngine(t, ":memory:")
	reward := f.mustReward(t, "Sleepover", 80, nil)
	f.seedBalance(t, f.child.ID, 100)

	ctx := t.Context()
	r, err := f.engine.RequestRedemption(ctx, reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	denied, err := f.engine.DenyRedemption(ctx, r.ID, f.parent.ID, "not this week")
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if denied.Status != model.RedemptionDenied {
		t.Errorf("status = %s, want denied", denied.Status)
	}
	if denied.ReviewNotes != "not this week" {
		t.Errorf("notes = %q", denied.ReviewNotes)
	}

	if got := f.balance(t, f.child.ID); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}

	// Denied is terminal.
	_, _, err = f.engine.ApproveRedemption(ctx, r.ID, f.parent.ID, "")
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestCancelRedemption(t *testing.T) {
	f := setupEngine(t, ":memory:")
	reward := f.mustReward(t, "Pick dinner", 20, nil)
	f.seedBalance(t, f.child.ID, 20)

	ctx := t.Context()
	r, err := f.engine.RequestRedemption(ctx, reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	cancelled, err := f.engine.CancelRedemption(ctx, r.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.RedemptionCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.ReviewedBy != nil {
		t.Error("self-service cancel should not record a reviewer")
	}

	var invalid *InvalidTransitionError
	if _, err := f.engine.CancelRedemption(ctx, r.ID); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError on double cancel, got %v", err)
	}
}

func TestRedemptionEarnSpendRoundTrip(t *testing.T) {
	f := setupEngine(t, ":memory:")
	ctx := t.Context()

	f.seedBalance(t, f.child.ID, 50)

	task := f.mustTask(t, "Water plants", 20, false)
	a := f.mustAssignment(t, task, nil)
	if _, err := f.engine.StartAssignment(ctx, a.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.engine.SubmitAssignment(ctx, a.ID, SubmissionParams{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := f.engine.ReviewAssignment(ctx, a.ID, DecisionApproved, f.parent.ID, ""); err != nil {
		t.Fatalf("approve task: %v", err)
	}
	if got := f.balance(t, f.child.ID); got != 70 {
		t.Fatalf("balance after task = %d, want 70", got)
	}

	reward := f.mustReward(t, "Trip to the pool", 70, nil)
	r, err := f.engine.RequestRedemption(ctx, reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, _, err := f.engine.ApproveRedemption(ctx, r.ID, f.parent.ID, ""); err != nil {
		t.Fatalf("approve redemption: %v", err)
	}
	if got := f.balance(t, f.child.ID); got != 0 {
		t.Fatalf("balance after redemption = %d, want 0", got)
	}

	// Broke again: the next request pre-check fails.
	cheap := f.mustReward(t, "Sticker", 1, nil)
	_, err = f.engine.RequestRedemption(ctx, cheap.ID, f.child.ID)
	var insufficient *ledger.InsufficientPointsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientPointsError, got %v", err)
	}
}

func TestConcurrentApprovalsExactlyOneSucceeds(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "workflow_test.db")
	f := setupEngine(t, dbPath)
	ctx := t.Context()

	reward := f.mustReward(t, "Board game", 60, nil)
	f.seedBalance(t, f.child.ID, 60)

	r1, err := f.engine.RequestRedemption(ctx, reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("request 1: %v", err)
	}
	r2, err := f.engine.RequestRedemption(ctx, reward.ID, f.child.ID)
	if err != nil {
		t.Fatalf("request 2: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{r1.ID, r2.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = f.engine.ApproveRedemption(ctx, id, f.parent.ID, "")
		}()
	}
	wg.Wait()

	var approved, insufficient int
	for _, err := range errs {
		var ipe *ledger.InsufficientPointsError
		switch {
		case err == nil:
			approved++
		case errors.As(err, &ipe):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if approved != 1 || insufficient != 1 {
		t.Fatalf("approved = %d insufficient = %d, want 1 and 1", approved, insufficient)
	}
	if got := f.balance(t, f.child.ID); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}
