package workflow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/notify"
)

// RequestRedemption creates a pending redemption, capturing the reward's
// current price as points_spent. The availability and balance checks here
// are advisory, for fast user feedback; they reserve nothing, and Approve
// re-runs both authoritatively inside its transaction.
func (e *Engine) RequestRedemption(ctx context.Context, rewardID, childID int64) (*model.RewardRedemption, error) {
	reward, err := e.rewards.GetByID(rewardID)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
	}
	if !reward.Available() {
		return nil, fmt.Errorf("reward %d: %w", rewardID, ErrUnavailable)
	}

	balance, err := e.ledger.Balance(childID)
	if err != nil {
		if err == ledger.ErrMemberNotFound {
			return nil, fmt.Errorf("member %d: %w", childID, ErrNotFound)
		}
		return nil, err
	}
	if balance < reward.PointsRequired {
		return nil, &ledger.InsufficientPointsError{MemberID: childID, Balance: balance, Required: reward.PointsRequired}
	}

	redemption, err := e.rewards.CreateRedemption(rewardID, childID, reward.FamilyID, reward.PointsRequired, e.now())
	if err != nil {
		return nil, err
	}

	e.notifyParents(reward.FamilyID, notify.TypeRedemptionRequested, map[string]any{
		"redemption_id": redemption.ID,
		"reward_id":     rewardID,
		"child_id":      childID,
		"points_spent":  redemption.PointsSpent,
	})
	return redemption, nil
}

// ApproveRedemption spends the frozen points and consumes one unit of
// reward stock, all in the transaction that flips the status. If the
// balance dropped since the request, the whole approval rolls back and the
// redemption stays pending; the caller must surface that distinctly from
// a denial.
func (e *Engine) ApproveRedemption(ctx context.Context, redemptionID, reviewerID int64, notes string) (*model.RewardRedemption, *ledger.BalanceChange, error) {
	var change *ledger.BalanceChange
	var childMemberID int64
	err := database.Tx(ctx, e.db, func(tx *sql.Tx) error {
		r, err := e.rewards.GetRedemptionTx(tx, redemptionID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("redemption %d: %w", redemptionID, ErrNotFound)
		}
		if r.Status != model.RedemptionPending {
			return &InvalidTransitionError{Entity: "redemption", From: string(r.Status), Action: "approve"}
		}
		childMemberID = r.ChildID

		ok, err := e.rewards.IncrementRedeemedTx(tx, r.RewardID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("reward %d: %w", r.RewardID, ErrUnavailable)
		}

		refID := redemptionID
		change, err = e.ledger.ApplyDeltaTx(tx, ledger.ApplyDeltaParams{
			MemberID:    r.ChildID,
			Delta:       -r.PointsSpent,
			Description: fmt.Sprintf("Reward redeemed: #%d", r.RewardID),
			Reference:   model.ReferenceReward,
			ReferenceID: &refID,
			ActorID:     reviewerID,
		})
		if err != nil {
			return err
		}

		return e.rewards.SetRedemptionStatusTx(tx, redemptionID, model.RedemptionApproved, &reviewerID, e.now(), notes)
	})
	if err != nil {
		return nil, nil, err
	}

	updated, err := e.rewards.GetRedemption(redemptionID)
	if err != nil {
		return nil, nil, err
	}

	if member, merr := e.members.GetByID(childMemberID); merr == nil && member != nil {
		e.notify(member.UserID, notify.TypeRedemptionApproved, map[string]any{
			"redemption_id": redemptionID,
			"points_spent":  updated.PointsSpent,
			"new_balance":   change.NewBalance,
		})
	}
	return updated, change, nil
}

// DenyRedemption resolves a pending redemption with no ledger effect.
func (e *Engine) DenyRedemption(ctx context.Context, redemptionID, reviewerID int64, notes string) (*model.RewardRedemption, error) {
	return e.resolveRedemption(ctx, redemptionID, model.RedemptionDenied, &reviewerID, notes, "deny", notify.TypeRedemptionDenied)
}

// CancelRedemption withdraws a pending redemption, typically self-service
// by the requester. No ledger effect.
func (e *Engine) CancelRedemption(ctx context.Context, redemptionID int64) (*model.RewardRedemption, error) {
	return e.resolveRedemption(ctx, redemptionID, model.RedemptionCancelled, nil, "", "cancel", notify.TypeRedemptionCancelled)
}

func (e *Engine) resolveRedemption(ctx context.Context, redemptionID int64, status model.RedemptionStatus, reviewedBy *int64, notes, action, eventType string) (*model.RewardRedemption, error) {
	var childMemberID int64
	err := database.Tx(ctx, e.db, func(tx *sql.Tx) error {
		r, err := e.rewards.GetRedemptionTx(tx, redemptionID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("redemption %d: %w", redemptionID, ErrNotFound)
		}
		if r.Status != model.RedemptionPending {
			return &InvalidTransitionError{Entity: "redemption", From: string(r.Status), Action: action}
		}
		childMemberID = r.ChildID
		return e.rewards.SetRedemptionStatusTx(tx, redemptionID, status, reviewedBy, e.now(), notes)
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.rewards.GetRedemption(redemptionID)
	if err != nil {
		return nil, err
	}

	if member, merr := e.members.GetByID(childMemberID); merr == nil && member != nil {
		e.notify(member.UserID, eventType, map[string]any{
			"redemption_id": redemptionID,
			"notes":         notes,
		})
	}
	return updated, nil
}
