package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/notify"
)

// ReviewDecision is the outcome of a parent review.
type ReviewDecision string

const (
	DecisionApproved ReviewDecision = "approved"
	DecisionRejected ReviewDecision = "rejected"
)

// CreateAssignmentParams describes a new task assignment.
type CreateAssignmentParams struct {
	TaskID     int64
	AssignedTo int64
	AssignedBy int64
	DueDate    *time.Time
}

// CreateAssignment hands a task instance to a child in the pending state.
func (e *Engine) CreateAssignment(ctx context.Context, p CreateAssignmentParams) (*model.TaskAssignment, error) {
	task, err := e.tasks.GetByID(p.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d: %w", p.TaskID, ErrNotFound)
	}
	member, err := e.members.GetByID(p.AssignedTo)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("member %d: %w", p.AssignedTo, ErrNotFound)
	}

	return e.tasks.CreateAssignment(p.TaskID, p.AssignedTo, p.AssignedBy, p.DueDate)
}

// StartAssignment moves a pending (or overdue-but-unstarted) assignment to
// in_progress.
func (e *Engine) StartAssignment(ctx context.Context, assignmentID int64) (*model.TaskAssignment, error) {
	err := database.Tx(ctx, e.db, func(tx *sql.Tx) error {
		a, err := e.tasks.GetAssignmentTx(tx, assignmentID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("assignment %d: %w", assignmentID, ErrNotFound)
		}
		if a.Status != model.AssignmentPending && a.Status != model.AssignmentOverdue {
			return &InvalidTransitionError{Entity: "assignment", From: string(a.Status), Action: "start"}
		}
		return e.tasks.SetStartedTx(tx, assignmentID, e.now())
	})
	if err != nil {
		return nil, err
	}
	return e.tasks.GetAssignment(assignmentID)
}

// SubmissionParams is the evidence attached when a child submits work.
type SubmissionParams struct {
	PhotoURL string
	Notes    string
}

// SubmitAssignment records completion evidence and moves the assignment to
// pending_review. Legal from in_progress, from pending (skipping start),
// and from overdue; a late assignment can still be completed and reviewed.
func (e *Engine) SubmitAssignment(ctx context.Context, assignmentID int64, sub SubmissionParams) (*model.TaskAssignment, error) {
	err := database.Tx(ctx, e.db, func(tx *sql.Tx) error {
		a, err := e.tasks.GetAssignmentTx(tx, assignmentID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("assignment %d: %w", assignmentID, ErrNotFound)
		}
		switch a.Status {
		case model.AssignmentPending, model.AssignmentInProgress, model.AssignmentOverdue:
		default:
			return &InvalidTransitionError{Entity: "assignment", From: string(a.Status), Action: "submit"}
		}

		task, err := e.tasks.GetByIDTx(tx, a.TaskID)
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("task %d: %w", a.TaskID, ErrNotFound)
		}
		if task.PhotoRequired && sub.PhotoURL == "" {
			return ErrPhotoRequired
		}

		if _, err := e.tasks.AddSubmissionTx(tx, assignmentID, sub.PhotoURL, sub.Notes, e.now()); err != nil {
			return err
		}
		return e.tasks.SetSubmittedTx(tx, assignmentID, e.now())
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.tasks.GetAssignment(assignmentID)
	if err != nil {
		return nil, err
	}

	if member, merr := e.members.GetByID(updated.AssignedTo); merr == nil && member != nil {
		e.notifyParents(member.FamilyID, notify.TypeAssignmentPendingReview, map[string]any{
			"assignment_id": assignmentID,
			"member_id":     updated.AssignedTo,
		})
	}
	return updated, nil
}

// ReviewAssignment resolves a pending_review assignment. Approval awards
// the task's points through the ledger inside the same transaction as the
// status flip, so the award happens exactly once or not at all; rejection
// changes status only.
func (e *Engine) ReviewAssignment(ctx context.Context, assignmentID int64, decision ReviewDecision, reviewerID int64, comments string) (*model.TaskAssignment, *ledger.BalanceChange, error) {
	if decision != DecisionApproved && decision != DecisionRejected {
		return nil, nil, fmt.Errorf("unknown review decision %q", decision)
	}

	var change *ledger.BalanceChange
	var childMemberID int64
	err := database.Tx(ctx, e.db, func(tx *sql.Tx) error {
		a, err := e.tasks.GetAssignmentTx(tx, assignmentID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("assignment %d: %w", assignmentID, ErrNotFound)
		}
		if a.Status != model.AssignmentPendingReview {
			return &InvalidTransitionError{Entity: "assignment", From: string(a.Status), Action: "review"}
		}
		childMemberID = a.AssignedTo

		status := model.AssignmentRejected
		if decision == DecisionApproved {
			status = model.AssignmentApproved
		}
		if err := e.tasks.SetReviewedTx(tx, assignmentID, status, reviewerID, e.now(), comments); err != nil {
			return err
		}

		if decision != DecisionApproved {
			return nil
		}

		task, err := e.tasks.GetByIDTx(tx, a.TaskID)
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("task %d: %w", a.TaskID, ErrNotFound)
		}

		refID := assignmentID
		change, err = e.ledger.ApplyDeltaTx(tx, ledger.ApplyDeltaParams{
			MemberID:    a.AssignedTo,
			Delta:       task.PointsReward,
			Description: fmt.Sprintf("Task approved: %s", task.Title),
			Reference:   model.ReferenceTask,
			ReferenceID: &refID,
			ActorID:     reviewerID,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	updated, err := e.tasks.GetAssignment(assignmentID)
	if err != nil {
		return nil, nil, err
	}

	if member, merr := e.members.GetByID(childMemberID); merr == nil && member != nil {
		eventType := notify.TypeAssignmentRejected
		payload := map[string]any{"assignment_id": assignmentID, "comments": comments}
		if decision == DecisionApproved {
			eventType = notify.TypeAssignmentApproved
			payload["points_awarded"] = change.Delta
			payload["new_balance"] = change.NewBalance
		}
		e.notify(member.UserID, eventType, payload)
	}
	return updated, change, nil
}
