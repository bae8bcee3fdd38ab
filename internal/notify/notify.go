// Package notify is the boundary to notification dispatch. The engine
// emits events only after its transaction commits; delivery is best-effort
// and a failed send never affects the operation that produced it.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the workflow engine.
const (
	TypeAssignmentPendingReview = "assignment.pending_review"
	TypeAssignmentApproved      = "assignment.approved"
	TypeAssignmentRejected      = "assignment.rejected"
	TypeRedemptionRequested     = "redemption.requested"
	TypeRedemptionApproved      = "redemption.approved"
	TypeRedemptionDenied        = "redemption.denied"
	TypeRedemptionCancelled     = "redemption.cancelled"
)

// Event is one notification addressed to a user.
type Event struct {
	ID      string         `json:"id"`
	UserID  int64          `json:"user_id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// NewEvent builds an Event with a fresh id and timestamp.
func NewEvent(userID int64, eventType string, payload map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    eventType,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}

// Notifier delivers events. Implementations must not block the caller and
// must swallow delivery failures.
type Notifier interface {
	Notify(event Event)
}
