package model

import "time"

// Task is a reusable chore definition owned by a family. PointsReward is
// what an approved assignment pays out; edits never retroactively change
// points already awarded.
type Task struct {
	ID            int64     `json:"id"`
	FamilyID      int64     `json:"family_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	PointsReward  int       `json:"points_reward"`
	Priority      string    `json:"priority"`
	PhotoRequired bool      `json:"photo_required"`
	Recurrence    string    `json:"recurrence"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TaskPatch carries optional fields for a partial task update.
type TaskPatch struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	PointsReward  *int    `json:"points_reward,omitempty"`
	Priority      *string `json:"priority,omitempty"`
	PhotoRequired *bool   `json:"photo_required,omitempty"`
	Recurrence    *string `json:"recurrence,omitempty"`
}

// AssignmentStatus is the lifecycle state of one task assignment.
type AssignmentStatus string

const (
	AssignmentPending       AssignmentStatus = "pending"
	AssignmentInProgress    AssignmentStatus = "in_progress"
	AssignmentPendingReview AssignmentStatus = "pending_review"
	AssignmentApproved      AssignmentStatus = "approved"
	AssignmentRejected      AssignmentStatus = "rejected"
	AssignmentOverdue       AssignmentStatus = "overdue"
)

// Terminal reports whether no further transition is defined from s.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentApproved || s == AssignmentRejected
}

// TaskAssignment is one instance of a task given to one child. Only the
// workflow engine writes its status; approval is the single point where a
// ledger entry referencing the assignment is created.
type TaskAssignment struct {
	ID             int64            `json:"id"`
	TaskID         int64            `json:"task_id"`
	AssignedTo     int64            `json:"assigned_to"`
	AssignedBy     int64            `json:"assigned_by"`
	DueDate        *time.Time       `json:"due_date,omitempty"`
	Status         AssignmentStatus `json:"status"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	ReviewedBy     *int64           `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time       `json:"reviewed_at,omitempty"`
	ReviewComments string           `json:"review_comments"`
	CreatedAt      time.Time        `json:"created_at"`
}

// TaskSubmission is completion evidence attached to an assignment.
// Submissions are append-only; exactly one per assignment is flagged latest.
type TaskSubmission struct {
	ID           int64     `json:"id"`
	AssignmentID int64     `json:"assignment_id"`
	PhotoURL     string    `json:"photo_url"`
	Notes        string    `json:"notes"`
	Latest       bool      `json:"latest"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
