package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/tally/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx so assignment reads and
// writes can run inside the engine's transactions.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// --- Task methods ---

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var photoRequired int

	err := scanner.Scan(
		&t.ID, &t.FamilyID, &t.Title, &t.Description, &t.PointsReward,
		&t.Priority, &photoRequired, &t.Recurrence, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.PhotoRequired = photoRequired != 0
	return &t, nil
}

const taskCols = `id, family_id, title, description, points_reward, priority, photo_required, recurrence, created_by, created_at, updated_at`

func (s *TaskStore) Create(familyID int64, title, description string, pointsReward int, priority string, photoRequired bool, recurrence string, createdBy int64) (*model.Task, error) {
	var pr int
	if photoRequired {
		pr = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO tasks (family_id, title, description, points_reward, priority, photo_required, recurrence, created_by) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		familyID, title, description, pointsReward, priority, pr, recurrence, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	return getTask(s.db, id)
}

// GetByIDTx reads a task inside a caller-owned transaction.
func (s *TaskStore) GetByIDTx(tx *sql.Tx, id int64) (*model.Task, error) {
	return getTask(tx, id)
}

func getTask(q querier, id int64) (*model.Task, error) {
	row := q.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListByFamily(familyID int64) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks WHERE family_id = ? ORDER BY priority ASC, title ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update applies a patch. Edits never touch points already awarded; an
// approved assignment keeps the reward captured at approval time in the
// ledger.
func (s *TaskStore) Update(id int64, patch model.TaskPatch) (*model.Task, error) {
	var sets []string
	var args []any

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.PointsReward != nil {
		sets = append(sets, "points_reward = ?")
		args = append(args, *patch.PointsReward)
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *patch.Priority)
	}
	if patch.PhotoRequired != nil {
		pr := 0
		if *patch.PhotoRequired {
			pr = 1
		}
		sets = append(sets, "photo_required = ?")
		args = append(args, pr)
	}
	if patch.Recurrence != nil {
		sets = append(sets, "recurrence = ?")
		args = append(args, *patch.Recurrence)
	}
	if len(sets) == 0 {
		return s.GetByID(id)
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	_, err := s.db.Exec(`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// --- Assignment methods ---

func scanAssignment(scanner interface{ Scan(...any) error }) (*model.TaskAssignment, error) {
	var a model.TaskAssignment
	var dueDate, startedAt, completedAt, reviewedAt sql.NullTime
	var reviewedBy sql.NullInt64

	err := scanner.Scan(
		&a.ID, &a.TaskID, &a.AssignedTo, &a.AssignedBy, &dueDate, &a.Status,
		&startedAt, &completedAt, &reviewedBy, &reviewedAt,
		&a.ReviewComments, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		a.DueDate = &dueDate.Time
	}
	if startedAt.Valid {
		a.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if reviewedBy.Valid {
		a.ReviewedBy = &reviewedBy.Int64
	}
	if reviewedAt.Valid {
		a.ReviewedAt = &reviewedAt.Time
	}
	return &a, nil
}

const assignmentCols = `id, task_id, assigned_to, assigned_by, due_date, status, started_at, completed_at, reviewed_by, reviewed_at, review_comments, created_at`

func (s *TaskStore) CreateAssignment(taskID, assignedTo, assignedBy int64, dueDate *time.Time) (*model.TaskAssignment, error) {
	var due sql.NullTime
	if dueDate != nil {
		due = sql.NullTime{Time: dueDate.UTC(), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO task_assignments (task_id, assigned_to, assigned_by, due_date) VALUES (?, ?, ?, ?)`,
		taskID, assignedTo, assignedBy, due,
	)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetAssignment(id)
}

func (s *TaskStore) GetAssignment(id int64) (*model.TaskAssignment, error) {
	return getAssignment(s.db, id)
}

// GetAssignmentTx reads an assignment inside a caller-owned transaction.
func (s *TaskStore) GetAssignmentTx(tx *sql.Tx, id int64) (*model.TaskAssignment, error) {
	return getAssignment(tx, id)
}

func getAssignment(q querier, id int64) (*model.TaskAssignment, error) {
	row := q.QueryRow(`SELECT `+assignmentCols+` FROM task_assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *TaskStore) ListAssignmentsByMember(memberID int64) ([]model.TaskAssignment, error) {
	return s.listAssignments(`assigned_to = ?`, memberID)
}

// ListPendingReviewByFamily is the review queue for one family's submitted
// work, oldest submission first.
func (s *TaskStore) ListPendingReviewByFamily(familyID int64) ([]model.TaskAssignment, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.task_id, a.assigned_to, a.assigned_by, a.due_date, a.status,
		        a.started_at, a.completed_at, a.reviewed_by, a.reviewed_at,
		        a.review_comments, a.created_at
		 FROM task_assignments a
		 JOIN family_members m ON m.id = a.assigned_to
		 WHERE m.family_id = ? AND a.status = ?
		 ORDER BY a.completed_at ASC, a.id ASC`,
		familyID, string(model.AssignmentPendingReview),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending review assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.TaskAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

func (s *TaskStore) listAssignments(where string, arg any) ([]model.TaskAssignment, error) {
	rows, err := s.db.Query(
		`SELECT `+assignmentCols+` FROM task_assignments WHERE `+where+` ORDER BY created_at DESC, id DESC`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.TaskAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

// SetStartedTx moves an assignment to in_progress. Engine use only.
func (s *TaskStore) SetStartedTx(tx *sql.Tx, id int64, at time.Time) error {
	_, err := tx.Exec(
		`UPDATE task_assignments SET status = ?, started_at = ? WHERE id = ?`,
		string(model.AssignmentInProgress), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("start assignment: %w", err)
	}
	return nil
}

// SetSubmittedTx moves an assignment to pending_review. Engine use only.
func (s *TaskStore) SetSubmittedTx(tx *sql.Tx, id int64, at time.Time) error {
	_, err := tx.Exec(
		`UPDATE task_assignments SET status = ?, completed_at = ? WHERE id = ?`,
		string(model.AssignmentPendingReview), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("submit assignment: %w", err)
	}
	return nil
}

// SetReviewedTx records a review decision. Engine use only.
func (s *TaskStore) SetReviewedTx(tx *sql.Tx, id int64, status model.AssignmentStatus, reviewerID int64, at time.Time, comments string) error {
	_, err := tx.Exec(
		`UPDATE task_assignments SET status = ?, reviewed_by = ?, reviewed_at = ?, review_comments = ? WHERE id = ?`,
		string(status), reviewerID, at.UTC(), comments, id,
	)
	if err != nil {
		return fmt.Errorf("review assignment: %w", err)
	}
	return nil
}

// MarkOverdue flips past-due pending and in_progress assignments to
// overdue and returns how many rows changed.
func (s *TaskStore) MarkOverdue(asOf time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE task_assignments SET status = ? WHERE status IN (?, ?) AND due_date IS NOT NULL AND due_date < ?`,
		string(model.AssignmentOverdue), string(model.AssignmentPending), string(model.AssignmentInProgress), asOf.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// --- Submission methods ---

func scanSubmission(scanner interface{ Scan(...any) error }) (*model.TaskSubmission, error) {
	var sub model.TaskSubmission
	var latest int

	err := scanner.Scan(&sub.ID, &sub.AssignmentID, &sub.PhotoURL, &sub.Notes, &latest, &sub.SubmittedAt)
	if err != nil {
		return nil, err
	}

	sub.Latest = latest != 0
	return &sub, nil
}

const submissionCols = `id, assignment_id, photo_url, notes, latest, submitted_at`

// AddSubmissionTx appends evidence for an assignment and takes over the
// latest flag from any prior submission. Engine use only.
func (s *TaskStore) AddSubmissionTx(tx *sql.Tx, assignmentID int64, photoURL, notes string, at time.Time) (*model.TaskSubmission, error) {
	if _, err := tx.Exec(
		`UPDATE task_submissions SET latest = 0 WHERE assignment_id = ? AND latest = 1`,
		assignmentID,
	); err != nil {
		return nil, fmt.Errorf("clear latest submission: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO task_submissions (assignment_id, photo_url, notes, latest, submitted_at) VALUES (?, ?, ?, 1, ?)`,
		assignmentID, photoURL, notes, at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+submissionCols+` FROM task_submissions WHERE id = ?`, id)
	return scanSubmission(row)
}

func (s *TaskStore) ListSubmissions(assignmentID int64) ([]model.TaskSubmission, error) {
	rows, err := s.db.Query(
		`SELECT `+submissionCols+` FROM task_submissions WHERE assignment_id = ? ORDER BY submitted_at DESC, id DESC`,
		assignmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []model.TaskSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
