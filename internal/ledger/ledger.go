// Package ledger owns point balances. Every balance change goes through
// ApplyDelta, which writes the new balance and an append-only points_log
// entry in one transaction; nothing else in the system mutates a balance.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/model"
)

// ErrMemberNotFound is returned when a member id does not resolve.
var ErrMemberNotFound = errors.New("family member not found")

// InsufficientPointsError is returned when a delta would drive a balance
// negative. It carries enough context for a user-facing message.
type InsufficientPointsError struct {
	MemberID int64
	Balance  int
	Required int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for member %d: have %d, need %d", e.MemberID, e.Balance, e.Required)
}

// Service is the ledger store plus the balance update protocol.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// SetClock overrides the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ApplyDeltaParams describes one balance mutation.
type ApplyDeltaParams struct {
	MemberID    int64
	Delta       int
	Description string
	Reference   model.ReferenceType
	ReferenceID *int64
	ActorID     int64
}

// BalanceChange is the result of a successful balance mutation.
type BalanceChange struct {
	PreviousBalance int                `json:"previous_balance"`
	NewBalance      int                `json:"new_balance"`
	Delta           int                `json:"delta"`
	Entry           *model.LedgerEntry `json:"entry"`
}

// ApplyDelta runs the balance update protocol in its own transaction:
// read the balance, apply the delta if it stays non-negative, append the
// points_log entry. Either both writes persist or neither does.
func (s *Service) ApplyDelta(ctx context.Context, p ApplyDeltaParams) (*BalanceChange, error) {
	var change *BalanceChange
	err := database.Tx(ctx, s.db, func(tx *sql.Tx) error {
		c, err := s.ApplyDeltaTx(tx, p)
		if err != nil {
			return err
		}
		change = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// ApplyDeltaTx is ApplyDelta inside a caller-owned transaction. The state
// machines use it so their status transition and the balance change commit
// or roll back as one unit.
func (s *Service) ApplyDeltaTx(tx *sql.Tx, p ApplyDeltaParams) (*BalanceChange, error) {
	txType := model.TransactionAdjusted
	switch {
	case p.Delta > 0:
		txType = model.TransactionEarned
	case p.Delta < 0:
		txType = model.TransactionSpent
	}
	return s.apply(tx, p, txType)
}

// ManualAdjust records a parent correction. The entry type is adjusted
// regardless of the delta's sign; zero is allowed.
func (s *Service) ManualAdjust(ctx context.Context, memberID int64, delta int, description string, actorID int64) (*BalanceChange, error) {
	var change *BalanceChange
	err := database.Tx(ctx, s.db, func(tx *sql.Tx) error {
		c, err := s.apply(tx, ApplyDeltaParams{
			MemberID:    memberID,
			Delta:       delta,
			Description: description,
			Reference:   model.ReferenceManual,
			ActorID:     actorID,
		}, model.TransactionAdjusted)
		if err != nil {
			return err
		}
		change = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (s *Service) apply(tx *sql.Tx, p ApplyDeltaParams, txType model.TransactionType) (*BalanceChange, error) {
	var prev int
	err := tx.QueryRow(`SELECT points_balance FROM family_members WHERE id = ?`, p.MemberID).Scan(&prev)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}

	now := s.now().UTC()

	// The WHERE guard enforces the non-negative invariant at write time,
	// independent of the balance read above.
	result, err := tx.Exec(
		`UPDATE family_members SET points_balance = points_balance + ?, updated_at = ? WHERE id = ? AND points_balance + ? >= 0`,
		p.Delta, now, p.MemberID, p.Delta,
	)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, &InsufficientPointsError{MemberID: p.MemberID, Balance: prev, Required: -p.Delta}
	}

	var refID sql.NullInt64
	if p.ReferenceID != nil {
		refID = sql.NullInt64{Int64: *p.ReferenceID, Valid: true}
	}

	entryResult, err := tx.Exec(
		`INSERT INTO points_log (family_member_id, transaction_type, amount, reference_type, reference_id, description, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MemberID, string(txType), p.Delta, string(p.Reference), refID, p.Description, p.ActorID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	entryID, err := entryResult.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return &BalanceChange{
		PreviousBalance: prev,
		NewBalance:      prev + p.Delta,
		Delta:           p.Delta,
		Entry: &model.LedgerEntry{
			ID:            entryID,
			MemberID:      p.MemberID,
			Type:          txType,
			Amount:        p.Delta,
			ReferenceType: p.Reference,
			ReferenceID:   p.ReferenceID,
			Description:   p.Description,
			CreatedBy:     p.ActorID,
			CreatedAt:     now,
		},
	}, nil
}

// Balance returns the cached balance for a member.
func (s *Service) Balance(memberID int64) (int, error) {
	var balance int
	err := s.db.QueryRow(`SELECT points_balance FROM family_members WHERE id = ?`, memberID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrMemberNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// HistoryFilter narrows a ledger history query. Zero values mean no filter.
type HistoryFilter struct {
	Type      model.TransactionType
	Reference model.ReferenceType
	Since     time.Time
	Limit     int
}

const entryCols = `id, family_member_id, transaction_type, amount, reference_type, reference_id, description, created_by, created_at`

func scanEntry(scanner interface{ Scan(...any) error }) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var refID sql.NullInt64

	err := scanner.Scan(&e.ID, &e.MemberID, &e.Type, &e.Amount, &e.ReferenceType, &refID, &e.Description, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	if refID.Valid {
		e.ReferenceID = &refID.Int64
	}
	return &e, nil
}

// History returns a member's ledger entries, newest first.
func (s *Service) History(memberID int64, f HistoryFilter) ([]model.LedgerEntry, error) {
	var conds []string
	var args []any

	conds = append(conds, "family_member_id = ?")
	args = append(args, memberID)

	if f.Type != "" {
		conds = append(conds, "transaction_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Reference != "" {
		conds = append(conds, "reference_type = ?")
		args = append(args, string(f.Reference))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	query := `SELECT ` + entryCols + ` FROM points_log WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Aggregate summarizes a member's ledger by transaction type. TotalSpent is
// a non-negative magnitude even though stored spent amounts are negative.
type Aggregate struct {
	MemberID      int64 `json:"member_id"`
	TotalEarned   int   `json:"total_earned"`
	TotalSpent    int   `json:"total_spent"`
	TotalAdjusted int   `json:"total_adjusted"`
	Count         int   `json:"count"`
}

func (s *Service) Aggregate(memberID int64) (*Aggregate, error) {
	agg := Aggregate{MemberID: memberID}
	err := s.db.QueryRow(
		`SELECT
			COALESCE(SUM(CASE WHEN transaction_type = 'earned' THEN amount END), 0),
			COALESCE(SUM(CASE WHEN transaction_type = 'spent' THEN -amount END), 0),
			COALESCE(SUM(CASE WHEN transaction_type = 'adjusted' THEN amount END), 0),
			COUNT(*)
		 FROM points_log WHERE family_member_id = ?`,
		memberID,
	).Scan(&agg.TotalEarned, &agg.TotalSpent, &agg.TotalAdjusted, &agg.Count)
	if err != nil {
		return nil, fmt.Errorf("ledger aggregate: %w", err)
	}
	return &agg, nil
}

// Purge deletes ledger entries created before the cutoff. Retention only:
// balances are not touched, so a purged member's history no longer sums to
// their balance.
func (s *Service) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM points_log WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge ledger: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
