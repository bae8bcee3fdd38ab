package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/tally/internal/model"
)

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

// --- Reward methods ---

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var quantity sql.NullInt64

	err := scanner.Scan(
		&r.ID, &r.FamilyID, &r.Name, &r.Description, &r.PointsRequired,
		&quantity, &r.QuantityRedeemed, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if quantity.Valid {
		q := int(quantity.Int64)
		r.QuantityAvailable = &q
	}
	return &r, nil
}

const rewardCols = `id, family_id, name, description, points_required, quantity_available, quantity_redeemed, status, created_at, updated_at`

func (s *RewardStore) Create(familyID int64, name, description string, pointsRequired int, quantityAvailable *int) (*model.Reward, error) {
	var quantity sql.NullInt64
	if quantityAvailable != nil {
		quantity = sql.NullInt64{Int64: int64(*quantityAvailable), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO rewards (family_id, name, description, points_required, quantity_available) VALUES (?, ?, ?, ?, ?)`,
		familyID, name, description, pointsRequired, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	return getReward(s.db, id)
}

func getReward(q querier, id int64) (*model.Reward, error) {
	row := q.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

func (s *RewardStore) ListByFamily(familyID int64) ([]model.Reward, error) {
	rows, err := s.db.Query(
		`SELECT `+rewardCols+` FROM rewards WHERE family_id = ? ORDER BY status ASC, name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

// Update applies a patch. Price changes do not touch pending redemptions;
// their points_spent was frozen at request time.
func (s *RewardStore) Update(id int64, patch model.RewardPatch) (*model.Reward, error) {
	var sets []string
	var args []any

	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.PointsRequired != nil {
		sets = append(sets, "points_required = ?")
		args = append(args, *patch.PointsRequired)
	}
	if patch.ClearQuantity {
		sets = append(sets, "quantity_available = NULL")
	} else if patch.QuantityAvailable != nil {
		sets = append(sets, "quantity_available = ?")
		args = append(args, *patch.QuantityAvailable)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if len(sets) == 0 {
		return s.GetByID(id)
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	_, err := s.db.Exec(`UPDATE rewards SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// IncrementRedeemedTx bumps quantity_redeemed guarded by the same
// availability predicate used at request time. Returns false when the
// reward is switched off or out of stock. Engine use only.
func (s *RewardStore) IncrementRedeemedTx(tx *sql.Tx, id int64) (bool, error) {
	result, err := tx.Exec(
		`UPDATE rewards SET quantity_redeemed = quantity_redeemed + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND (quantity_available IS NULL OR quantity_redeemed < quantity_available)`,
		id, string(model.RewardAvailable),
	)
	if err != nil {
		return false, fmt.Errorf("increment redeemed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// --- Redemption methods ---

func scanRedemption(scanner interface{ Scan(...any) error }) (*model.RewardRedemption, error) {
	var r model.RewardRedemption
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime

	err := scanner.Scan(
		&r.ID, &r.RewardID, &r.ChildID, &r.FamilyID, &r.PointsSpent,
		&r.Status, &r.RequestedAt, &reviewedBy, &reviewedAt, &r.ReviewNotes,
	)
	if err != nil {
		return nil, err
	}

	if reviewedBy.Valid {
		r.ReviewedBy = &reviewedBy.Int64
	}
	if reviewedAt.Valid {
		r.ReviewedAt = &reviewedAt.Time
	}
	return &r, nil
}

const redemptionCols = `id, reward_id, child_id, family_id, points_spent, status, requested_at, reviewed_by, reviewed_at, review_notes`

func (s *RewardStore) CreateRedemption(rewardID, childID, familyID int64, pointsSpent int, at time.Time) (*model.RewardRedemption, error) {
	result, err := s.db.Exec(
		`INSERT INTO reward_redemptions (reward_id, child_id, family_id, points_spent, requested_at) VALUES (?, ?, ?, ?, ?)`,
		rewardID, childID, familyID, pointsSpent, at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRedemption(id)
}

func (s *RewardStore) GetRedemption(id int64) (*model.RewardRedemption, error) {
	return getRedemption(s.db, id)
}

// GetRedemptionTx reads a redemption inside a caller-owned transaction.
func (s *RewardStore) GetRedemptionTx(tx *sql.Tx, id int64) (*model.RewardRedemption, error) {
	return getRedemption(tx, id)
}

func getRedemption(q querier, id int64) (*model.RewardRedemption, error) {
	row := q.QueryRow(`SELECT `+redemptionCols+` FROM reward_redemptions WHERE id = ?`, id)
	r, err := scanRedemption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return r, nil
}

func (s *RewardStore) ListRedemptionsByChild(childID int64) ([]model.RewardRedemption, error) {
	return s.listRedemptions(`child_id = ?`, childID)
}

func (s *RewardStore) ListPendingRedemptionsByFamily(familyID int64) ([]model.RewardRedemption, error) {
	rows, err := s.db.Query(
		`SELECT `+redemptionCols+` FROM reward_redemptions WHERE family_id = ? AND status = ? ORDER BY requested_at ASC`,
		familyID, string(model.RedemptionPending),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending redemptions: %w", err)
	}
	defer rows.Close()
	return collectRedemptions(rows)
}

func (s *RewardStore) listRedemptions(where string, arg any) ([]model.RewardRedemption, error) {
	rows, err := s.db.Query(
		`SELECT `+redemptionCols+` FROM reward_redemptions WHERE `+where+` ORDER BY requested_at DESC, id DESC`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()
	return collectRedemptions(rows)
}

func collectRedemptions(rows *sql.Rows) ([]model.RewardRedemption, error) {
	var redemptions []model.RewardRedemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

// SetRedemptionStatusTx records a terminal transition. reviewedBy is nil
// for self-service cancellation. Engine use only.
func (s *RewardStore) SetRedemptionStatusTx(tx *sql.Tx, id int64, status model.RedemptionStatus, reviewedBy *int64, at time.Time, notes string) error {
	var reviewer sql.NullInt64
	if reviewedBy != nil {
		reviewer = sql.NullInt64{Int64: *reviewedBy, Valid: true}
	}

	_, err := tx.Exec(
		`UPDATE reward_redemptions SET status = ?, reviewed_by = ?, reviewed_at = ?, review_notes = ? WHERE id = ?`,
		string(status), reviewer, at.UTC(), notes, id,
	)
	if err != nil {
		return fmt.Errorf("set redemption status: %w", err)
	}
	return nil
}
