package model

import "time"

// RewardStatus is the catalog availability switch on a reward.
type RewardStatus string

const (
	RewardAvailable   RewardStatus = "available"
	RewardUnavailable RewardStatus = "unavailable"
)

// Reward is a family-scoped catalog item. QuantityAvailable nil means
// unlimited stock.
type Reward struct {
	ID                int64        `json:"id"`
	FamilyID          int64        `json:"family_id"`
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	PointsRequired    int          `json:"points_required"`
	QuantityAvailable *int         `json:"quantity_available,omitempty"`
	QuantityRedeemed  int          `json:"quantity_redeemed"`
	Status            RewardStatus `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Available reports whether the reward can currently be redeemed: it must
// be switched on and, if stock is tracked, not exhausted.
func (r *Reward) Available() bool {
	if r.Status != RewardAvailable {
		return false
	}
	return r.QuantityAvailable == nil || r.QuantityRedeemed < *r.QuantityAvailable
}

// RewardPatch carries optional fields for a partial reward update.
// ClearQuantity removes the stock limit; it wins over QuantityAvailable.
type RewardPatch struct {
	Name              *string       `json:"name,omitempty"`
	Description       *string       `json:"description,omitempty"`
	PointsRequired    *int          `json:"points_required,omitempty"`
	QuantityAvailable *int          `json:"quantity_available,omitempty"`
	ClearQuantity     bool          `json:"clear_quantity,omitempty"`
	Status            *RewardStatus `json:"status,omitempty"`
}

// RedemptionStatus is the lifecycle state of a reward redemption.
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionApproved  RedemptionStatus = "approved"
	RedemptionDenied    RedemptionStatus = "denied"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

// Terminal reports whether no further transition is defined from s.
func (s RedemptionStatus) Terminal() bool {
	return s != RedemptionPending
}

// RewardRedemption is a child's request to spend points. PointsSpent is
// captured at request time and never changes afterward, even if the
// reward's price does.
type RewardRedemption struct {
	ID          int64            `json:"id"`
	RewardID    int64            `json:"reward_id"`
	ChildID     int64            `json:"child_id"`
	FamilyID    int64            `json:"family_id"`
	PointsSpent int              `json:"points_spent"`
	Status      RedemptionStatus `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	ReviewedBy  *int64           `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time       `json:"reviewed_at,omitempty"`
	ReviewNotes string           `json:"review_notes"`
}
