package model

import "time"

// FamilyMember is one (user, family) membership. The points balance is
// mutated only through the ledger service; it starts at 0 and never goes
// negative.
type FamilyMember struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	FamilyID      int64     `json:"family_id"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	PointsBalance int       `json:"points_balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	RoleParent = "parent"
	RoleChild  = "child"
)

// MemberPatch carries optional fields for a partial member update. Nil
// fields are left unchanged. The balance has no patch field; only the
// ledger service writes it.
type MemberPatch struct {
	Name *string `json:"name,omitempty"`
	Role *string `json:"role,omitempty"`
}
