package model

import "time"

// TransactionType classifies a ledger entry by why the balance moved.
type TransactionType string

const (
	TransactionEarned   TransactionType = "earned"
	TransactionSpent    TransactionType = "spent"
	TransactionAdjusted TransactionType = "adjusted"
)

// ReferenceType names the kind of record a ledger entry points back at.
type ReferenceType string

const (
	ReferenceTask   ReferenceType = "task"
	ReferenceReward ReferenceType = "reward"
	ReferenceManual ReferenceType = "manual"
)

// LedgerEntry is one immutable points_log row. Amount is signed: positive
// for earned, negative for spent, either (or zero) for adjusted. Replaying
// a member's entries in creation order must sum to their cached balance.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	MemberID      int64           `json:"member_id"`
	Type          TransactionType `json:"transaction_type"`
	Amount        int             `json:"amount"`
	ReferenceType ReferenceType   `json:"reference_type"`
	ReferenceID   *int64          `json:"reference_id,omitempty"`
	Description   string          `json:"description"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}
