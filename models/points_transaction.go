package models

import "time"

// TransactionKind classifies a ledger line.
type TransactionKind string

const (
	KindCredit       TransactionKind = "credit"
	KindDebit        TransactionKind = "debit"
	KindWelcomeBonus TransactionKind = "welcome_bonus"
	KindPurchase     TransactionKind = "purchase"
	KindRedemption   TransactionKind = "redemption"
)

// PointsTransaction is one balance movement. Amount is signed.
// (Kind, SourceID) is unique so external events can be credited exactly once.
type PointsTransaction struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string          `gorm:"index;not null" json:"user_id"`
	Amount       int64           `gorm:"not null" json:"amount"`
	BalanceAfter int64           `gorm:"not null" json:"balance_after"`
	Kind         TransactionKind `gorm:"type:varchar(32);not null;uniqueIndex:idx_points_tx_source" json:"kind"`
	SourceID     *string         `gorm:"type:varchar(128);uniqueIndex:idx_points_tx_source" json:"source_id,omitempty"`
	Reason       string          `gorm:"type:varchar(255)" json:"reason"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (PointsTransaction) TableName() string {
	return "points_transactions"
}
