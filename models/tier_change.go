package models

import "time"

// TierChange records every time an account moved between membership tiers.
type TierChange struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	FromLevel int       `json:"from_level"`
	ToLevel   int       `json:"to_level"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (TierChange) TableName() string {
	return "tier_changes"
}
