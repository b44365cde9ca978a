package models

import (
	"time"

	"github.com/google/uuid"
	gorm "gorm.io/gorm"
)

// Reward is an entry of the redemption catalog.
// Inactive rewards are hidden from members and cannot be redeemed.
type Reward struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	Title        string         `gorm:"not null" json:"titulo"`
	Slug         string         `gorm:"uniqueIndex;not null" json:"slug"`
	Description  string         `gorm:"type:text" json:"descricao"`
	ImageURL     string         `gorm:"type:text" json:"imagem_url"`
	PointsCost   int64          `gorm:"not null;default:0;index" json:"pontos"`
	MinTierLevel int            `gorm:"not null;default:1" json:"nivelMinimo"`
	Active       bool           `gorm:"not null;index" json:"ativo"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *Reward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Redemption is the receipt of a reward exchanged for points.
type Redemption struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string    `gorm:"index;not null" json:"user_id"`
	RewardID     string    `gorm:"index;not null" json:"reward_id"`
	PointsSpent  int64     `json:"points_spent"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *Redemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
