package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PointsAccount is the loyalty balance of one user.
// TierLevel is always rewritten from Points by the points service; nothing
// else should update either column.
type PointsAccount struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"uniqueIndex;not null" json:"user_id"` // external user id (gateway X-User-ID)
	Name      string    `json:"nome"`
	Points    int64     `gorm:"not null;default:0" json:"pontos"`
	TierLevel int       `gorm:"not null;default:1" json:"nivelMembro"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PointsAccount) TableName() string {
	return "points_accounts"
}

func (a *PointsAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
