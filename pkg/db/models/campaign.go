package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Campaign is a fundraising drive owned by an NPO.
type Campaign struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	NPOID         uuid.UUID       `gorm:"column:npo_id;type:uuid;not null;index"`
	Title         string          `gorm:"column:title;not null"`
	Description   *string         `gorm:"column:description"`
	GoalAmount    decimal.Decimal `gorm:"column:goal_amount;type:numeric(20,6);not null"`
	CurrentAmount decimal.Decimal `gorm:"column:current_amount;type:numeric(20,6);not null;default:0"`
	StartDate     time.Time       `gorm:"column:start_date;not null"`
	EndDate       *time.Time      `gorm:"column:end_date"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Campaign) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// AcceptsDonationsAt reports whether the campaign is open for new donations.
func (c *Campaign) AcceptsDonationsAt(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if now.Before(c.StartDate) {
		return false
	}
	return c.EndDate == nil || now.Before(*c.EndDate)
}
