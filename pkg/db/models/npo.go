package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NPO is a non-profit receiving donations at LedgerAddress. TotalReceived grows
// once per completed donation; TotalCampaigns counts live campaigns.
type NPO struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name               string          `gorm:"column:name;not null"`
	Description        *string         `gorm:"column:description"`
	Email              string          `gorm:"column:email;not null"`
	Website            *string         `gorm:"column:website"`
	RegistrationNumber *string         `gorm:"column:registration_number"`
	LedgerAddress      string          `gorm:"column:ledger_address;not null;uniqueIndex"`
	IsVerified         bool            `gorm:"column:is_verified;not null;default:false"`
	TotalReceived      decimal.Decimal `gorm:"column:total_received;type:numeric(20,6);not null;default:0"`
	TotalCampaigns     int             `gorm:"column:total_campaigns;not null;default:0"`
	OwnerID            *uuid.UUID      `gorm:"column:owner_id;type:uuid"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (NPO) TableName() string { return "npos" }

func (n *NPO) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
