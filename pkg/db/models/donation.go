package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/pkg/enums"
)

// Donation is a single gift settled on the ledger. Status moves from pending to
// exactly one terminal state; CompletedAt is set iff Status is completed.
type Donation struct {
	ID           uuid.UUID            `gorm:"type:uuid;primaryKey"`
	Amount       decimal.Decimal      `gorm:"column:amount;type:numeric(20,6);not null"`
	DonorID      *uuid.UUID           `gorm:"column:donor_id;type:uuid;index"`
	NPOID        uuid.UUID            `gorm:"column:npo_id;type:uuid;not null;index"`
	CampaignID   *uuid.UUID           `gorm:"column:campaign_id;type:uuid;index"`
	Message      *string              `gorm:"column:message"`
	IsAnonymous  bool                 `gorm:"column:is_anonymous;not null;default:false"`
	UseEscrow    bool                 `gorm:"column:use_escrow;not null;default:false"`
	TxHash       *string              `gorm:"column:tx_hash;uniqueIndex"`
	EscrowID     *string              `gorm:"column:escrow_id"`
	EscrowOwner  *string              `gorm:"column:escrow_owner"`
	EscrowSeq    *uint32              `gorm:"column:escrow_sequence"`
	ReleaseAt    *time.Time           `gorm:"column:release_at"`
	Status       enums.DonationStatus `gorm:"column:status;type:donation_status_enum;not null;default:'pending'"`
	FailureCode  *string              `gorm:"column:failure_code"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt  *time.Time           `gorm:"column:completed_at"`
}

func (d *Donation) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
