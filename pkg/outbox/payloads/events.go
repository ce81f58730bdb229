package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DonationCompletedEvent is emitted once when a donation settles and the
// campaign and NPO totals have been credited.
type DonationCompletedEvent struct {
	DonationID  uuid.UUID       `json:"donationId"`
	NPOID       uuid.UUID       `json:"npoId"`
	CampaignID  *uuid.UUID      `json:"campaignId,omitempty"`
	DonorID     *uuid.UUID      `json:"donorId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	TxHash      string          `json:"txHash"`
	CompletedAt time.Time       `json:"completedAt"`
}

// DonationFailedEvent is emitted when the ledger reports a business failure.
type DonationFailedEvent struct {
	DonationID  uuid.UUID       `json:"donationId"`
	NPOID       uuid.UUID       `json:"npoId"`
	CampaignID  *uuid.UUID      `json:"campaignId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	TxHash      *string         `json:"txHash,omitempty"`
	FailureCode *string         `json:"failureCode,omitempty"`
}

// CampaignDeactivatedEvent is emitted when a campaign stops accepting donations.
type CampaignDeactivatedEvent struct {
	CampaignID    uuid.UUID       `json:"campaignId"`
	NPOID         uuid.UUID       `json:"npoId"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	GoalAmount    decimal.Decimal `json:"goalAmount"`
	Reason        string          `json:"reason"`
}
