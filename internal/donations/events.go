package donations

import (
	"time"

	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/outbox/payloads"
)

func completedEvent(d *models.Donation, txHash string, completedAt time.Time) payloads.DonationCompletedEvent {
	event := payloads.DonationCompletedEvent{
		DonationID:  d.ID,
		NPOID:       d.NPOID,
		CampaignID:  d.CampaignID,
		Amount:      d.Amount,
		TxHash:      txHash,
		CompletedAt: completedAt,
	}
	if !d.IsAnonymous {
		event.DonorID = d.DonorID
	}
	return event
}

func failedEvent(d *models.Donation, code *string) payloads.DonationFailedEvent {
	return payloads.DonationFailedEvent{
		DonationID:  d.ID,
		NPOID:       d.NPOID,
		CampaignID:  d.CampaignID,
		Amount:      d.Amount,
		TxHash:      d.TxHash,
		FailureCode: code,
	}
}
