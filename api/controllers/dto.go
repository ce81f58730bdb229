package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donorledger-backend/internal/ledger"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
)

type donationResponse struct {
	ID             uuid.UUID            `json:"id"`
	Amount         decimal.Decimal      `json:"amount"`
	DonorID        *uuid.UUID           `json:"donor_id,omitempty"`
	NPOID          uuid.UUID            `json:"npo_id"`
	CampaignID     *uuid.UUID           `json:"campaign_id,omitempty"`
	Message        *string              `json:"message,omitempty"`
	IsAnonymous    bool                 `json:"is_anonymous"`
	UseEscrow      bool                 `json:"use_escrow"`
	TxHash         *string              `json:"tx_hash,omitempty"`
	EscrowID       *string              `json:"escrow_id,omitempty"`
	EscrowOwner    *string              `json:"escrow_owner,omitempty"`
	EscrowSequence *uint32              `json:"escrow_sequence,omitempty"`
	ReleaseAt      *time.Time           `json:"release_at,omitempty"`
	Status         enums.DonationStatus `json:"status"`
	FailureCode    *string              `json:"failure_code,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
}

// newDonationResponse never exposes a donor on anonymous donations, even if a
// legacy row still carries one.
func newDonationResponse(d *models.Donation) donationResponse {
	resp := donationResponse{
		ID:             d.ID,
		Amount:         d.Amount,
		DonorID:        d.DonorID,
		NPOID:          d.NPOID,
		CampaignID:     d.CampaignID,
		Message:        d.Message,
		IsAnonymous:    d.IsAnonymous,
		UseEscrow:      d.UseEscrow,
		TxHash:         d.TxHash,
		EscrowID:       d.EscrowID,
		EscrowOwner:    d.EscrowOwner,
		EscrowSequence: d.EscrowSeq,
		ReleaseAt:      d.ReleaseAt,
		Status:         d.Status,
		FailureCode:    d.FailureCode,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		CompletedAt:    d.CompletedAt,
	}
	if d.IsAnonymous {
		resp.DonorID = nil
	}
	return resp
}

type outcomeResponse struct {
	Operation enums.LedgerOperationKind `json:"operation"`
	TxHash    string                    `json:"tx_hash"`
	Status    enums.LedgerOutcomeStatus `json:"status"`
	Fee       decimal.Decimal           `json:"fee"`
	Error     string                    `json:"error,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
	EscrowID  *string                   `json:"escrow_id,omitempty"`
	Sequence  uint32                    `json:"sequence,omitempty"`
	ReleaseAt *time.Time                `json:"release_at,omitempty"`
}

func newOutcomeResponse(o *ledger.Outcome) *outcomeResponse {
	if o == nil {
		return nil
	}
	return &outcomeResponse{
		Operation: o.Operation,
		TxHash:    o.TxHash,
		Status:    o.Status,
		Fee:       o.Fee,
		Error:     o.Error,
		Timestamp: o.Timestamp,
		EscrowID:  o.EscrowID,
		Sequence:  o.Sequence,
		ReleaseAt: o.ReleaseAt,
	}
}

type escrowFinishResponse struct {
	Donation donationResponse `json:"donation"`
	Outcome  *outcomeResponse `json:"outcome,omitempty"`
}

type campaignResponse struct {
	ID            uuid.UUID       `json:"id"`
	NPOID         uuid.UUID       `json:"npo_id"`
	Title         string          `json:"title"`
	Description   *string         `json:"description,omitempty"`
	GoalAmount    decimal.Decimal `json:"goal_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       *time.Time      `json:"end_date,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func newCampaignResponse(c *models.Campaign) campaignResponse {
	return campaignResponse{
		ID:            c.ID,
		NPOID:         c.NPOID,
		Title:         c.Title,
		Description:   c.Description,
		GoalAmount:    c.GoalAmount,
		CurrentAmount: c.CurrentAmount,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type npoResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Description        *string         `json:"description,omitempty"`
	Email              string          `json:"email"`
	Website            *string         `json:"website,omitempty"`
	RegistrationNumber *string         `json:"registration_number,omitempty"`
	LedgerAddress      string          `json:"ledger_address"`
	IsVerified         bool            `json:"is_verified"`
	TotalReceived      decimal.Decimal `json:"total_received"`
	TotalCampaigns     int             `json:"total_campaigns"`
	OwnerID            *uuid.UUID      `json:"owner_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func newNPOResponse(n *models.NPO) npoResponse {
	return npoResponse{
		ID:                 n.ID,
		Name:               n.Name,
		Description:        n.Description,
		Email:              n.Email,
		Website:            n.Website,
		RegistrationNumber: n.RegistrationNumber,
		LedgerAddress:      n.LedgerAddress,
		IsVerified:         n.IsVerified,
		TotalReceived:      n.TotalReceived,
		TotalCampaigns:     n.TotalCampaigns,
		OwnerID:            n.OwnerID,
		CreatedAt:          n.CreatedAt,
		UpdatedAt:          n.UpdatedAt,
	}
}

// mapPage converts a page of models into a page of responses.
func mapPage[M any, R any](page *pagination.Page[M], fn func(*M) R) pagination.Page[R] {
	out := pagination.Page[R]{Items: make([]R, 0)}
	if page == nil {
		return out
	}
	out.NextCursor = page.NextCursor
	for i := range page.Items {
		out.Items = append(out.Items, fn(&page.Items[i]))
	}
	return out
}
