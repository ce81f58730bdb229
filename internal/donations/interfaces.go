package donations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
)

// Repository persists donations and the two accumulators a completed donation
// feeds: campaigns.current_amount and npos.total_received.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, donation *models.Donation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteInStatus(ctx context.Context, id uuid.UUID, status enums.DonationStatus) (bool, error)
	ApplySettlement(ctx context.Context, id uuid.UUID, update SettlementUpdate) error
	TransitionFromPending(ctx context.Context, id uuid.UUID, transition Transition) (bool, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Donation, error)
	ListPendingWithHash(ctx context.Context, limit int) ([]models.Donation, error)
	AddToCampaign(ctx context.Context, campaignID uuid.UUID, delta decimal.Decimal) error
	AddToNPO(ctx context.Context, npoID uuid.UUID, amount decimal.Decimal) error
}

// SettlementUpdate enumerates the fields stamped onto a donation after the
// ledger accepted its submission. Nil fields are left untouched.
type SettlementUpdate struct {
	TxHash         *string
	EscrowID       *string
	EscrowOwner    *string
	EscrowSequence *uint32
	ReleaseAt      *time.Time
}

// Transition moves a donation out of pending. CompletedAt must be set exactly
// when To is completed.
type Transition struct {
	To          enums.DonationStatus
	CompletedAt *time.Time
	FailureCode *string
}

type ListFilters struct {
	NPOID      *uuid.UUID
	CampaignID *uuid.UUID
	DonorID    *uuid.UUID
	Status     *enums.DonationStatus
}

type campaignReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
}

type npoReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.NPO, error)
}

type userReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
