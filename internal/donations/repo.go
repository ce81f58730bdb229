package donations

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/internal/repo"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
)

type repository struct {
	base repo.Base
}

// NewRepository builds a donations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, donation *models.Donation) error {
	return r.base.DB(ctx).Create(donation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	var donation models.Donation
	if err := r.base.DB(ctx).Where("id = ?", id).First(&donation).Error; err != nil {
		return nil, err
	}
	return &donation, nil
}

// FindByIDForUpdate reads the donation and holds its row lock until the
// surrounding transaction ends.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	var donation models.Donation
	if err := repo.ForUpdate(r.base.DB(ctx)).Where("id = ?", id).First(&donation).Error; err != nil {
		return nil, err
	}
	return &donation, nil
}

// DeleteInStatus deletes the donation only while it still has status. False
// with a nil error means the row moved on to another status.
func (r *repository) DeleteInStatus(ctx context.Context, id uuid.UUID, status enums.DonationStatus) (bool, error) {
	res := r.base.DB(ctx).Where("id = ? AND status = ?", id, status).Delete(&models.Donation{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.base.DB(ctx).Where("id = ?", id).Delete(&models.Donation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ApplySettlement(ctx context.Context, id uuid.UUID, update SettlementUpdate) error {
	values := map[string]any{}
	if update.TxHash != nil {
		values["tx_hash"] = *update.TxHash
	}
	if update.EscrowID != nil {
		values["escrow_id"] = *update.EscrowID
	}
	if update.EscrowOwner != nil {
		values["escrow_owner"] = *update.EscrowOwner
	}
	if update.EscrowSequence != nil {
		values["escrow_sequence"] = *update.EscrowSequence
	}
	if update.ReleaseAt != nil {
		values["release_at"] = update.ReleaseAt.UTC()
	}
	if len(values) == 0 {
		return nil
	}
	res := r.base.DB(ctx).Model(&models.Donation{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionFromPending is a compare-and-set on status. It reports false when
// another writer already moved the donation out of pending.
func (r *repository) TransitionFromPending(ctx context.Context, id uuid.UUID, transition Transition) (bool, error) {
	if !transition.To.IsTerminal() {
		return false, fmt.Errorf("invalid transition target %q", transition.To)
	}
	if (transition.To == enums.DonationStatusCompleted) != (transition.CompletedAt != nil) {
		return false, fmt.Errorf("completed_at must be set exactly for completed donations")
	}
	values := map[string]any{"status": transition.To}
	if transition.CompletedAt != nil {
		values["completed_at"] = transition.CompletedAt.UTC()
	}
	if transition.FailureCode != nil {
		values["failure_code"] = *transition.FailureCode
	}
	res := r.base.DB(ctx).Model(&models.Donation{}).
		Where("id = ? AND status = ?", id, enums.DonationStatusPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Donation, error) {
	q := r.base.DB(ctx).Model(&models.Donation{})
	if filters.NPOID != nil {
		q = q.Where("npo_id = ?", *filters.NPOID)
	}
	if filters.CampaignID != nil {
		q = q.Where("campaign_id = ?", *filters.CampaignID)
	}
	if filters.DonorID != nil {
		q = q.Where("donor_id = ?", *filters.DonorID)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	q, err := pagination.Apply(q, params)
	if err != nil {
		return nil, err
	}
	var rows []models.Donation
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPendingWithHash(ctx context.Context, limit int) ([]models.Donation, error) {
	var rows []models.Donation
	err := r.base.DB(ctx).
		Where("status = ?", enums.DonationStatusPending).
		Where("tx_hash IS NOT NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// AddToCampaign adjusts current_amount in place so concurrent completions
// against one campaign never lose an update.
func (r *repository) AddToCampaign(ctx context.Context, campaignID uuid.UUID, delta decimal.Decimal) error {
	res := r.base.DB(ctx).Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Update("current_amount", gorm.Expr("current_amount + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) AddToNPO(ctx context.Context, npoID uuid.UUID, amount decimal.Decimal) error {
	res := r.base.DB(ctx).Model(&models.NPO{}).
		Where("id = ?", npoID).
		Update("total_received", gorm.Expr("total_received + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
