package campaigns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/internal/repo"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
)

// Repository persists campaigns and keeps npos.total_campaigns in step.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, campaign *models.Campaign) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Campaign, error)
	Update(ctx context.Context, id uuid.UUID, update CampaignUpdate) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Campaign, error)
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
	AdjustNPOCampaignCount(ctx context.Context, npoID uuid.UUID, delta int) error
}

type ListFilters struct {
	NPOID *uuid.UUID
	// ActiveAt keeps campaigns that are flagged active and whose window
	// contains the instant.
	ActiveAt *time.Time
}

type repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, campaign *models.Campaign) error {
	return r.base.DB(ctx).Create(campaign).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.base.DB(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Campaign, error) {
	q := r.base.DB(ctx).Model(&models.Campaign{})
	if filters.NPOID != nil {
		q = q.Where("npo_id = ?", *filters.NPOID)
	}
	if filters.ActiveAt != nil {
		at := filters.ActiveAt.UTC()
		q = q.Where("is_active = ?", true).
			Where("start_date <= ?", at).
			Where("end_date IS NULL OR end_date > ?", at)
	}
	q, err := pagination.Apply(q, params)
	if err != nil {
		return nil, err
	}
	var rows []models.Campaign
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, update CampaignUpdate) error {
	values := update.columns()
	if len(values) == 0 {
		return nil
	}
	res := r.base.DB(ctx).Model(&models.Campaign{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.base.DB(ctx).Where("id = ?", id).Delete(&models.Campaign{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Campaign, error) {
	var rows []models.Campaign
	err := r.base.DB(ctx).
		Where("is_active = ?", true).
		Where("end_date IS NOT NULL AND end_date < ?", now.UTC()).
		Order("end_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Deactivate flips is_active only if it is still set, so repeated sweeps
// report each campaign once.
func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.base.DB(ctx).Model(&models.Campaign{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AdjustNPOCampaignCount(ctx context.Context, npoID uuid.UUID, delta int) error {
	res := r.base.DB(ctx).Model(&models.NPO{}).
		Where("id = ?", npoID).
		Update("total_campaigns", gorm.Expr("total_campaigns + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
