package npos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/internal/repo"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
)

// Repository persists NPO records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, npo *models.NPO) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.NPO, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.NPO, error)
	Update(ctx context.Context, id uuid.UUID, update NPOUpdate) error
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ListFilters struct {
	VerifiedOnly bool
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

func (r *repository) Create(ctx context.Context, npo *models.NPO) error {
	return r.base.DB(ctx).Create(npo).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.NPO, error) {
	var npo models.NPO
	if err := r.base.DB(ctx).Where("id = ?", id).First(&npo).Error; err != nil {
		return nil, err
	}
	return &npo, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.NPO, error) {
	q := r.base.DB(ctx).Model(&models.NPO{})
	if filters.VerifiedOnly {
		q = q.Where("is_verified = ?", true)
	}
	q, err := pagination.Apply(q, params)
	if err != nil {
		return nil, err
	}
	var rows []models.NPO
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, update NPOUpdate) error {
	values := update.columns()
	if len(values) == 0 {
		return nil
	}
	res := r.base.DB(ctx).Model(&models.NPO{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	res := r.base.DB(ctx).Model(&models.NPO{}).Where("id = ?", id).Update("is_verified", verified)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.base.DB(ctx).Where("id = ?", id).Delete(&models.NPO{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
