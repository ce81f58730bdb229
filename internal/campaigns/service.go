package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/pkg/db"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	"github.com/angelmondragon/donorledger-backend/pkg/outbox"
	"github.com/angelmondragon/donorledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
)

const sweepBatchSize = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type npoReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.NPO, error)
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Campaign, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*CampaignList, error)
	Update(ctx context.Context, id uuid.UUID, update CampaignUpdate) (*models.Campaign, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	DeactivateExpired(ctx context.Context) (int, error)
}

type CampaignList = pagination.Page[models.Campaign]

type service struct {
	repo   Repository
	npos   npoReader
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, npos npoReader, tx txRunner, outbox outboxPublisher, logg *logger.Logger, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("campaigns repository required")
	}
	if npos == nil {
		return nil, fmt.Errorf("npo reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: repo, npos: npos, tx: tx, outbox: outbox, logg: logg, now: now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Campaign, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.GoalAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "goal_amount must be positive")
	}
	start := s.now()
	if input.StartDate != nil {
		start = input.StartDate.UTC()
	}
	if err := checkWindow(start, input.EndDate); err != nil {
		return nil, err
	}
	if _, err := s.npos.FindByID(ctx, input.NPOID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "npo not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load npo")
	}

	campaign := &models.Campaign{
		NPOID:       input.NPOID,
		Title:       title,
		Description: input.Description,
		GoalAmount:  input.GoalAmount,
		StartDate:   start,
		IsActive:    true,
	}
	if input.EndDate != nil {
		end := input.EndDate.UTC()
		campaign.EndDate = &end
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, campaign); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create campaign")
		}
		if err := repo.AdjustNPOCampaignCount(ctx, campaign.NPOID, 1); err != nil {
			return lookupError(err, "npo")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "campaign")
	}
	return campaign, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*CampaignList, error) {
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		if strings.Contains(err.Error(), "cursor") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list campaigns")
	}
	page := pagination.Build(rows, params.Limit, func(c models.Campaign) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	return &page, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, update CampaignUpdate) (*models.Campaign, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
	}
	if update.GoalAmount != nil && !update.GoalAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "goal_amount must be positive")
	}
	start, end := current.StartDate, current.EndDate
	if update.StartDate != nil {
		start = *update.StartDate
	}
	if update.EndDate != nil {
		end = update.EndDate
	}
	if err := checkWindow(start, end); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, update); err != nil {
		return nil, lookupError(err, "campaign")
	}
	return s.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		campaign, err := repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "campaign")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return lookupError(err, "campaign")
		}
		if err := repo.AdjustNPOCampaignCount(ctx, campaign.NPOID, -1); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust npo campaign count")
		}
		return nil
	})
}

// Deactivate turns a campaign off by hand. Deactivating an inactive
// campaign is a no-op.
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.deactivate(ctx, campaign, ReasonManual); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// DeactivateExpired clears is_active on every active campaign whose end date
// has passed and returns how many it turned off.
func (s *service) DeactivateExpired(ctx context.Context) (int, error) {
	now := s.now()
	var (
		total int
		errs  error
	)
	for {
		rows, err := s.repo.ListExpiredActive(ctx, now, sweepBatchSize)
		if err != nil {
			return total, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired campaigns"))
		}
		progressed := false
		for i := range rows {
			changed, err := s.deactivate(ctx, &rows[i], ReasonEnded)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("campaign %s: %w", rows[i].ID, err))
				continue
			}
			if changed {
				total++
				progressed = true
			}
		}
		if len(rows) < sweepBatchSize || !progressed {
			break
		}
	}
	if total > 0 {
		s.logg.Info(s.logg.WithField(ctx, "deactivated", total), "expired campaigns deactivated")
	}
	return total, errs
}

func (s *service) deactivate(ctx context.Context, campaign *models.Campaign, reason string) (bool, error) {
	changed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Deactivate(ctx, campaign.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate campaign")
		}
		if !ok {
			return nil
		}
		changed = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCampaignDeactivated,
			AggregateType: enums.AggregateCampaign,
			AggregateID:   campaign.ID,
			Data: payloads.CampaignDeactivatedEvent{
				CampaignID:    campaign.ID,
				NPOID:         campaign.NPOID,
				CurrentAmount: campaign.CurrentAmount,
				GoalAmount:    campaign.GoalAmount,
				Reason:        reason,
			},
		})
	})
	return changed, err
}

func checkWindow(start time.Time, end *time.Time) error {
	if end != nil && !end.After(start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end_date must be after start_date")
	}
	return nil
}

func lookupError(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	if db.IsForeignKeyViolation(err) {
		return pkgerrors.New(pkgerrors.CodeConflict, entity+" is still referenced")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}
