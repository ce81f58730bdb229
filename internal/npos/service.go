package npos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/pkg/db"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
	"github.com/angelmondragon/donorledger-backend/pkg/xrpl"
)

const ledgerAddressConstraint = "npos_ledger_address_key"

type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.NPO, error)
	Get(ctx context.Context, id uuid.UUID) (*models.NPO, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*NPOList, error)
	Update(ctx context.Context, id uuid.UUID, update NPOUpdate) (*models.NPO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Verify(ctx context.Context, id uuid.UUID) (*models.NPO, error)
}

type NPOList = pagination.Page[models.NPO]

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("npo repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.NPO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	address := strings.TrimSpace(input.LedgerAddress)
	if !xrpl.IsClassicAddress(address) {
		return nil, invalidAddress()
	}

	npo := &models.NPO{
		Name:               name,
		Description:        input.Description,
		Email:              strings.ToLower(strings.TrimSpace(input.Email)),
		Website:            input.Website,
		RegistrationNumber: input.RegistrationNumber,
		LedgerAddress:      address,
		OwnerID:            input.OwnerID,
	}
	if err := s.repo.Create(ctx, npo); err != nil {
		return nil, writeError(err, "create npo")
	}
	return npo, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.NPO, error) {
	npo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, readError(err)
	}
	return npo, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*NPOList, error) {
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, listError(err)
	}
	page := pagination.Build(rows, params.Limit, func(n models.NPO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return &page, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, update NPOUpdate) (*models.NPO, error) {
	if update.LedgerAddress != nil {
		address := strings.TrimSpace(*update.LedgerAddress)
		if !xrpl.IsClassicAddress(address) {
			return nil, invalidAddress()
		}
		update.LedgerAddress = &address
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
	}
	if err := s.repo.Update(ctx, id, update); err != nil {
		return nil, writeError(err, "update npo")
	}
	return s.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return readError(err)
		case db.IsForeignKeyViolation(err):
			return pkgerrors.New(pkgerrors.CodeConflict, "npo still has donations")
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete npo")
		}
	}
	return nil
}

func (s *service) Verify(ctx context.Context, id uuid.UUID) (*models.NPO, error) {
	npo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, readError(err)
	}
	if npo.IsVerified {
		return npo, nil
	}
	if err := s.repo.SetVerified(ctx, id, true); err != nil {
		return nil, writeError(err, "verify npo")
	}
	npo.IsVerified = true
	return npo, nil
}

func listError(err error) error {
	if strings.Contains(err.Error(), "cursor") {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list npos")
}

func invalidAddress() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "ledger_address must be a classic ledger account address").
		WithDetails(map[string]any{"field": "ledger_address"})
}

func readError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "npo not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load npo")
}

func writeError(err error, action string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "npo not found")
	case db.IsUniqueViolation(err, ledgerAddressConstraint), db.IsUniqueViolation(err, "npos.ledger_address"):
		return pkgerrors.New(pkgerrors.CodeConflict, "ledger address already registered")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}
