package controllers

import (
	"net/http"

	"github.com/angelmondragon/donorledger-backend/api/responses"
	"github.com/angelmondragon/donorledger-backend/api/validators"
	"github.com/angelmondragon/donorledger-backend/internal/npos"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
)

type createNPORequest struct {
	Name               string  `json:"name" validate:"required,max=200"`
	Description        *string `json:"description" validate:"omitempty,max=2000"`
	Email              string  `json:"email" validate:"required,email"`
	Website            *string `json:"website" validate:"omitempty,url"`
	RegistrationNumber *string `json:"registration_number" validate:"omitempty,max=100"`
	LedgerAddress      string  `json:"ledger_address" validate:"required,xrpl_address"`
	OwnerID            *string `json:"owner_id" validate:"omitempty,uuid"`
}

type updateNPORequest struct {
	Name               *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description        *string `json:"description" validate:"omitempty,max=2000"`
	Email              *string `json:"email" validate:"omitempty,email"`
	Website            *string `json:"website" validate:"omitempty,url"`
	RegistrationNumber *string `json:"registration_number" validate:"omitempty,max=100"`
	LedgerAddress      *string `json:"ledger_address" validate:"omitempty,xrpl_address"`
}

func CreateNPO(svc npos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "npo service unavailable"))
			return
		}

		var req createNPORequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ownerID, err := optionalUUID(req.OwnerID, "owner_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		npo, err := svc.Create(r.Context(), npos.CreateInput{
			Name:               validators.SanitizeString(req.Name, 200),
			Description:        trimmedOrNil(req.Description),
			Email:              req.Email,
			Website:            trimmedOrNil(req.Website),
			RegistrationNumber: trimmedOrNil(req.RegistrationNumber),
			LedgerAddress:      req.LedgerAddress,
			OwnerID:            ownerID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newNPOResponse(npo))
	}
}

func GetNPO(svc npos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "npo service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "npoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		npo, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newNPOResponse(npo))
	}
}

// ListNPOs accepts verified=true to hide organizations awaiting verification.
func ListNPOs(svc npos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "npo service unavailable"))
			return
		}

		verified, err := validators.ParseQueryBool(r, "verified")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), npos.ListFilters{VerifiedOnly: verified}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, func(n *models.NPO) npoResponse { return newNPOResponse(n) }))
	}
}

func UpdateNPO(svc npos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "npo service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "npoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateNPORequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		npo, err := svc.Update(r.Context(), id, npos.NPOUpdate{
			Name:               req.Name,
			Description:        req.Description,
			Email:              req.Email,
			Website:            req.Website,
			RegistrationNumber: req.RegistrationNumber,
			LedgerAddress:      req.LedgerAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newNPOResponse(npo))
	}
}

func DeleteNPO(svc npos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "npo service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "npoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func VerifyNPO(svc npos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "npo service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "npoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		npo, err := svc.Verify(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newNPOResponse(npo))
	}
}
