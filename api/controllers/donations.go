package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donorledger-backend/api/responses"
	"github.com/angelmondragon/donorledger-backend/api/validators"
	"github.com/angelmondragon/donorledger-backend/internal/donations"
	"github.com/angelmondragon/donorledger-backend/internal/ledger"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
)

type initiateDonationRequest struct {
	DonorID       *string     `json:"donor_id" validate:"omitempty,uuid"`
	NPOID         string      `json:"npo_id" validate:"required,uuid"`
	CampaignID    *string     `json:"campaign_id" validate:"omitempty,uuid"`
	Amount        json.Number `json:"amount" validate:"required,positive_decimal"`
	UseEscrow     bool        `json:"use_escrow"`
	Message       *string     `json:"message" validate:"omitempty,max=500"`
	IsAnonymous   bool        `json:"is_anonymous"`
	SourceAddress *string     `json:"source_address" validate:"omitempty,xrpl_address"`
	SourceSecret  *string     `json:"source_secret" validate:"omitempty,min=1"`
}

type finishEscrowRequest struct {
	SourceAddress *string `json:"source_address" validate:"omitempty,xrpl_address"`
	SourceSecret  *string `json:"source_secret" validate:"omitempty,min=1"`
	Condition     *string `json:"condition" validate:"omitempty,hexadecimal"`
	Fulfillment   *string `json:"fulfillment" validate:"omitempty,hexadecimal"`
}

// InitiateDonation submits a new donation to the ledger and returns it with
// whatever status the ledger reported before the wait window closed.
func InitiateDonation(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		var req initiateDonationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		donation, err := svc.Initiate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newDonationResponse(donation))
	}
}

func (req initiateDonationRequest) toInput() (donations.InitiateInput, error) {
	npoID, err := uuid.Parse(req.NPOID)
	if err != nil {
		return donations.InitiateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid npo_id")
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		return donations.InitiateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	cred, err := credentialFrom(req.SourceAddress, req.SourceSecret)
	if err != nil {
		return donations.InitiateInput{}, err
	}

	input := donations.InitiateInput{
		NPOID:       npoID,
		Amount:      amount,
		UseEscrow:   req.UseEscrow,
		Message:     trimmedOrNil(req.Message),
		IsAnonymous: req.IsAnonymous,
		Credential:  cred,
	}
	if input.DonorID, err = optionalUUID(req.DonorID, "donor_id"); err != nil {
		return donations.InitiateInput{}, err
	}
	if input.CampaignID, err = optionalUUID(req.CampaignID, "campaign_id"); err != nil {
		return donations.InitiateInput{}, err
	}
	return input, nil
}

// GetDonation returns a donation, reconciling it against the ledger first when
// it is still pending.
func GetDonation(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "donationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		donation, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDonationResponse(donation))
	}
}

func ListDonations(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		filters, err := donationFilters(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, func(d *models.Donation) donationResponse { return newDonationResponse(d) }))
	}
}

func ListUserDonations(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := donationFilters(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForUser(r.Context(), userID, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, func(d *models.Donation) donationResponse { return newDonationResponse(d) }))
	}
}

// DeleteDonation removes a donation and reverses its campaign contribution.
func DeleteDonation(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "donationId")
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

func FinishDonationEscrow(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "donationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req finishEscrowRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cred, err := credentialFrom(req.SourceAddress, req.SourceSecret)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.FinishEscrow(r.Context(), donations.FinishEscrowInput{
			DonationID:  id,
			Credential:  cred,
			Condition:   trimmedOrNil(req.Condition),
			Fulfillment: trimmedOrNil(req.Fulfillment),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, escrowFinishResponse{
			Donation: newDonationResponse(result.Donation),
			Outcome:  newOutcomeResponse(result.Outcome),
		})
	}
}

func donationFilters(r *http.Request, withDonor bool) (donations.ListFilters, error) {
	var (
		filters donations.ListFilters
		err     error
	)
	if filters.NPOID, err = validators.ParseQueryUUID(r, "npo_id"); err != nil {
		return filters, err
	}
	if filters.CampaignID, err = validators.ParseQueryUUID(r, "campaign_id"); err != nil {
		return filters, err
	}
	if withDonor {
		if filters.DonorID, err = validators.ParseQueryUUID(r, "donor_id"); err != nil {
			return filters, err
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, parseErr := enums.ParseDonationStatus(raw)
		if parseErr != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status filter").WithDetails(map[string]any{"field": "status"})
		}
		filters.Status = &status
	}
	return filters, nil
}

// credentialFrom builds a per-request signing credential. Both halves must be
// supplied together; neither means the platform account signs.
func credentialFrom(address, secret *string) (*ledger.Credential, error) {
	addr := trimmedOrNil(address)
	sec := trimmedOrNil(secret)
	switch {
	case addr == nil && sec == nil:
		return nil, nil
	case addr == nil || sec == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_address and source_secret must be provided together")
	}
	cred := ledger.NewCredential(*addr, *sec)
	return &cred, nil
}

func optionalUUID(raw *string, field string) (*uuid.UUID, error) {
	value := trimmedOrNil(raw)
	if value == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	return &id, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
