package donations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/internal/ledger"
	"github.com/angelmondragon/donorledger-backend/internal/settlement"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	"github.com/angelmondragon/donorledger-backend/pkg/metrics"
	"github.com/angelmondragon/donorledger-backend/pkg/outbox"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
	"github.com/angelmondragon/donorledger-backend/pkg/xrpl"
)

// MaxMessageLength bounds the free-text note attached to a donation.
const MaxMessageLength = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns the donation lifecycle: pending until the ledger reports a
// terminal result, then completed or failed forever.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*models.Donation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*DonationList, error)
	ListForUser(ctx context.Context, userID uuid.UUID, filters ListFilters, params pagination.Params) (*DonationList, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FinishEscrow(ctx context.Context, input FinishEscrowInput) (*EscrowFinishResult, error)
	ReconcilePending(ctx context.Context, limit int) (ReconcileSummary, error)
}

// ServiceParams wires the donation service. PlatformCredential signs for
// requests that do not carry their own credential; leave it zero to require one.
type ServiceParams struct {
	Repo               Repository
	Campaigns          campaignReader
	NPOs               npoReader
	Users              userReader
	Settlement         settlement.Service
	Tx                 txRunner
	Outbox             outboxPublisher
	Logger             *logger.Logger
	Metrics            *metrics.LedgerMetrics
	PlatformCredential ledger.Credential
	Now                func() time.Time
}

type service struct {
	repo       Repository
	campaigns  campaignReader
	npos       npoReader
	users      userReader
	settlement settlement.Service
	tx         txRunner
	outbox     outboxPublisher
	logg       *logger.Logger
	metrics    *metrics.LedgerMetrics
	platform   ledger.Credential
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("donations repository required")
	case params.Campaigns == nil:
		return nil, fmt.Errorf("campaign reader required")
	case params.NPOs == nil:
		return nil, fmt.Errorf("npo reader required")
	case params.Users == nil:
		return nil, fmt.Errorf("user reader required")
	case params.Settlement == nil:
		return nil, fmt.Errorf("settlement service required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	s := &service{
		repo:       params.Repo,
		campaigns:  params.Campaigns,
		npos:       params.NPOs,
		users:      params.Users,
		settlement: params.Settlement,
		tx:         params.Tx,
		outbox:     params.Outbox,
		logg:       params.Logger,
		metrics:    params.Metrics,
		platform:   params.PlatformCredential,
		now:        params.Now,
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// InitiateInput is a validated donation intent. Credential overrides the
// platform signing account for this request only.
type InitiateInput struct {
	DonorID     *uuid.UUID
	NPOID       uuid.UUID
	CampaignID  *uuid.UUID
	Amount      decimal.Decimal
	UseEscrow   bool
	Message     *string
	IsAnonymous bool
	Credential  *ledger.Credential
}

type FinishEscrowInput struct {
	DonationID  uuid.UUID
	Credential  *ledger.Credential
	Condition   *string
	Fulfillment *string
}

// EscrowFinishResult pairs the donation after the attempt with the ledger's
// answer, so callers can see a failed finish that left the donation pending.
type EscrowFinishResult struct {
	Donation *models.Donation
	Outcome  *ledger.Outcome
}

type DonationList = pagination.Page[models.Donation]

// ReconcileSummary counts what one sweep observed.
type ReconcileSummary struct {
	Checked   int
	Completed int
	Failed    int
	Pending   int
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*models.Donation, error) {
	if err := validateInitiate(input); err != nil {
		return nil, err
	}

	npo, err := s.npos.FindByID(ctx, input.NPOID)
	if err != nil {
		return nil, lookupError(err, "npo")
	}
	if input.CampaignID != nil {
		if err := s.checkCampaign(ctx, *input.CampaignID, npo.ID); err != nil {
			return nil, err
		}
	}

	donorID := input.DonorID
	if input.IsAnonymous {
		donorID = nil
	}
	if donorID != nil {
		if _, err := s.users.FindByID(ctx, *donorID); err != nil {
			return nil, lookupError(err, "donor")
		}
	}

	cred, err := s.credentialFor(input.Credential)
	if err != nil {
		return nil, err
	}

	donation := &models.Donation{
		Amount:      input.Amount,
		DonorID:     donorID,
		NPOID:       npo.ID,
		CampaignID:  input.CampaignID,
		Message:     input.Message,
		IsAnonymous: input.IsAnonymous,
		UseEscrow:   input.UseEscrow,
		Status:      enums.DonationStatusPending,
	}
	if err := s.repo.Create(ctx, donation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create donation")
	}
	ctx = s.logg.WithDonationID(ctx, donation.ID.String())

	// No transaction or lock is held across the ledger round trip.
	outcome, err := s.settlement.Initiate(ctx, settlement.InitiateInput{
		Credential:  cred,
		Destination: npo.LedgerAddress,
		Amount:      input.Amount,
		UseEscrow:   input.UseEscrow,
		Memo:        input.Message,
	})
	if err != nil {
		s.removeUnsubmitted(ctx, donation.ID, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeSettlementFailed, err, "donation could not be submitted to the ledger")
	}

	ctx = s.logg.WithTxHash(ctx, outcome.TxHash)
	update := SettlementUpdate{TxHash: &outcome.TxHash, EscrowID: outcome.EscrowID, ReleaseAt: outcome.ReleaseAt}
	if input.UseEscrow {
		owner, seq := cred.Address, outcome.Sequence
		update.EscrowOwner = &owner
		update.EscrowSequence = &seq
	}
	if err := s.recordSettlement(ctx, donation.ID, update); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record settlement")
	}
	s.logg.Info(s.logg.WithField(ctx, "outcome", outcome.Status.String()), "donation submitted to ledger")

	switch outcome.Status {
	case enums.LedgerOutcomeComplete:
		if _, err := s.complete(ctx, donation.ID); err != nil {
			return nil, err
		}
	case enums.LedgerOutcomeFailed:
		if _, err := s.fail(ctx, donation.ID, failureCode(outcome.Error)); err != nil {
			return nil, err
		}
	case enums.LedgerOutcomePending:
	}

	return s.load(ctx, donation.ID)
}

// Get returns the donation, first absorbing any new ledger state when it is
// still pending with a submitted transaction.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	donation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := s.reconcile(ctx, donation)
	if err != nil {
		return nil, err
	}
	if changed == "" {
		return donation, nil
	}
	return s.load(ctx, id)
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*DonationList, error) {
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, listError(err)
	}
	page := pagination.Build(rows, params.Limit, donationCursor)
	return &page, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, filters ListFilters, params pagination.Params) (*DonationList, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, lookupError(err, "user")
	}
	filters.DonorID = &userID
	return s.List(ctx, filters, params)
}

// deleteAttempts bounds how often Delete re-reads a donation whose status
// changed between its read and its delete.
const deleteAttempts = 3

var errStatusMoved = errors.New("donation status changed during delete")

// Delete removes a donation. A completed donation gives its amount back to the
// campaign; the NPO lifetime total is left as is.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	var err error
	for attempt := 0; attempt < deleteAttempts; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.deleteOnce(ctx, s.repo.WithTx(tx), id)
		})
		if !errors.Is(err, errStatusMoved) {
			return err
		}
		s.logg.Debug(s.logg.WithDonationID(ctx, id.String()), "donation changed under delete; retrying")
	}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "donation kept changing while being deleted")
}

// deleteOnce decides the campaign reversal from a locked read and deletes only
// if the status it saw still holds, so a concurrent completion is never lost.
func (s *service) deleteOnce(ctx context.Context, repo Repository, id uuid.UUID) error {
	donation, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return lookupError(err, "donation")
	}
	deleted, err := repo.DeleteInStatus(ctx, id, donation.Status)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete donation")
	}
	if !deleted {
		return errStatusMoved
	}
	if donation.Status == enums.DonationStatusCompleted && donation.CampaignID != nil {
		if err := repo.AddToCampaign(ctx, *donation.CampaignID, donation.Amount.Neg()); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse campaign total")
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"donation_id": id.String(),
		"status":      donation.Status.String(),
	}), "donation deleted")
	return nil
}

func (s *service) FinishEscrow(ctx context.Context, input FinishEscrowInput) (*EscrowFinishResult, error) {
	donation, err := s.load(ctx, input.DonationID)
	if err != nil {
		return nil, err
	}
	if !donation.UseEscrow || donation.EscrowOwner == nil || donation.EscrowSeq == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "donation has no escrow to finish")
	}
	if donation.Status == enums.DonationStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow for a failed donation cannot be finished")
	}
	cred, err := s.credentialFor(input.Credential)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithDonationID(ctx, donation.ID.String())
	outcome, err := s.settlement.FinishEscrow(ctx, settlement.FinishInput{
		Credential:  cred,
		Owner:       *donation.EscrowOwner,
		Sequence:    *donation.EscrowSeq,
		Condition:   input.Condition,
		Fulfillment: input.Fulfillment,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeSettlementFailed, err, "escrow finish could not be submitted")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"finish_tx_hash": outcome.TxHash, "outcome": outcome.Status.String()})
	switch outcome.Status {
	case enums.LedgerOutcomeComplete:
		if _, err := s.complete(ctx, donation.ID); err != nil {
			return nil, err
		}
		s.logg.Info(logCtx, "escrow finished")
	case enums.LedgerOutcomeFailed:
		s.logg.Warn(s.logg.WithField(logCtx, "result", outcome.Error), "escrow finish rejected; donation stays pending")
	case enums.LedgerOutcomePending:
		s.logg.Info(logCtx, "escrow finish not yet validated")
	}

	updated, err := s.load(ctx, donation.ID)
	if err != nil {
		return nil, err
	}
	return &EscrowFinishResult{Donation: updated, Outcome: outcome}, nil
}

// ReconcilePending polls up to limit pending donations, oldest first. Errors
// on individual donations are collected and do not stop the sweep.
func (s *service) ReconcilePending(ctx context.Context, limit int) (ReconcileSummary, error) {
	var summary ReconcileSummary
	rows, err := s.repo.ListPendingWithHash(ctx, limit)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending donations")
	}

	var errs error
	for i := range rows {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		summary.Checked++
		to, err := s.reconcile(ctx, &rows[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("donation %s: %w", rows[i].ID, err))
			continue
		}
		switch to {
		case enums.DonationStatusCompleted:
			summary.Completed++
		case enums.DonationStatusFailed:
			summary.Failed++
		default:
			summary.Pending++
		}
	}
	return summary, errs
}

// reconcile asks the ledger about a pending donation and applies a terminal
// answer. It returns the status the donation moved to, or "" for no change.
func (s *service) reconcile(ctx context.Context, donation *models.Donation) (enums.DonationStatus, error) {
	if donation.Status != enums.DonationStatusPending || donation.TxHash == nil {
		return "", nil
	}
	ctx = s.logg.WithTxHash(s.logg.WithDonationID(ctx, donation.ID.String()), *donation.TxHash)

	switch status := s.settlement.PollStatus(ctx, *donation.TxHash); status {
	case enums.LedgerTxCompleted:
		applied, err := s.complete(ctx, donation.ID)
		if err != nil || !applied {
			return "", err
		}
		return enums.DonationStatusCompleted, nil
	case enums.LedgerTxFailed:
		applied, err := s.fail(ctx, donation.ID, nil)
		if err != nil || !applied {
			return "", err
		}
		return enums.DonationStatusFailed, nil
	case enums.LedgerTxPending:
		s.logg.Debug(ctx, "donation still pending on ledger")
		return "", nil
	default:
		return "", fmt.Errorf("unexpected ledger status %q", status)
	}
}

// complete is the only writer of the campaign and NPO accumulators. The
// status compare-and-set makes it apply at most once per donation.
func (s *service) complete(ctx context.Context, id uuid.UUID) (bool, error) {
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		donation, err := repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "donation")
		}
		if donation.Status != enums.DonationStatusPending {
			return nil
		}

		completedAt := s.now().UTC()
		ok, err := repo.TransitionFromPending(ctx, id, Transition{To: enums.DonationStatusCompleted, CompletedAt: &completedAt})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete donation")
		}
		if !ok {
			return nil
		}

		if donation.CampaignID != nil {
			if err := repo.AddToCampaign(ctx, *donation.CampaignID, donation.Amount); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit campaign")
			}
		}
		if err := repo.AddToNPO(ctx, donation.NPOID, donation.Amount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit npo")
		}

		txHash := ""
		if donation.TxHash != nil {
			txHash = *donation.TxHash
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDonationCompleted,
			AggregateType: enums.AggregateDonation,
			AggregateID:   donation.ID,
			OccurredAt:    completedAt,
			Data:          completedEvent(donation, txHash, completedAt),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit donation completed")
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.metrics.IncTransition(enums.DonationStatusCompleted.String())
		s.logg.Info(ctx, "donation completed")
	}
	return applied, nil
}

func (s *service) fail(ctx context.Context, id uuid.UUID, code *string) (bool, error) {
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		donation, err := repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "donation")
		}
		ok, err := repo.TransitionFromPending(ctx, id, Transition{To: enums.DonationStatusFailed, FailureCode: code})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail donation")
		}
		if !ok {
			return nil
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDonationFailed,
			AggregateType: enums.AggregateDonation,
			AggregateID:   donation.ID,
			Data:          failedEvent(donation, code),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit donation failed")
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.metrics.IncTransition(enums.DonationStatusFailed.String())
		logCtx := ctx
		if code != nil {
			logCtx = s.logg.WithField(ctx, "failure_code", *code)
		}
		s.logg.Warn(logCtx, "donation failed on ledger")
	}
	return applied, nil
}

// recordAttempts bounds how often the settlement stamp is retried once the
// ledger has accepted a transaction.
const recordAttempts = 3

// recordSettlement stamps the ledger outcome on the donation. The ledger has
// already accepted the transaction, so the write outlives the request context;
// without the hash the reconciler can never settle the donation.
func (s *service) recordSettlement(ctx context.Context, id uuid.UUID, update SettlementUpdate) error {
	writeCtx := context.WithoutCancel(ctx)
	var errs error
	attempts := 0
	for attempts < recordAttempts {
		attempts++
		err := s.repo.ApplySettlement(writeCtx, id, update)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
	}
	s.logg.Error(s.logg.WithField(writeCtx, "attempts", attempts),
		"ledger accepted donation but its transaction could not be recorded", errs)
	return errs
}

// removeUnsubmitted is the compensating delete for a submission that never
// produced a ledger outcome. It runs even if the request context is gone.
func (s *service) removeUnsubmitted(ctx context.Context, id uuid.UUID, cause error) {
	cleanupCtx := context.WithoutCancel(ctx)
	if err := s.repo.Delete(cleanupCtx, id); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logg.Error(cleanupCtx, "compensating delete failed; donation left without transaction", multierr.Append(cause, err))
		return
	}
	s.logg.Warn(s.logg.WithField(cleanupCtx, "cause", cause.Error()), "ledger submission failed; donation removed")
}

func (s *service) checkCampaign(ctx context.Context, campaignID, npoID uuid.UUID) error {
	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		return lookupError(err, "campaign")
	}
	if campaign.NPOID != npoID {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "campaign does not belong to npo")
	}
	now := s.now()
	switch {
	case !campaign.IsActive:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "campaign is not active")
	case campaign.EndDate != nil && !now.Before(*campaign.EndDate):
		return pkgerrors.New(pkgerrors.CodeStateConflict, "campaign has ended")
	case now.Before(campaign.StartDate):
		return pkgerrors.New(pkgerrors.CodeStateConflict, "campaign has not started")
	}
	return nil
}

func (s *service) credentialFor(override *ledger.Credential) (ledger.Credential, error) {
	if override != nil && override.Valid() {
		return *override, nil
	}
	if s.platform.Valid() {
		return s.platform, nil
	}
	return ledger.Credential{}, pkgerrors.New(pkgerrors.CodeValidation, "source account credential required").
		WithDetails(map[string]any{"fields": []string{"source_address", "source_secret"}})
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	donation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "donation")
	}
	return donation, nil
}

func validateInitiate(input InitiateInput) error {
	if input.NPOID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "npo id is required")
	}
	if _, err := xrpl.ToDrops(input.Amount); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid donation amount")
	}
	if input.Message != nil && len([]rune(*input.Message)) > MaxMessageLength {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "message must be at most %d characters", MaxMessageLength)
	}
	return nil
}

func failureCode(code string) *string {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	return &code
}

func lookupError(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}

func listError(err error) error {
	if strings.Contains(err.Error(), "cursor") {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list donations")
}

func donationCursor(d models.Donation) pagination.Cursor {
	return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
}
