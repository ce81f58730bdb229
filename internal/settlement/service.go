package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/donorledger-backend/internal/ledger"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
)

// DefaultEscrowDuration is how long escrowed donations stay locked before the
// recipient may finish them.
const DefaultEscrowDuration = 30 * 24 * time.Hour

// Service translates donation intents into ledger operations.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*ledger.Outcome, error)
	PollStatus(ctx context.Context, txHash string) enums.LedgerTxStatus
	FinishEscrow(ctx context.Context, input FinishInput) (*ledger.Outcome, error)
	AccountTransactions(ctx context.Context, address string, limit int) []json.RawMessage
}

// InitiateInput describes a single settlement. Credential signs on behalf of
// the donor's source account.
type InitiateInput struct {
	Credential  ledger.Credential
	Destination string
	Amount      decimal.Decimal
	UseEscrow   bool
	Memo        *string
}

type FinishInput struct {
	Credential  ledger.Credential
	Owner       string
	Sequence    uint32
	Condition   *string
	Fulfillment *string
}

type service struct {
	gateway        ledger.Gateway
	escrowDuration time.Duration
	now            func() time.Time
	polls          singleflight.Group
}

// NewService wires a settlement service around the provided gateway. A zero
// escrowDuration selects DefaultEscrowDuration.
func NewService(gateway ledger.Gateway, escrowDuration time.Duration, now func() time.Time) (Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("ledger gateway required")
	}
	if escrowDuration <= 0 {
		escrowDuration = DefaultEscrowDuration
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{gateway: gateway, escrowDuration: escrowDuration, now: now}, nil
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*ledger.Outcome, error) {
	if !input.UseEscrow {
		return s.gateway.SubmitPayment(ctx, input.Credential, ledger.PaymentRequest{
			Destination: input.Destination,
			Amount:      input.Amount,
			Memo:        input.Memo,
		})
	}
	return s.gateway.CreateEscrow(ctx, input.Credential, ledger.EscrowCreateRequest{
		Destination: input.Destination,
		Amount:      input.Amount,
		ReleaseAt:   s.now().Add(s.escrowDuration),
		Memo:        input.Memo,
	})
}

// PollStatus coalesces concurrent polls for the same hash into one ledger
// query. The shared query ignores the first caller's cancellation so other
// waiters still get an answer; the gateway bounds it with its own timeout.
func (s *service) PollStatus(ctx context.Context, txHash string) enums.LedgerTxStatus {
	shared := context.WithoutCancel(ctx)
	v, _, _ := s.polls.Do(txHash, func() (any, error) {
		return s.gateway.CheckStatus(shared, txHash), nil
	})
	status, ok := v.(enums.LedgerTxStatus)
	if !ok {
		return enums.LedgerTxPending
	}
	return status
}

func (s *service) FinishEscrow(ctx context.Context, input FinishInput) (*ledger.Outcome, error) {
	return s.gateway.FinishEscrow(ctx, input.Credential, ledger.EscrowFinishRequest{
		Owner:       input.Owner,
		Sequence:    input.Sequence,
		Condition:   input.Condition,
		Fulfillment: input.Fulfillment,
	})
}

func (s *service) AccountTransactions(ctx context.Context, address string, limit int) []json.RawMessage {
	return s.gateway.ListAccountTransactions(ctx, address, limit)
}
