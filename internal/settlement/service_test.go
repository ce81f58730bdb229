package settlement

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/donorledger-backend/internal/ledger"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
)

type fakeGateway struct {
	payments     []ledger.PaymentRequest
	escrows      []ledger.EscrowCreateRequest
	finishes     []ledger.EscrowFinishRequest
	checkCalls   atomic.Int32
	checkRelease chan struct{}
	checkCtxErr  error
	status       enums.LedgerTxStatus
}

func (f *fakeGateway) SubmitPayment(_ context.Context, _ ledger.Credential, req ledger.PaymentRequest) (*ledger.Outcome, error) {
	f.payments = append(f.payments, req)
	return &ledger.Outcome{Operation: enums.LedgerOperationPayment, TxHash: "PAY", Status: enums.LedgerOutcomeComplete}, nil
}

func (f *fakeGateway) CreateEscrow(_ context.Context, _ ledger.Credential, req ledger.EscrowCreateRequest) (*ledger.Outcome, error) {
	f.escrows = append(f.escrows, req)
	return &ledger.Outcome{Operation: enums.LedgerOperationEscrowCreate, TxHash: "ESC", Status: enums.LedgerOutcomePending}, nil
}

func (f *fakeGateway) FinishEscrow(_ context.Context, _ ledger.Credential, req ledger.EscrowFinishRequest) (*ledger.Outcome, error) {
	f.finishes = append(f.finishes, req)
	return &ledger.Outcome{Operation: enums.LedgerOperationEscrowFinish, TxHash: "FIN", Status: enums.LedgerOutcomeComplete}, nil
}

func (f *fakeGateway) CheckStatus(ctx context.Context, _ string) enums.LedgerTxStatus {
	f.checkCalls.Add(1)
	f.checkCtxErr = ctx.Err()
	if f.checkRelease != nil {
		<-f.checkRelease
	}
	return f.status
}

func (f *fakeGateway) ListAccountTransactions(context.Context, string, int) []json.RawMessage {
	return []json.RawMessage{json.RawMessage(`{}`)}
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, gw ledger.Gateway, duration time.Duration) Service {
	t.Helper()
	svc, err := NewService(gw, duration, func() time.Time { return fixedNow })
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresGateway(t *testing.T) {
	_, err := NewService(nil, 0, nil)
	assert.Error(t, err)
}

func TestInitiateDirectPayment(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, 0)

	memo := "thanks"
	out, err := svc.Initiate(context.Background(), InitiateInput{
		Destination: "rDest",
		Amount:      decimal.NewFromInt(100),
		Memo:        &memo,
	})
	require.NoError(t, err)
	assert.Equal(t, "PAY", out.TxHash)
	require.Len(t, gw.payments, 1)
	assert.Empty(t, gw.escrows)
	assert.Equal(t, &memo, gw.payments[0].Memo)
}

func TestInitiateEscrowUsesThirtyDayRelease(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, 0)

	out, err := svc.Initiate(context.Background(), InitiateInput{
		Destination: "rDest",
		Amount:      decimal.NewFromInt(100),
		UseEscrow:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerOutcomePending, out.Status)
	require.Len(t, gw.escrows, 1)
	assert.Equal(t, fixedNow.Add(30*24*time.Hour), gw.escrows[0].ReleaseAt)
}

func TestInitiateEscrowForwardsMemo(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, 0)

	memo := "in memory of Ada"
	_, err := svc.Initiate(context.Background(), InitiateInput{
		Destination: "rDest",
		Amount:      decimal.NewFromInt(100),
		UseEscrow:   true,
		Memo:        &memo,
	})
	require.NoError(t, err)
	require.Len(t, gw.escrows, 1)
	assert.Equal(t, &memo, gw.escrows[0].Memo)
}

func TestInitiateEscrowHonorsConfiguredDuration(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, time.Hour)

	_, err := svc.Initiate(context.Background(), InitiateInput{Destination: "rDest", Amount: decimal.NewFromInt(1), UseEscrow: true})
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(time.Hour), gw.escrows[0].ReleaseAt)
}

func TestPollStatusPassesThrough(t *testing.T) {
	gw := &fakeGateway{status: enums.LedgerTxCompleted}
	svc := newTestService(t, gw, 0)

	assert.Equal(t, enums.LedgerTxCompleted, svc.PollStatus(context.Background(), "HASH"))
	assert.Equal(t, enums.LedgerTxCompleted, svc.PollStatus(context.Background(), "HASH"))
	assert.Equal(t, int32(2), gw.checkCalls.Load())
}

func TestPollStatusIgnoresCallerCancellation(t *testing.T) {
	gw := &fakeGateway{status: enums.LedgerTxCompleted}
	svc := newTestService(t, gw, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, enums.LedgerTxCompleted, svc.PollStatus(ctx, "HASH"))
	assert.NoError(t, gw.checkCtxErr)
}

func TestPollStatusCoalescesConcurrentCalls(t *testing.T) {
	gw := &fakeGateway{status: enums.LedgerTxPending, checkRelease: make(chan struct{})}
	svc := newTestService(t, gw, 0)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan enums.LedgerTxStatus, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.PollStatus(context.Background(), "HASH")
		}()
	}

	require.Eventually(t, func() bool { return gw.checkCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gw.checkRelease)
	wg.Wait()
	close(results)

	for status := range results {
		assert.Equal(t, enums.LedgerTxPending, status)
	}
	assert.LessOrEqual(t, gw.checkCalls.Load(), int32(callers))
}

func TestFinishEscrowForwardsOwnerAndSequence(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, 0)

	out, err := svc.FinishEscrow(context.Background(), FinishInput{Owner: "rOwner", Sequence: 77})
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerOutcomeComplete, out.Status)
	require.Len(t, gw.finishes, 1)
	assert.Equal(t, "rOwner", gw.finishes[0].Owner)
	assert.Equal(t, uint32(77), gw.finishes[0].Sequence)
}

func TestAccountTransactionsPassThrough(t *testing.T) {
	svc := newTestService(t, &fakeGateway{}, 0)
	assert.Len(t, svc.AccountTransactions(context.Background(), "rAddr", 5), 1)
}
