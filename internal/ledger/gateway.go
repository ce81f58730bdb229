package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	"github.com/angelmondragon/donorledger-backend/pkg/metrics"
	"github.com/angelmondragon/donorledger-backend/pkg/xrpl"
)

const (
	defaultSubmitTimeout = 20 * time.Second
	defaultQueryTimeout  = 5 * time.Second
	defaultWaitTimeout   = 15 * time.Second
	defaultPollInterval  = time.Second
)

// RPCClient is the subset of the XRPL JSON-RPC client the gateway drives.
type RPCClient interface {
	Submit(ctx context.Context, tx map[string]any, secret string) (*xrpl.SubmitResult, error)
	Tx(ctx context.Context, hash string) (*xrpl.TxResult, error)
	AccountTx(ctx context.Context, account string, limit int) ([]json.RawMessage, error)
}

// Gateway turns donation intents into signed ledger transactions and answers
// status queries. It keeps no state between calls.
type Gateway interface {
	SubmitPayment(ctx context.Context, cred Credential, req PaymentRequest) (*Outcome, error)
	CreateEscrow(ctx context.Context, cred Credential, req EscrowCreateRequest) (*Outcome, error)
	FinishEscrow(ctx context.Context, cred Credential, req EscrowFinishRequest) (*Outcome, error)
	CheckStatus(ctx context.Context, txHash string) enums.LedgerTxStatus
	ListAccountTransactions(ctx context.Context, address string, limit int) []json.RawMessage
}

type PaymentRequest struct {
	Destination string
	Amount      decimal.Decimal
	Memo        *string
}

type EscrowCreateRequest struct {
	Destination string
	Amount      decimal.Decimal
	ReleaseAt   time.Time
	Condition   *string
	Memo        *string
}

type EscrowFinishRequest struct {
	Owner       string
	Sequence    uint32
	Condition   *string
	Fulfillment *string
}

// GatewayParams wires a Gateway. Zero durations fall back to package defaults.
type GatewayParams struct {
	Client        RPCClient
	Logger        *logger.Logger
	Metrics       *metrics.LedgerMetrics
	SubmitTimeout time.Duration
	QueryTimeout  time.Duration
	WaitTimeout   time.Duration
	PollInterval  time.Duration
	Now           func() time.Time
}

type gateway struct {
	client        RPCClient
	logg          *logger.Logger
	metrics       *metrics.LedgerMetrics
	submitTimeout time.Duration
	queryTimeout  time.Duration
	waitTimeout   time.Duration
	pollInterval  time.Duration
	now           func() time.Time
}

func NewGateway(params GatewayParams) (Gateway, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("ledger rpc client required")
	}
	g := &gateway{
		client:        params.Client,
		logg:          params.Logger,
		metrics:       params.Metrics,
		submitTimeout: durationOr(params.SubmitTimeout, defaultSubmitTimeout),
		queryTimeout:  durationOr(params.QueryTimeout, defaultQueryTimeout),
		waitTimeout:   durationOr(params.WaitTimeout, defaultWaitTimeout),
		pollInterval:  durationOr(params.PollInterval, defaultPollInterval),
		now:           params.Now,
	}
	if g.logg == nil {
		g.logg = logger.Nop()
	}
	if g.now == nil {
		g.now = func() time.Time { return time.Now().UTC() }
	}
	return g, nil
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func (g *gateway) SubmitPayment(ctx context.Context, cred Credential, req PaymentRequest) (*Outcome, error) {
	op := enums.LedgerOperationPayment
	drops, err := xrpl.ToDrops(req.Amount)
	if err != nil {
		return nil, &SubmissionError{Operation: op, Err: err}
	}
	tx := map[string]any{
		"TransactionType": xrpl.TxTypePayment,
		"Account":         cred.Address,
		"Destination":     req.Destination,
		"Amount":          drops,
	}
	if req.Memo != nil && *req.Memo != "" {
		tx["Memos"] = []any{xrpl.MemoEntry(*req.Memo)}
	}

	outcome, validated, err := g.submitAndWait(ctx, op, cred, tx)
	if err != nil || validated == nil {
		return outcome, err
	}
	outcome.Status = enums.LedgerOutcomeComplete
	return outcome, nil
}

func (g *gateway) CreateEscrow(ctx context.Context, cred Credential, req EscrowCreateRequest) (*Outcome, error) {
	op := enums.LedgerOperationEscrowCreate
	drops, err := xrpl.ToDrops(req.Amount)
	if err != nil {
		return nil, &SubmissionError{Operation: op, Err: err}
	}
	finishAfter, err := xrpl.ToRippleTime(req.ReleaseAt)
	if err != nil {
		return nil, &SubmissionError{Operation: op, Err: err}
	}
	tx := map[string]any{
		"TransactionType": xrpl.TxTypeEscrowCreate,
		"Account":         cred.Address,
		"Destination":     req.Destination,
		"Amount":          drops,
		"FinishAfter":     finishAfter,
	}
	if req.Condition != nil && *req.Condition != "" {
		tx["Condition"] = *req.Condition
	}
	if req.Memo != nil && *req.Memo != "" {
		tx["Memos"] = []any{xrpl.MemoEntry(*req.Memo)}
	}

	outcome, validated, err := g.submitAndWait(ctx, op, cred, tx)
	if outcome != nil {
		releaseAt := xrpl.FromRippleTime(finishAfter)
		outcome.ReleaseAt = &releaseAt
	}
	if err != nil || validated == nil {
		return outcome, err
	}

	// Funds are locked, not delivered: a successful escrow is still pending.
	outcome.Status = enums.LedgerOutcomePending
	outcome.EscrowID = validated.CreatedEscrowID()
	if outcome.EscrowID == nil {
		ctx = g.logg.WithTxHash(ctx, outcome.TxHash)
		g.logg.Warn(ctx, "escrow object not found in transaction metadata")
	}
	return outcome, nil
}

func (g *gateway) FinishEscrow(ctx context.Context, cred Credential, req EscrowFinishRequest) (*Outcome, error) {
	op := enums.LedgerOperationEscrowFinish
	if req.Owner == "" {
		return nil, &SubmissionError{Operation: op, Err: errors.New("escrow owner is required")}
	}
	tx := map[string]any{
		"TransactionType": xrpl.TxTypeEscrowFinish,
		"Account":         cred.Address,
		"Owner":           req.Owner,
		"OfferSequence":   req.Sequence,
	}
	if req.Condition != nil && *req.Condition != "" {
		tx["Condition"] = *req.Condition
	}
	if req.Fulfillment != nil && *req.Fulfillment != "" {
		tx["Fulfillment"] = *req.Fulfillment
	}

	outcome, validated, err := g.submitAndWait(ctx, op, cred, tx)
	if err != nil || validated == nil {
		return outcome, err
	}
	outcome.Status = enums.LedgerOutcomeComplete
	return outcome, nil
}

// CheckStatus never fails: any error, unknown hash or unvalidated transaction
// reads as pending so callers retry later.
func (g *gateway) CheckStatus(ctx context.Context, txHash string) enums.LedgerTxStatus {
	start := time.Now()
	if !xrpl.IsTxHash(txHash) {
		g.logg.Warn(g.logg.WithTxHash(ctx, txHash), "status check on malformed transaction hash")
		g.metrics.ObserveCall("check_status", "invalid", time.Since(start))
		return enums.LedgerTxPending
	}

	queryCtx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	res, err := g.client.Tx(queryCtx, txHash)
	status := enums.LedgerTxPending
	switch {
	case err != nil:
		if !xrpl.IsRPCError(err, "txnNotFound") {
			g.logg.Warn(g.logg.WithTxHash(ctx, txHash), fmt.Sprintf("status check failed: %v", err))
		}
	case !res.Validated:
	case res.Result() == xrpl.ResultSuccess:
		status = enums.LedgerTxCompleted
	default:
		status = enums.LedgerTxFailed
	}
	g.metrics.ObserveCall("check_status", status.String(), time.Since(start))
	return status
}

func (g *gateway) ListAccountTransactions(ctx context.Context, address string, limit int) []json.RawMessage {
	start := time.Now()
	queryCtx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	txs, err := g.client.AccountTx(queryCtx, address, limit)
	if err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "address", address), fmt.Sprintf("account transactions lookup failed: %v", err))
		g.metrics.ObserveCall("account_tx", "error", time.Since(start))
		return []json.RawMessage{}
	}
	g.metrics.ObserveCall("account_tx", "ok", time.Since(start))
	if txs == nil {
		return []json.RawMessage{}
	}
	return txs
}

// submitAndWait signs and submits tx, then polls until the transaction is
// validated or the wait window closes. A nil validated result with a nil error
// means the outcome is already final (failed) or still unknown (pending).
func (g *gateway) submitAndWait(ctx context.Context, op enums.LedgerOperationKind, cred Credential, tx map[string]any) (*Outcome, *xrpl.TxResult, error) {
	start := time.Now()
	if !cred.Valid() {
		g.metrics.ObserveCall(op.String(), "error", time.Since(start))
		return nil, nil, &SubmissionError{Operation: op, Err: errors.New("signing credential is incomplete")}
	}

	submitCtx, cancel := context.WithTimeout(ctx, g.submitTimeout)
	defer cancel()

	res, err := g.client.Submit(submitCtx, tx, cred.secret)
	if err != nil {
		g.metrics.ObserveCall(op.String(), "error", time.Since(start))
		return nil, nil, &SubmissionError{Operation: op, Err: err}
	}
	if res.TxJSON.Hash == "" {
		g.metrics.ObserveCall(op.String(), "error", time.Since(start))
		return nil, nil, &SubmissionError{Operation: op, Err: fmt.Errorf("node returned no transaction hash (%s)", res.EngineResult)}
	}

	outcome := &Outcome{
		Operation: op,
		TxHash:    res.TxJSON.Hash,
		Sequence:  res.TxJSON.Sequence,
		Timestamp: g.now(),
	}
	if fee, err := xrpl.DropsToXRP(res.TxJSON.Fee); err == nil {
		outcome.Fee = fee
	}

	logCtx := g.logg.WithLedgerOperation(ctx, op.String(), cred.Address)
	logCtx = g.logg.WithFields(logCtx, map[string]any{
		"tx_hash":       outcome.TxHash,
		"engine_result": res.EngineResult,
	})

	if xrpl.IsProvisionalFailure(res.EngineResult) {
		outcome.Status = enums.LedgerOutcomeFailed
		outcome.Error = res.EngineResult
		g.logg.Warn(logCtx, "ledger rejected transaction")
		g.metrics.ObserveCall(op.String(), outcome.Status.String(), time.Since(start))
		return outcome, nil, nil
	}

	validated := g.waitForValidation(ctx, outcome.TxHash)
	if validated == nil {
		outcome.Status = enums.LedgerOutcomePending
		g.logg.Info(logCtx, "transaction not validated within wait window")
		g.metrics.ObserveCall(op.String(), outcome.Status.String(), time.Since(start))
		return outcome, nil, nil
	}

	if validated.Date != 0 {
		outcome.Timestamp = xrpl.FromRippleTime(validated.Date)
	}
	if fee, err := xrpl.DropsToXRP(validated.Fee); err == nil && validated.Fee != "" {
		outcome.Fee = fee
	}
	if result := validated.Result(); result != xrpl.ResultSuccess {
		outcome.Status = enums.LedgerOutcomeFailed
		outcome.Error = result
		g.logg.Warn(g.logg.WithField(logCtx, "result", result), "transaction validated with failure")
		g.metrics.ObserveCall(op.String(), outcome.Status.String(), time.Since(start))
		return outcome, nil, nil
	}

	g.metrics.ObserveCall(op.String(), "validated", time.Since(start))
	return outcome, validated, nil
}

func (g *gateway) waitForValidation(ctx context.Context, hash string) *xrpl.TxResult {
	waitCtx, cancel := context.WithTimeout(ctx, g.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		queryCtx, queryCancel := context.WithTimeout(waitCtx, g.queryTimeout)
		res, err := g.client.Tx(queryCtx, hash)
		queryCancel()
		if err == nil && res != nil && res.Validated {
			return res
		}

		select {
		case <-waitCtx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
