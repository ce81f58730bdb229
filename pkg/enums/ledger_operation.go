package enums

import "fmt"

// LedgerOperationKind names the transaction type submitted for a settlement.
type LedgerOperationKind string

const (
	LedgerOperationPayment      LedgerOperationKind = "payment"
	LedgerOperationEscrowCreate LedgerOperationKind = "escrow_create"
	LedgerOperationEscrowFinish LedgerOperationKind = "escrow_finish"
)

var validLedgerOperationKinds = []LedgerOperationKind{
	LedgerOperationPayment,
	LedgerOperationEscrowCreate,
	LedgerOperationEscrowFinish,
}

func (k LedgerOperationKind) String() string {
	return string(k)
}

func (k LedgerOperationKind) IsValid() bool {
	for _, candidate := range validLedgerOperationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// LedgerOutcomeStatus is the normalized result of one submission attempt.
// "complete" means funds moved; "pending" means the transaction succeeded but
// funds are not yet released (escrow) or validation was not observed in time.
type LedgerOutcomeStatus string

const (
	LedgerOutcomeComplete LedgerOutcomeStatus = "complete"
	LedgerOutcomePending  LedgerOutcomeStatus = "pending"
	LedgerOutcomeFailed   LedgerOutcomeStatus = "failed"
)

func (s LedgerOutcomeStatus) String() string {
	return string(s)
}

// LedgerTxStatus is the tri-state answer of a transaction status query.
type LedgerTxStatus string

const (
	LedgerTxPending   LedgerTxStatus = "pending"
	LedgerTxCompleted LedgerTxStatus = "completed"
	LedgerTxFailed    LedgerTxStatus = "failed"
)

var validLedgerTxStatuses = []LedgerTxStatus{
	LedgerTxPending,
	LedgerTxCompleted,
	LedgerTxFailed,
}

func (s LedgerTxStatus) String() string {
	return string(s)
}

func (s LedgerTxStatus) IsValid() bool {
	for _, candidate := range validLedgerTxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLedgerTxStatus converts raw input into a LedgerTxStatus.
func ParseLedgerTxStatus(value string) (LedgerTxStatus, error) {
	for _, candidate := range validLedgerTxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger tx status %q", value)
}
