package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donorledger-backend/pkg/enums"
)

// Outcome is the normalized result of a submission. TxHash is always set.
// EscrowID is nil when the created escrow object could not be located in the
// transaction metadata; Sequence is what EscrowFinish needs in that case.
type Outcome struct {
	Operation enums.LedgerOperationKind
	TxHash    string
	Status    enums.LedgerOutcomeStatus
	Fee       decimal.Decimal
	Error     string
	Timestamp time.Time
	EscrowID  *string
	Sequence  uint32
	ReleaseAt *time.Time
}

// SubmissionError means no usable outcome exists: the node was unreachable,
// timed out, or rejected the request before producing a transaction hash.
type SubmissionError struct {
	Operation enums.LedgerOperationKind
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s submission failed: %v", e.Operation, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// IsSubmissionError reports whether err wraps a SubmissionError.
func IsSubmissionError(err error) bool {
	var subErr *SubmissionError
	return errors.As(err, &subErr)
}
