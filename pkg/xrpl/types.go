package xrpl

import (
	"encoding/hex"
	"strings"
)

// ResultSuccess is the only transaction result that means the transaction
// applied as intended.
const ResultSuccess = "tesSUCCESS"

// Transaction types used by the settlement flow.
const (
	TxTypePayment      = "Payment"
	TxTypeEscrowCreate = "EscrowCreate"
	TxTypeEscrowFinish = "EscrowFinish"
)

const ledgerEntryEscrow = "Escrow"

// SubmitResult is the node's answer to a submit call.
type SubmitResult struct {
	EngineResult        string `json:"engine_result"`
	EngineResultCode    int    `json:"engine_result_code"`
	EngineResultMessage string `json:"engine_result_message"`
	Accepted            bool   `json:"accepted"`
	Applied             bool   `json:"applied"`
	TxJSON              struct {
		Hash     string `json:"hash"`
		Account  string `json:"Account"`
		Fee      string `json:"Fee"`
		Sequence uint32 `json:"Sequence"`
	} `json:"tx_json"`
}

// TxResult is the subset of a tx lookup the settlement flow needs.
type TxResult struct {
	Hash        string `json:"hash"`
	Account     string `json:"Account"`
	Fee         string `json:"Fee"`
	Sequence    uint32 `json:"Sequence"`
	Date        uint32 `json:"date"`
	LedgerIndex uint32 `json:"ledger_index"`
	Validated   bool   `json:"validated"`
	Meta        *Meta  `json:"meta"`
}

// Meta carries the validated outcome and the ledger objects the transaction touched.
type Meta struct {
	TransactionResult string         `json:"TransactionResult"`
	AffectedNodes     []AffectedNode `json:"AffectedNodes"`
}

// AffectedNode holds exactly one of the three node kinds.
type AffectedNode struct {
	CreatedNode  *NodeChange `json:"CreatedNode,omitempty"`
	ModifiedNode *NodeChange `json:"ModifiedNode,omitempty"`
	DeletedNode  *NodeChange `json:"DeletedNode,omitempty"`
}

type NodeChange struct {
	LedgerEntryType string `json:"LedgerEntryType"`
	LedgerIndex     string `json:"LedgerIndex"`
}

// Result returns the validated transaction result, or "" when meta is absent.
func (t *TxResult) Result() string {
	if t == nil || t.Meta == nil {
		return ""
	}
	return t.Meta.TransactionResult
}

// CreatedEscrowID returns the ledger index of the Escrow object created by the
// transaction, or nil when the metadata lists none.
func (t *TxResult) CreatedEscrowID() *string {
	if t == nil || t.Meta == nil {
		return nil
	}
	for _, node := range t.Meta.AffectedNodes {
		if node.CreatedNode != nil && node.CreatedNode.LedgerEntryType == ledgerEntryEscrow {
			id := node.CreatedNode.LedgerIndex
			return &id
		}
	}
	return nil
}

// IsProvisionalFailure reports whether a preliminary engine result guarantees
// the transaction will never reach a validated ledger (malformed, failed or
// local-only codes).
func IsProvisionalFailure(engineResult string) bool {
	for _, prefix := range []string{"tem", "tef", "tel"} {
		if strings.HasPrefix(engineResult, prefix) {
			return true
		}
	}
	return false
}

// IsTxHash reports whether s looks like a 256-bit hex transaction hash.
func IsTxHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// MemoEntry builds the Memos element for a plain-text memo.
func MemoEntry(memo string) map[string]any {
	return map[string]any{
		"Memo": map[string]any{
			"MemoData": strings.ToUpper(hex.EncodeToString([]byte(memo))),
		},
	}
}
