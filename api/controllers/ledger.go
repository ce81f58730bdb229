package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/donorledger-backend/api/responses"
	"github.com/angelmondragon/donorledger-backend/api/validators"
	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	"github.com/angelmondragon/donorledger-backend/pkg/xrpl"
)

const (
	defaultAccountTxLimit = 20
	maxAccountTxLimit     = 200
)

type accountTransactionLister interface {
	ListAccountTransactions(ctx context.Context, address string, limit int) []json.RawMessage
}

// AccountTransactions proxies the ledger's account history. Ledger failures
// yield an empty list rather than an error.
func AccountTransactions(gw accountTransactionLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gw == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger gateway unavailable"))
			return
		}

		address := strings.TrimSpace(chi.URLParam(r, "address"))
		if !xrpl.IsClassicAddress(address) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger address").
				WithDetails(map[string]any{"field": "address"}))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultAccountTxLimit, 1, maxAccountTxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txs := gw.ListAccountTransactions(r.Context(), address, limit)
		if txs == nil {
			txs = []json.RawMessage{}
		}
		responses.WriteSuccess(w, map[string]any{
			"address":      address,
			"transactions": txs,
		})
	}
}
