package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("http://rippled.test:51234/", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClientSubmitSendsSignAndSubmitRequest(t *testing.T) {
	var captured map[string]any
	var capturedURL string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"result":{"status":"success","engine_result":"tesSUCCESS","engine_result_code":0,"accepted":true,"tx_json":{"hash":"ABC","Fee":"12","Sequence":7}}}`), nil
	})

	tx := map[string]any{"TransactionType": TxTypePayment, "Account": "rSender", "Destination": "rDest", "Amount": "1000000"}
	res, err := client.Submit(context.Background(), tx, "sSecret")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if capturedURL != "http://rippled.test:51234" {
		t.Fatalf("unexpected url %q", capturedURL)
	}
	if captured["method"] != "submit" {
		t.Fatalf("unexpected method %v", captured["method"])
	}
	params := captured["params"].([]any)[0].(map[string]any)
	if params["secret"] != "sSecret" {
		t.Fatalf("secret not forwarded")
	}
	if params["tx_json"].(map[string]any)["Destination"] != "rDest" {
		t.Fatalf("tx_json not forwarded")
	}
	if res.EngineResult != ResultSuccess || res.TxJSON.Hash != "ABC" || res.TxJSON.Sequence != 7 || res.TxJSON.Fee != "12" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClientSubmitRequiresSecret(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if _, err := client.Submit(context.Background(), map[string]any{}, " "); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientCallSurfacesRPCError(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"result":{"status":"error","error":"txnNotFound","error_message":"Transaction not found."}}`), nil
	})

	_, err := client.Tx(context.Background(), strings.Repeat("A", 64))
	if !IsRPCError(err, "txnNotFound") {
		t.Fatalf("expected txnNotFound, got %v", err)
	}
}

func TestClientCallTransportErrorIsDependency(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	_, err := client.AccountTx(context.Background(), "rAccount", 5)
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestClientCallNonOKStatus(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusServiceUnavailable, "overloaded"), nil
	})

	_, err := client.Tx(context.Background(), "ABC")
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestClientTxDecodesMeta(t *testing.T) {
	body := `{"result":{"status":"success","hash":"H1","validated":true,"Sequence":11,"Fee":"10","meta":{"TransactionResult":"tesSUCCESS","AffectedNodes":[
		{"ModifiedNode":{"LedgerEntryType":"AccountRoot","LedgerIndex":"AR1"}},
		{"CreatedNode":{"LedgerEntryType":"Escrow","LedgerIndex":"ESC1"}}]}}}`
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, body), nil
	})

	res, err := client.Tx(context.Background(), "H1")
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if !res.Validated || res.Result() != ResultSuccess {
		t.Fatalf("unexpected tx %+v", res)
	}
	id := res.CreatedEscrowID()
	if id == nil || *id != "ESC1" {
		t.Fatalf("expected escrow id ESC1, got %v", id)
	}
}

func TestClientAccountTxReturnsTransactions(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(body), `"limit":2`) {
			t.Fatalf("limit not forwarded: %s", body)
		}
		return jsonResponse(http.StatusOK, `{"result":{"status":"success","transactions":[{"tx":{"hash":"A"}},{"tx":{"hash":"B"}}]}}`), nil
	})

	txs, err := client.AccountTx(context.Background(), "rAccount", 2)
	if err != nil {
		t.Fatalf("account_tx: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
