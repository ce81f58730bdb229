package xrpl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
)

const (
	defaultHTTPTimeout          = 30 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errEndpointRequired = errors.New("xrpl rpc endpoint is required")

// Client speaks the rippled JSON-RPC protocol over HTTP. It holds no account
// state; secrets passed to Submit are used for that request only.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a JSON-RPC client for the given rippled endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if trimmed == "" {
		return nil, errEndpointRequired
	}
	client := &Client{
		endpoint:   trimmed,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// RPCError is an error result returned by the node for a well-formed request,
// e.g. txnNotFound or actNotFound.
type RPCError struct {
	Method  string
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("xrpl %s: %s: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("xrpl %s: %s", e.Method, e.Code)
}

// IsRPCError reports whether err is an RPCError with the given code.
func IsRPCError(err error, code string) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

// Call performs one JSON-RPC request and decodes result into out. Transport
// failures come back as DEPENDENCY_ERROR; node-reported failures as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "xrpl client not configured")
	}
	payload, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal xrpl request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build xrpl request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrapf(pkgerrors.CodeDependency, err, "execute xrpl %s", method)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), fmt.Sprintf("xrpl %s failed", method))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrapf(pkgerrors.CodeDependency, err, "decode xrpl %s response", method)
	}

	var status rpcStatus
	if err := json.Unmarshal(envelope.Result, &status); err != nil {
		return pkgerrors.Wrapf(pkgerrors.CodeDependency, err, "decode xrpl %s status", method)
	}
	if status.Status == "error" || status.Error != "" {
		return &RPCError{Method: method, Code: status.Error, Message: status.ErrorMessage}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return pkgerrors.Wrapf(pkgerrors.CodeDependency, err, "decode xrpl %s result", method)
	}
	return nil
}

// Submit signs tx with secret on the node and submits it (sign-and-submit mode).
// The returned engine result is preliminary until the transaction is validated.
func (c *Client) Submit(ctx context.Context, tx map[string]any, secret string) (*SubmitResult, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signing secret is required")
	}
	params := map[string]any{
		"tx_json":   tx,
		"secret":    secret,
		"fail_hard": true,
	}
	var out SubmitResult
	if err := c.Call(ctx, "submit", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tx looks up a transaction by hash.
func (c *Client) Tx(ctx context.Context, hash string) (*TxResult, error) {
	var out TxResult
	if err := c.Call(ctx, "tx", map[string]any{"transaction": hash, "binary": false}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccountTx returns the most recent transactions touching account.
func (c *Client) AccountTx(ctx context.Context, account string, limit int) ([]json.RawMessage, error) {
	params := map[string]any{
		"account":          account,
		"ledger_index_min": -1,
		"ledger_index_max": -1,
		"limit":            limit,
	}
	var out struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := c.Call(ctx, "account_tx", params, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}
