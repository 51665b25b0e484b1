package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proofrail/proofrail-agent/pkg/clarity"
	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

// ClientConfig holds the settings of a Hiro API client
type ClientConfig struct {
	Endpoint string
	Network  string
	Sender   string
	Escrow   models.ContractID
	TxFee    uint64
}

// Client talks to a Stacks node through the Hiro API and implements QueryPort and TxPort
type Client struct {
	endpoint   string
	network    string
	sender     string
	escrow     models.ContractID
	fee        uint64
	signer     Signer
	nonces     *NonceManager
	httpClient *http.Client
	logger     logger.Logger
}

var (
	_ QueryPort   = (*Client)(nil)
	_ TxPort      = (*Client)(nil)
	_ NonceSource = (*Client)(nil)
)

type readOnlyRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

type readOnlyResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause"`
}

type infoResponse struct {
	StacksTipHeight uint64 `json:"stacks_tip_height"`
}

type noncesResponse struct {
	PossibleNextNonce uint64 `json:"possible_next_nonce"`
}

type broadcastError struct {
	Error      string          `json:"error"`
	Reason     string          `json:"reason"`
	ReasonData json.RawMessage `json:"reason_data,omitempty"`
}

type txResponse struct {
	TxID     string `json:"tx_id"`
	TxStatus string `json:"tx_status"`
}

// NewClient creates a new Hiro API client
func NewClient(cfg ClientConfig, signer Signer, nonces *NonceManager, log logger.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		network:    cfg.Network,
		sender:     cfg.Sender,
		escrow:     cfg.Escrow,
		fee:        cfg.TxFee,
		signer:     signer,
		nonces:     nonces,
		httpClient: createHTTPClient(),
		logger:     log,
	}
}

// Sender returns the identity that reads and submits through this client
func (c *Client) Sender() string {
	return c.sender
}

// CallReadOnly evaluates a read-only contract function and returns its result
func (c *Client) CallReadOnly(ctx context.Context, contract models.ContractID, function string, args ...clarity.Value) (clarity.Value, error) {
	encoded := make([]string, 0, len(args))
	for i, arg := range args {
		h, err := clarity.EncodeHex(arg)
		if err != nil {
			return clarity.Value{}, fmt.Errorf("failed to encode argument %d: %w", i, err)
		}
		encoded = append(encoded, h)
	}

	path := fmt.Sprintf("/v2/contracts/call-read/%s/%s/%s",
		url.PathEscape(contract.Address), url.PathEscape(contract.Name), url.PathEscape(function))

	var resp readOnlyResponse
	if _, err := c.doJSON(ctx, http.MethodPost, path, readOnlyRequest{Sender: c.sender, Arguments: encoded}, &resp); err != nil {
		return clarity.Value{}, fmt.Errorf("read-only call %s::%s failed: %w", contract, function, err)
	}
	if !resp.Okay {
		return clarity.Value{}, fmt.Errorf("read-only call %s::%s failed: %s", contract, function, resp.Cause)
	}

	v, err := clarity.DecodeHex(resp.Result)
	if err != nil {
		return clarity.Value{}, fmt.Errorf("read-only call %s::%s returned an undecodable result: %w", contract, function, err)
	}
	return v, nil
}

// GetJob implements QueryPort
func (c *Client) GetJob(ctx context.Context, id uint64) (models.Job, error) {
	v, err := c.CallReadOnly(ctx, c.escrow, FnGetJob, clarity.UInt(id))
	if err != nil {
		return models.Job{}, err
	}

	inner, found, err := v.Unwrap()
	if err != nil {
		return models.Job{}, fmt.Errorf("get-job %d: %w", id, err)
	}
	if !found {
		return models.Job{}, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	return models.DecodeJob(id, inner)
}

// GetNextJobID implements QueryPort
func (c *Client) GetNextJobID(ctx context.Context) (uint64, error) {
	v, err := c.CallReadOnly(ctx, c.escrow, FnGetNextJobID)
	if err != nil {
		return 0, err
	}

	inner, found, err := v.Unwrap()
	if err != nil {
		return 0, fmt.Errorf("get-next-job-id: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("get-next-job-id returned none")
	}
	return inner.AsUInt64()
}

// GetCurrentHeight implements QueryPort
func (c *Client) GetCurrentHeight(ctx context.Context) (uint64, error) {
	var info infoResponse
	if _, err := c.doJSON(ctx, http.MethodGet, "/v2/info", nil, &info); err != nil {
		return 0, fmt.Errorf("failed to fetch chain info: %w", err)
	}
	return info.StacksTipHeight, nil
}

// GetPossibleNextNonce implements NonceSource
func (c *Client) GetPossibleNextNonce(ctx context.Context, address string) (uint64, error) {
	var nonces noncesResponse
	path := fmt.Sprintf("/extended/v1/address/%s/nonces", url.PathEscape(address))
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &nonces); err != nil {
		return 0, fmt.Errorf("failed to fetch nonces for %s: %w", address, err)
	}
	return nonces.PossibleNextNonce, nil
}

// Submit implements TxPort: it takes the identity's submission slot, allocates a nonce,
// signs and broadcasts once. The nonce is released if any step fails.
func (c *Client) Submit(ctx context.Context, call ContractCall) (string, error) {
	release, err := c.nonces.Acquire(ctx, c.sender)
	if err != nil {
		return "", err
	}
	defer release()

	nonce, err := c.nonces.GetNonce(ctx, c.sender, c)
	if err != nil {
		return "", err
	}

	txID, err := c.signAndBroadcast(ctx, call, nonce)
	if err != nil {
		c.nonces.ReleaseNonce(c.sender, nonce)
		return "", err
	}

	c.nonces.TrackTransaction(c.sender, txID, nonce)
	c.logger.Debug("Broadcast %s with nonce %d: %s", call, nonce, txID)
	return txID, nil
}

func (c *Client) signAndBroadcast(ctx context.Context, call ContractCall, nonce uint64) (string, error) {
	unsigned, err := NewUnsignedCall(c.network, c.sender, call, nonce, c.fee)
	if err != nil {
		return "", err
	}
	raw, err := c.signer.SignContractCall(ctx, unsigned)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", call, err)
	}
	return c.Broadcast(ctx, raw)
}

// Broadcast posts a signed transaction and returns its id
func (c *Client) Broadcast(ctx context.Context, raw []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v2/transactions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to create broadcast request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	defer c.closeBody(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read broadcast response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		var rejected broadcastError
		if err := json.Unmarshal(bodyBytes, &rejected); err != nil || (rejected.Error == "" && rejected.Reason == "") {
			return "", fmt.Errorf("unexpected broadcast status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
		}
		reason := rejected.Reason
		if reason == "" {
			reason = rejected.Error
		}
		return "", &RejectionError{Reason: reason, Detail: string(rejected.ReasonData)}
	}

	var txID string
	if err := json.Unmarshal(bodyBytes, &txID); err != nil {
		return "", fmt.Errorf("failed to decode broadcast response: %v, body: %s", err, string(bodyBytes))
	}
	if txID == "" {
		return "", fmt.Errorf("broadcast returned an empty transaction id")
	}
	return ensureHexPrefix(txID), nil
}

// GetTxStatus implements TxPort. Terminal statuses are reported to the nonce manager.
func (c *Client) GetTxStatus(ctx context.Context, txID string) (models.TxStatus, error) {
	var tx txResponse
	status, err := c.doJSON(ctx, http.MethodGet, "/extended/v1/tx/"+url.PathEscape(txID), nil, &tx)
	if status == http.StatusNotFound {
		return models.TxStatusPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch transaction %s: %w", txID, err)
	}

	txStatus := models.TxStatus(tx.TxStatus)
	switch {
	case txStatus == models.TxStatusSuccess || txStatus.IsAborted():
		c.nonces.MarkTransactionConfirmed(c.sender, txID)
	case txStatus.IsDropped():
		c.nonces.MarkTransactionFailed(c.sender, txID)
	}
	return txStatus, nil
}

// ExpireStaleTransactions drops tracked transactions that have been pending too long so the
// next submission resyncs its nonce with the ledger. It returns the number expired.
func (c *Client) ExpireStaleTransactions() int {
	stale := c.nonces.FindTimeoutTransactions(c.sender)
	for _, tx := range stale {
		c.logger.Error("Transaction %s with nonce %d pending since %s, resyncing nonce", tx.TxID, tx.Nonce, tx.CreatedAt.Format(time.RFC3339))
	}
	return len(stale)
}

// doJSON performs a request with an optional JSON body and decodes a JSON response into out.
// The HTTP status is returned even when the request fails.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %v", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %v", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer c.closeBody(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %v, body: %s", err, string(bodyBytes))
	}
	return resp.StatusCode, nil
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Failed to close response body: %v", err)
	}
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
