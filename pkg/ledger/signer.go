package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/proofrail/proofrail-agent/pkg/clarity"
)

// Transaction defaults applied to every contract call
const (
	AnchorModeAny          = "any"
	PostConditionModeAllow = "allow"
)

// UnsignedCall is everything a signer needs to build a contract-call transaction
type UnsignedCall struct {
	Network           string   `json:"network"`
	Sender            string   `json:"sender"`
	ContractAddress   string   `json:"contract_address"`
	ContractName      string   `json:"contract_name"`
	FunctionName      string   `json:"function_name"`
	FunctionArgs      []string `json:"function_args"`
	Nonce             uint64   `json:"nonce"`
	Fee               uint64   `json:"fee"`
	AnchorMode        string   `json:"anchor_mode"`
	PostConditionMode string   `json:"post_condition_mode"`
}

// NewUnsignedCall serializes the call arguments and fills in the transaction envelope
func NewUnsignedCall(network, sender string, call ContractCall, nonce, fee uint64) (UnsignedCall, error) {
	args := make([]string, 0, len(call.Args))
	for i, arg := range call.Args {
		encoded, err := clarity.EncodeHex(arg)
		if err != nil {
			return UnsignedCall{}, fmt.Errorf("failed to encode argument %d of %s: %w", i, call, err)
		}
		args = append(args, encoded)
	}
	return UnsignedCall{
		Network:           network,
		Sender:            sender,
		ContractAddress:   call.Contract.Address,
		ContractName:      call.Contract.Name,
		FunctionName:      call.Function,
		FunctionArgs:      args,
		Nonce:             nonce,
		Fee:               fee,
		AnchorMode:        AnchorModeAny,
		PostConditionMode: PostConditionModeAllow,
	}, nil
}

// Signer turns an unsigned contract call into a serialized signed transaction
type Signer interface {
	SignContractCall(ctx context.Context, call UnsignedCall) ([]byte, error)
}

// RemoteSigner delegates signing to an external service that holds the key
type RemoteSigner struct {
	endpoint   string
	httpClient *http.Client
}

type signResponse struct {
	Tx    string `json:"tx"`
	Error string `json:"error,omitempty"`
}

// NewRemoteSigner creates a signer that posts calls to <endpoint>/v1/sign
func NewRemoteSigner(endpoint string) *RemoteSigner {
	return &RemoteSigner{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: createHTTPClient(),
	}
}

// SignContractCall implements Signer
func (s *RemoteSigner) SignContractCall(ctx context.Context, call UnsignedCall) ([]byte, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/sign", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sign request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach signer: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read signer response: %v", err)
	}

	var signed signResponse
	if err := json.Unmarshal(bodyBytes, &signed); err != nil {
		return nil, fmt.Errorf("failed to decode signer response (status %d): %v", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signer returned status %d: %s", resp.StatusCode, signed.Error)
	}
	if signed.Tx == "" {
		return nil, fmt.Errorf("signer returned an empty transaction")
	}

	raw, err := hexutil.Decode(ensureHexPrefix(signed.Tx))
	if err != nil {
		return nil, fmt.Errorf("signer returned invalid hex: %v", err)
	}
	return raw, nil
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
