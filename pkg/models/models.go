package models

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/proofrail/proofrail-agent/pkg/clarity"
)

// JobStatus is the lifecycle state of a job as stored by the escrow contract
type JobStatus uint8

const (
	JobStatusOpen JobStatus = iota
	JobStatusExecuted
	JobStatusCancelled
	JobStatusExpired
)

// String returns the status name
func (s JobStatus) String() string {
	switch s {
	case JobStatusOpen:
		return "OPEN"
	case JobStatusExecuted:
		return "EXECUTED"
	case JobStatusCancelled:
		return "CANCELLED"
	case JobStatusExpired:
		return "EXPIRED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

// Job represents a delegated job recorded on the ledger
type Job struct {
	ID              uint64    `json:"id"`
	Payer           string    `json:"payer"`
	Agent           string    `json:"agent"`
	InputToken      string    `json:"input_token"`
	MaxInputAmount  *big.Int  `json:"max_input_amount"`
	AgentFeeAmount  *big.Int  `json:"agent_fee_amount"`
	MinOutputAmount *big.Int  `json:"min_output_amount"`
	LockPeriod      uint64    `json:"lock_period"`
	ExpiryBlock     uint64    `json:"expiry_block"`
	CreatedAtBlock  uint64    `json:"created_at_block"`
	Status          JobStatus `json:"status"`
	FeePaid         bool      `json:"fee_paid"`
	ExecutedAtBlock *uint64   `json:"executed_at_block,omitempty"`
	ReceiptHash     []byte    `json:"receipt_hash,omitempty"`
}

// IsExecutable reports whether the job can still be executed at the given height
func (j Job) IsExecutable(height uint64) bool {
	return j.Status == JobStatusOpen && height < j.ExpiryBlock
}

// BlocksUntilExpiry is the signed distance to the expiry block, negative once expired
func (j Job) BlocksUntilExpiry(height uint64) int64 {
	return int64(j.ExpiryBlock) - int64(height)
}

// TxStatus is the status of a broadcast transaction as reported by the ledger API
type TxStatus string

const (
	TxStatusPending              TxStatus = "pending"
	TxStatusSuccess              TxStatus = "success"
	TxStatusAbortByResponse      TxStatus = "abort_by_response"
	TxStatusAbortByPostCondition TxStatus = "abort_by_post_condition"
)

// IsAborted reports whether the transaction was mined but failed
func (s TxStatus) IsAborted() bool {
	return s == TxStatusAbortByResponse || s == TxStatusAbortByPostCondition
}

// IsDropped reports whether the node discarded the transaction without mining it
func (s TxStatus) IsDropped() bool {
	return strings.HasPrefix(string(s), "dropped_")
}

// ContractID identifies a deployed contract as ADDRESS.name
type ContractID struct {
	Address string
	Name    string
}

// ParseContractID splits and validates a contract principal string
func ParseContractID(s string) (ContractID, error) {
	addr, name, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || addr == "" || name == "" {
		return ContractID{}, fmt.Errorf("invalid contract principal: %s", s)
	}
	if !clarity.IsValidAddress(addr) {
		return ContractID{}, fmt.Errorf("invalid contract deployer address: %s", addr)
	}
	return ContractID{Address: addr, Name: name}, nil
}

// String returns ADDRESS.name
func (c ContractID) String() string {
	return c.Address + "." + c.Name
}

// IsZero reports whether the contract id is unset
func (c ContractID) IsZero() bool {
	return c.Address == "" && c.Name == ""
}

// Principal converts the contract id into a Clarity contract principal
func (c ContractID) Principal() (clarity.Principal, error) {
	return clarity.ParsePrincipal(c.String())
}
