// Package ledger talks to the Stacks chain through the Hiro HTTP API: read-only
// contract calls, chain height, nonces, transaction broadcast and status.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/proofrail/proofrail-agent/pkg/clarity"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

var (
	// ErrNotFound is returned when the ledger has no record for the requested id
	ErrNotFound = errors.New("not found")

	// ErrBroadcastRejected is returned when the node refuses a transaction
	ErrBroadcastRejected = errors.New("broadcast rejected")
)

// Read-only escrow functions
const (
	FnGetJob       = "get-job"
	FnGetNextJobID = "get-next-job-id"
)

// ContractCall is a public function call to be signed and broadcast
type ContractCall struct {
	Contract models.ContractID
	Function string
	Args     []clarity.Value
}

// String renders the call as contract::function for logs
func (c ContractCall) String() string {
	return fmt.Sprintf("%s::%s", c.Contract.String(), c.Function)
}

// QueryPort is the read-only view of the ledger used to discover jobs
type QueryPort interface {
	// GetJob returns the job with the given id, or ErrNotFound
	GetJob(ctx context.Context, id uint64) (models.Job, error)
	// GetNextJobID returns the id that the next created job will receive
	GetNextJobID(ctx context.Context) (uint64, error)
	// GetCurrentHeight returns the current chain tip height
	GetCurrentHeight(ctx context.Context) (uint64, error)
}

// TxPort submits transactions and reports their status
type TxPort interface {
	// Submit signs and broadcasts a single contract call and returns its transaction id
	Submit(ctx context.Context, call ContractCall) (string, error)
	// GetTxStatus returns the status of a broadcast transaction; unknown transactions are pending
	GetTxStatus(ctx context.Context, txID string) (models.TxStatus, error)
}

// RejectionError carries the node's reason for refusing a transaction
type RejectionError struct {
	Reason string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("transaction rejected: %s (%s)", e.Reason, e.Detail)
	}
	return fmt.Sprintf("transaction rejected: %s", e.Reason)
}

// Unwrap lets errors.Is match ErrBroadcastRejected
func (e *RejectionError) Unwrap() error {
	return ErrBroadcastRejected
}
