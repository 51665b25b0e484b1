// Package store keeps a local journal of the agent's executions so that fee
// claims survive restarts and are never sent twice.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the journal has no entry for a job
var ErrNotFound = errors.New("journal entry not found")

// State is the position of a job in the agent's execution pipeline
type State string

const (
	StateExecuting  State = "executing"
	StateExecuted   State = "executed"
	StateFeeClaimed State = "fee_claimed"
	StateFailed     State = "failed"
	// StateAbandoned marks entries that need no further action
	StateAbandoned State = "abandoned"
)

// Entry is the journal record of one job
type Entry struct {
	JobID       uint64    `json:"job_id"`
	State       State     `json:"state"`
	ExecuteTxID string    `json:"execute_tx_id,omitempty"`
	ClaimTxID   string    `json:"claim_tx_id,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Journal persists entries keyed by job id
type Journal interface {
	Get(ctx context.Context, jobID uint64) (Entry, error)
	Upsert(ctx context.Context, entry Entry) error
	ListByState(ctx context.Context, states ...State) ([]Entry, error)
	Close() error
}
