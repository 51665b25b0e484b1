// Package events publishes job lifecycle events for dashboards and other
// downstream consumers.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is the kind of job event
type Type string

const (
	TypeRejected        Type = "rejected"
	TypeExecuted        Type = "executed"
	TypeExecutionFailed Type = "execution_failed"
	TypeFeeClaimed      Type = "fee_claimed"
	TypeFeeClaimFailed  Type = "fee_claim_failed"
)

// JobEvent describes one step of a job's processing by this agent
type JobEvent struct {
	ID     string    `json:"id"`
	JobID  uint64    `json:"job_id"`
	Type   Type      `json:"type"`
	Agent  string    `json:"agent"`
	TxID   string    `json:"tx_id,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Height uint64    `json:"height,omitempty"`
	Time   time.Time `json:"time"`
}

// NewJobEvent creates an event with a fresh id and timestamp
func NewJobEvent(eventType Type, jobID uint64, agent string) JobEvent {
	return JobEvent{
		ID:    uuid.NewString(),
		JobID: jobID,
		Type:  eventType,
		Agent: agent,
		Time:  time.Now().UTC(),
	}
}

// WithTx sets the transaction id
func (e JobEvent) WithTx(txID string) JobEvent {
	e.TxID = txID
	return e
}

// WithReason sets the rejection or failure reason
func (e JobEvent) WithReason(reason string) JobEvent {
	e.Reason = reason
	return e
}

// WithHeight sets the ledger height the event was observed at
func (e JobEvent) WithHeight(height uint64) JobEvent {
	e.Height = height
	return e
}

// Publisher delivers job events
type Publisher interface {
	Publish(event JobEvent) error
	Close() error
}

// NoopPublisher drops every event
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

func (NoopPublisher) Publish(JobEvent) error { return nil }
func (NoopPublisher) Close() error           { return nil }
