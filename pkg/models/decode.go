package models

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/proofrail/proofrail-agent/pkg/clarity"
)

// ErrDecode is returned when a ledger record does not match the job schema
var ErrDecode = errors.New("invalid job record")

// Tuple field names. Older escrow deployments use the second spelling.
var (
	fieldInputToken      = []string{"input-token", "token-contract"}
	fieldMaxInputAmount  = []string{"max-input-amount", "max-input-usdcx"}
	fieldAgentFeeAmount  = []string{"agent-fee-amount", "agent-fee-usdcx"}
	fieldMinOutputAmount = []string{"min-output-amount", "min-alex-out"}
)

// DecodeJob converts the value returned by get-job into a typed Job.
// The value may still be wrapped in (some ...) or (ok ...).
func DecodeJob(id uint64, v clarity.Value) (Job, error) {
	tuple, found, err := v.Unwrap()
	if err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !found {
		return Job{}, fmt.Errorf("%w: job %d is none", ErrDecode, id)
	}
	if tuple.Type != clarity.TypeTuple {
		return Job{}, fmt.Errorf("%w: expected tuple, got %s", ErrDecode, tuple.Type)
	}

	d := &decoder{tuple: tuple}
	job := Job{
		ID:              id,
		Payer:           d.principal("payer"),
		Agent:           d.principal("agent"),
		InputToken:      d.principal(fieldInputToken...),
		MaxInputAmount:  d.amount(fieldMaxInputAmount...),
		AgentFeeAmount:  d.amount(fieldAgentFeeAmount...),
		MinOutputAmount: d.amount(fieldMinOutputAmount...),
		LockPeriod:      d.number("lock-period"),
		ExpiryBlock:     d.number("expiry-block"),
		CreatedAtBlock:  d.number("created-at-block"),
		FeePaid:         d.flag("fee-paid"),
	}

	status := d.number("status")
	if d.err == nil && status > uint64(JobStatusExpired) {
		d.err = fmt.Errorf("unknown status %d", status)
	}
	job.Status = JobStatus(status)

	job.ExecutedAtBlock = d.optionalUint64("executed-at-block")
	job.ReceiptHash = d.optionalBuffer("receipt-hash")

	if d.err != nil {
		return Job{}, fmt.Errorf("%w: job %d: %v", ErrDecode, id, d.err)
	}
	return job, nil
}

// decoder records the first field error so DecodeJob reads as a flat list
type decoder struct {
	tuple clarity.Value
	err   error
}

func (d *decoder) field(names ...string) (clarity.Value, bool) {
	if d.err != nil {
		return clarity.Value{}, false
	}
	v, ok := d.tuple.Field(names...)
	if !ok {
		d.err = fmt.Errorf("missing field %q", names[0])
	}
	return v, ok
}

func (d *decoder) principal(names ...string) string {
	v, ok := d.field(names...)
	if !ok {
		return ""
	}
	s, err := v.AsPrincipal()
	if err != nil {
		d.err = fmt.Errorf("field %q: %v", names[0], err)
	}
	return s
}

func (d *decoder) amount(names ...string) *big.Int {
	v, ok := d.field(names...)
	if !ok {
		return nil
	}
	n, err := v.AsUInt()
	if err != nil {
		d.err = fmt.Errorf("field %q: %v", names[0], err)
	}
	return n
}

func (d *decoder) number(names ...string) uint64 {
	v, ok := d.field(names...)
	if !ok {
		return 0
	}
	n, err := v.AsUInt64()
	if err != nil {
		d.err = fmt.Errorf("field %q: %v", names[0], err)
	}
	return n
}

func (d *decoder) flag(names ...string) bool {
	v, ok := d.field(names...)
	if !ok {
		return false
	}
	b, err := v.AsBool()
	if err != nil {
		d.err = fmt.Errorf("field %q: %v", names[0], err)
	}
	return b
}

func (d *decoder) optionalUint64(name string) *uint64 {
	if d.err != nil {
		return nil
	}
	v, ok := d.tuple.Field(name)
	if !ok {
		return nil
	}
	inner, found, err := v.Unwrap()
	if err != nil || !found {
		return nil
	}
	n, err := inner.AsUInt64()
	if err != nil {
		d.err = fmt.Errorf("field %q: %v", name, err)
		return nil
	}
	return &n
}

func (d *decoder) optionalBuffer(name string) []byte {
	if d.err != nil {
		return nil
	}
	v, ok := d.tuple.Field(name)
	if !ok {
		return nil
	}
	inner, found, err := v.Unwrap()
	if err != nil || !found {
		return nil
	}
	if inner.Type != clarity.TypeBuffer {
		d.err = fmt.Errorf("field %q: expected buff, got %s", name, inner.Type)
		return nil
	}
	return inner.Bytes
}
