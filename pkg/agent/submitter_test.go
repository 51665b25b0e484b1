package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofrail/proofrail-agent/pkg/ledger"
	"github.com/proofrail/proofrail-agent/pkg/logger"
)

func newTestSubmitter(f *fakeLedger, maxRetries int) (*Submitter, *fakeSleeper) {
	s := NewSubmitter(f, maxRetries, time.Second, &logger.EmptyLogger{})
	sleeper := &fakeSleeper{}
	s.sleep = sleeper.sleep
	return s, sleeper
}

func claimCall() ledger.ContractCall {
	return ledger.ContractCall{Contract: contract("job-escrow"), Function: "claim-fee"}
}

func TestSubmitterFirstAttempt(t *testing.T) {
	f := newFakeLedger()
	s, sleeper := newTestSubmitter(f, 3)

	txID, err := s.Submit(context.Background(), claimCall())
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	assert.Empty(t, sleeper.waits)
}

func TestSubmitterRetriesWithLinearBackoff(t *testing.T) {
	f := newFakeLedger()
	f.submitErrs = []error{
		errors.New("connection refused"),
		&ledger.RejectionError{Reason: "ConflictingNonceInMempool"},
	}
	s, sleeper := newTestSubmitter(f, 3)

	txID, err := s.Submit(context.Background(), claimCall())
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	assert.Len(t, f.calls(), 1)
}

func TestSubmitterExhausted(t *testing.T) {
	f := newFakeLedger()
	last := &ledger.RejectionError{Reason: "NotEnoughFunds"}
	f.submitErrs = []error{errors.New("timeout"), errors.New("timeout"), last}
	s, sleeper := newTestSubmitter(f, 3)

	_, err := s.Submit(context.Background(), claimCall())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBroadcastExhausted)
	assert.ErrorIs(t, err, ledger.ErrBroadcastRejected)

	var exhausted *BroadcastExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, last, exhausted.Last)

	// No wait after the final attempt
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	assert.Empty(t, f.calls())
}

func TestSubmitterCancelledDuringBackoff(t *testing.T) {
	f := newFakeLedger()
	f.submitErrs = []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}
	s, _ := newTestSubmitter(f, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Submit(ctx, claimCall())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.submitErrs, 2)
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
	assert.NoError(t, sleepCtx(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
