package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

func newTestWaiter(f *fakeLedger, maxWait uint64) (*ConfirmationWaiter, *fakeSleeper) {
	w := NewConfirmationWaiter(f, f, maxWait, 5*time.Second, &logger.EmptyLogger{})
	sleeper := &fakeSleeper{}
	w.sleep = sleeper.sleep
	return w, sleeper
}

func TestAwaitConfirmationOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  models.TxStatus
		want    Outcome
		wantErr error
	}{
		{name: "success", status: models.TxStatusSuccess, want: Confirmed},
		{name: "abort by response", status: models.TxStatusAbortByResponse, want: Aborted, wantErr: ErrTxAborted},
		{name: "abort by post condition", status: models.TxStatusAbortByPostCondition, want: Aborted, wantErr: ErrTxAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeLedger()
			f.defaultStatus = tt.status
			w, _ := newTestWaiter(f, 10)

			outcome, err := w.AwaitConfirmation(context.Background(), "0x01")
			assert.Equal(t, tt.want, outcome)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAwaitConfirmationKeepsPolling(t *testing.T) {
	f := newFakeLedger()
	f.defaultStatus = models.TxStatusPending
	f.heightStep = 1
	w, sleeper := newTestWaiter(f, 10)

	// Pending for a few polls, then mined
	w.sleep = func(ctx context.Context, d time.Duration) error {
		_ = sleeper.sleep(ctx, d)
		if len(sleeper.waits) == 3 {
			f.mu.Lock()
			f.statuses["0x01"] = models.TxStatusSuccess
			f.mu.Unlock()
		}
		return nil
	}

	outcome, err := w.AwaitConfirmation(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Equal(t, Confirmed, outcome)
	assert.Len(t, sleeper.waits, 3)
	assert.Equal(t, 5*time.Second, sleeper.waits[0])
}

func TestAwaitConfirmationTimesOut(t *testing.T) {
	f := newFakeLedger()
	f.defaultStatus = models.TxStatusPending
	f.heightStep = 4
	w, _ := newTestWaiter(f, 10)

	outcome, err := w.AwaitConfirmation(context.Background(), "0x01")
	assert.Equal(t, TimedOut, outcome)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	// Heights 1004, 1008 are polled; 1012 is past the deadline of 1010
	assert.Equal(t, 2, f.statusCalls)
}

func TestAwaitConfirmationTimeoutBeforeStatus(t *testing.T) {
	f := newFakeLedger()
	f.heightStep = 11
	w, _ := newTestWaiter(f, 10)

	outcome, err := w.AwaitConfirmation(context.Background(), "0x01")
	assert.Equal(t, TimedOut, outcome)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Zero(t, f.statusCalls)
}

func TestAwaitConfirmationHeightFailures(t *testing.T) {
	t.Run("start height", func(t *testing.T) {
		f := newFakeLedger()
		f.failHeights[1] = true
		w, _ := newTestWaiter(f, 10)

		outcome, err := w.AwaitConfirmation(context.Background(), "0x01")
		require.Error(t, err)
		assert.Equal(t, Interrupted, outcome)
		assert.NotErrorIs(t, err, ErrConfirmationTimeout)
		assert.Zero(t, f.statusCalls)
	})

	t.Run("during polling", func(t *testing.T) {
		f := newFakeLedger()
		f.failHeights[2] = true
		f.failHeights[3] = true
		w, sleeper := newTestWaiter(f, 10)

		outcome, err := w.AwaitConfirmation(context.Background(), "0x01")
		require.NoError(t, err)
		assert.Equal(t, Confirmed, outcome)
		assert.Len(t, sleeper.waits, 2)
		assert.Equal(t, 1, f.statusCalls)
	})
}

func TestAwaitConfirmationCancelled(t *testing.T) {
	f := newFakeLedger()
	f.defaultStatus = models.TxStatusPending
	w, _ := newTestWaiter(f, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := w.AwaitConfirmation(ctx, "0x01")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Interrupted, outcome)
	assert.Equal(t, "interrupted", outcome.String())
}
