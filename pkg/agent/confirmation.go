package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/proofrail/proofrail-agent/pkg/ledger"
	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/metrics"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

// Outcome is the final state of a confirmation wait
type Outcome int

const (
	Confirmed Outcome = iota
	Aborted
	TimedOut
	// Interrupted means the wait ended without a verdict on the transaction
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Aborted:
		return "aborted"
	case TimedOut:
		return "timed_out"
	case Interrupted:
		return "interrupted"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ConfirmationWaiter polls a transaction until it is mined or the block budget runs out
type ConfirmationWaiter struct {
	query         ledger.QueryPort
	tx            ledger.TxPort
	maxWaitBlocks uint64
	pollInterval  time.Duration
	sleep         Sleeper
	logger        logger.Logger
}

// NewConfirmationWaiter creates a waiter giving up after maxWaitBlocks blocks
func NewConfirmationWaiter(
	query ledger.QueryPort,
	tx ledger.TxPort,
	maxWaitBlocks uint64,
	pollInterval time.Duration,
	log logger.Logger,
) *ConfirmationWaiter {
	return &ConfirmationWaiter{
		query:         query,
		tx:            tx,
		maxWaitBlocks: maxWaitBlocks,
		pollInterval:  pollInterval,
		sleep:         sleepCtx,
		logger:        log,
	}
}

// AwaitConfirmation returns Confirmed on success, Aborted with ErrTxAborted when the
// transaction failed on chain and TimedOut with ErrConfirmationTimeout past the deadline.
// Cancellation and an unreadable start height return Interrupted.
func (w *ConfirmationWaiter) AwaitConfirmation(ctx context.Context, txID string) (Outcome, error) {
	startHeight, err := w.query.GetCurrentHeight(ctx)
	if err != nil {
		return Interrupted, fmt.Errorf("failed to read start height: %w", err)
	}
	deadline := startHeight + w.maxWaitBlocks

	for {
		height, err := w.query.GetCurrentHeight(ctx)
		if err != nil {
			w.logger.Debug("Height unavailable while waiting for %s: %v", txID, err)
		} else {
			if height > deadline {
				w.logger.Error("Transaction %s not confirmed by block %d", txID, deadline)
				return TimedOut, fmt.Errorf("%w: %s after %d blocks", ErrConfirmationTimeout, txID, height-startHeight)
			}

			status, err := w.tx.GetTxStatus(ctx, txID)
			switch {
			case err != nil:
				w.logger.Debug("Status of %s unavailable: %v", txID, err)
			case status == models.TxStatusSuccess:
				metrics.ConfirmationBlocks.Observe(float64(height - startHeight))
				return Confirmed, nil
			case status.IsAborted():
				return Aborted, &TxAbortedError{TxID: txID, Status: status}
			}
		}

		if err := w.sleep(ctx, w.pollInterval); err != nil {
			return Interrupted, err
		}
	}
}
