package agent

import (
	"context"
	"time"

	"github.com/proofrail/proofrail-agent/pkg/ledger"
	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/metrics"
)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepCtx is the default Sleeper
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Submitter broadcasts contract calls with linear backoff between attempts
type Submitter struct {
	tx         ledger.TxPort
	maxRetries int
	baseDelay  time.Duration
	sleep      Sleeper
	logger     logger.Logger
}

// NewSubmitter creates a submitter making up to maxRetries attempts per call
func NewSubmitter(tx ledger.TxPort, maxRetries int, baseDelay time.Duration, log logger.Logger) *Submitter {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Submitter{
		tx:         tx,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepCtx,
		logger:     log,
	}
}

// Submit returns the id of the first accepted broadcast. After failed attempt k it waits
// k times the base delay.
func (s *Submitter) Submit(ctx context.Context, call ledger.ContractCall) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		txID, err := s.tx.Submit(ctx, call)
		if err == nil {
			metrics.BroadcastAttempts.WithLabelValues("success").Inc()
			s.logger.Info("Broadcast %s on attempt %d: %s", call, attempt, txID)
			return txID, nil
		}

		metrics.BroadcastAttempts.WithLabelValues("failure").Inc()
		lastErr = err
		s.logger.Error("Broadcast %s failed (attempt %d/%d): %v", call, attempt, s.maxRetries, err)

		if attempt < s.maxRetries {
			if err := s.sleep(ctx, time.Duration(attempt)*s.baseDelay); err != nil {
				return "", err
			}
		}
	}
	return "", &BroadcastExhaustedError{Attempts: s.maxRetries, Last: lastErr}
}
