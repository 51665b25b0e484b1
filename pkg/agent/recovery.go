package agent

import (
	"context"
	"errors"

	"github.com/proofrail/proofrail-agent/pkg/ledger"
	"github.com/proofrail/proofrail-agent/pkg/models"
	"github.com/proofrail/proofrail-agent/pkg/store"
)

// recoverFeeClaims finishes jobs this agent executed whose fee is still unpaid. It covers
// claims that failed after execution and executions whose confirmation was not observed.
func (a *Agent) recoverFeeClaims(ctx context.Context, height uint64) {
	entries, err := a.journal.ListByState(ctx, store.StateExecuted, store.StateExecuting, store.StateFailed)
	if err != nil {
		a.logger.Error("Failed to list journal entries for recovery: %v", err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		// Nothing was broadcast, the catalog will pick the job up again if it is still open
		if entry.ExecuteTxID == "" {
			continue
		}

		job, err := a.query.GetJob(ctx, entry.JobID)
		if errors.Is(err, ledger.ErrNotFound) {
			a.abandon(ctx, entry, "job not found")
			continue
		}
		if err != nil {
			a.logger.ErrorWithJob(entry.JobID, "Recovery could not read job: %v", err)
			continue
		}

		switch job.Status {
		case models.JobStatusExecuted:
			if job.FeePaid {
				entry.State = store.StateFeeClaimed
				entry.LastError = ""
				a.putEntry(ctx, entry)
				a.logger.InfoWithJob(entry.JobID, "Fee already paid, closing journal entry")
				continue
			}
			if a.breaker.IsOpen() {
				a.logger.DebugWithJob(entry.JobID, "Circuit open, deferring fee claim")
				continue
			}
			if entry.State != store.StateExecuted {
				entry.State = store.StateExecuted
				a.putEntry(ctx, entry)
			}
			a.logger.NoticeWithJob(entry.JobID, "Recovering unclaimed fee")
			a.claimFee(ctx, entry, height)
		case models.JobStatusCancelled, models.JobStatusExpired:
			a.abandon(ctx, entry, "job "+job.Status.String())
		default:
			// Still open, left to the catalog
		}
	}
}

func (a *Agent) abandon(ctx context.Context, entry store.Entry, reason string) {
	entry.State = store.StateAbandoned
	entry.LastError = reason
	a.putEntry(ctx, entry)
	a.logger.InfoWithJob(entry.JobID, "Abandoned: %s", reason)
}
