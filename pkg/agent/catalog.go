package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/proofrail/proofrail-agent/pkg/ledger"
	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

// Catalog discovers open jobs assigned to an agent by scanning the most recent job ids
type Catalog struct {
	query  ledger.QueryPort
	window uint64
	logger logger.Logger
}

// NewCatalog creates a catalog scanning at most window ids back from the next job id
func NewCatalog(query ledger.QueryPort, window uint64, log logger.Logger) *Catalog {
	return &Catalog{query: query, window: window, logger: log}
}

// ListOpenJobsForAgent returns the open jobs assigned to agent within the scan window.
// Jobs older than the window are not visible.
func (c *Catalog) ListOpenJobsForAgent(ctx context.Context, agent string) ([]models.Job, error) {
	next, err := c.query.GetNextJobID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get next job id: %w", err)
	}
	if next == 0 {
		return nil, nil
	}

	var start uint64
	if next > c.window {
		start = next - c.window
	}

	var jobs []models.Job
	for id := start; id < next; id++ {
		if err := ctx.Err(); err != nil {
			return jobs, err
		}

		job, err := c.query.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				c.logger.DebugWithJob(id, "Job not found")
			} else {
				c.logger.ErrorWithJob(id, "Failed to fetch job: %v", err)
			}
			continue
		}

		if job.Agent == agent && job.Status == models.JobStatusOpen {
			jobs = append(jobs, job)
		}
	}

	c.logger.Debug("Scanned job ids [%d, %d), %d open for %s", start, next, len(jobs), agent)
	return jobs, nil
}
