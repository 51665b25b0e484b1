package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

func jobIDs(jobs []models.Job) []uint64 {
	ids := make([]uint64, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

func TestCatalogFiltersByAgentAndStatus(t *testing.T) {
	other := openJob(1)
	other.Agent = testOther
	executed := openJob(2)
	executed.Status = models.JobStatusExecuted
	cancelled := openJob(3)
	cancelled.Status = models.JobStatusCancelled

	f := newFakeLedger(openJob(0), other, executed, cancelled, openJob(4))
	c := NewCatalog(f, 100, &logger.EmptyLogger{})

	jobs, err := c.ListOpenJobsForAgent(context.Background(), testAgent)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{0, 4}, jobIDs(jobs))
}

func TestCatalogScanWindow(t *testing.T) {
	var jobs []models.Job
	for id := uint64(0); id < 10; id++ {
		jobs = append(jobs, openJob(id))
	}
	f := newFakeLedger(jobs...)

	found, err := NewCatalog(f, 3, &logger.EmptyLogger{}).ListOpenJobsForAgent(context.Background(), testAgent)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{7, 8, 9}, jobIDs(found))

	found, err = NewCatalog(f, 100, &logger.EmptyLogger{}).ListOpenJobsForAgent(context.Background(), testAgent)
	require.NoError(t, err)
	assert.Len(t, found, 10)
}

func TestCatalogSkipsMissingAndFailingIDs(t *testing.T) {
	f := newFakeLedger(openJob(0), openJob(2), openJob(3))
	f.nextID = 5
	f.jobErrs[2] = errors.New("decode job: missing field expiry-block")

	jobs, err := NewCatalog(f, 100, &logger.EmptyLogger{}).ListOpenJobsForAgent(context.Background(), testAgent)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{0, 3}, jobIDs(jobs))
}

func TestCatalogEmptyAndErrors(t *testing.T) {
	f := newFakeLedger()
	jobs, err := NewCatalog(f, 100, &logger.EmptyLogger{}).ListOpenJobsForAgent(context.Background(), testAgent)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	f.nextIDErr = errors.New("connection refused")
	_, err = NewCatalog(f, 100, &logger.EmptyLogger{}).ListOpenJobsForAgent(context.Background(), testAgent)
	assert.Error(t, err)
}
