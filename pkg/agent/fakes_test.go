package agent

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/proofrail/proofrail-agent/pkg/config"
	"github.com/proofrail/proofrail-agent/pkg/ledger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

const (
	testAgent    = "ST1THWXQ8368SDN2MJGE4BMDKMCHZ2GSVTSQDA7QF"
	testOther    = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"
	testDeployer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
)

func contract(name string) models.ContractID {
	return models.ContractID{Address: testDeployer, Name: name}
}

func testConfig() *config.Config {
	return &config.Config{
		Network:      config.Network{Name: "testnet"},
		AgentAddress: testAgent,
		Contracts: config.ContractsConfig{
			JobEscrow:   contract("job-escrow"),
			JobRouter:   contract("job-router"),
			InputToken:  contract("token-sbtc"),
			OutputToken: contract("token-stx"),
			SwapHelper:  contract("swap-helper"),
			Staking:     contract("staking"),
		},
		PollInterval:         time.Millisecond,
		MinFeeAmount:         big.NewInt(10000),
		ScanWindow:           100,
		ExpiryMarginBlocks:   5,
		MaxRetries:           3,
		RetryBaseDelay:       time.Second,
		ConfirmMaxWaitBlocks: 10,
		ConfirmPollInterval:  5 * time.Second,
		SwapFactor:           big.NewInt(100000000),
		PriceValidation:      config.PriceValidationConfig{FailurePolicy: config.FailOpen},
	}
}

func openJob(id uint64) models.Job {
	return models.Job{
		ID:              id,
		Payer:           testOther,
		Agent:           testAgent,
		InputToken:      contract("token-sbtc").String(),
		MaxInputAmount:  big.NewInt(1000000),
		AgentFeeAmount:  big.NewInt(50000),
		MinOutputAmount: big.NewInt(1),
		ExpiryBlock:     1100,
		CreatedAtBlock:  900,
		Status:          models.JobStatusOpen,
	}
}

// fakeLedger implements ledger.QueryPort and ledger.TxPort in memory
type fakeLedger struct {
	mu sync.Mutex

	jobs      map[uint64]models.Job
	jobErrs   map[uint64]error
	nextID    uint64
	nextIDErr error

	height      uint64
	heightStep  uint64
	heightCalls int
	// failHeights lists 1-based GetCurrentHeight calls that fail
	failHeights map[int]bool

	submitErrs []error
	submitted  []ledger.ContractCall
	txCount    int

	statuses      map[string]models.TxStatus
	defaultStatus models.TxStatus
	statusCalls   int

	// onSubmit runs after a successful submission, e.g. to apply its effect
	onSubmit func(f *fakeLedger, call ledger.ContractCall)
}

var (
	_ ledger.QueryPort = (*fakeLedger)(nil)
	_ ledger.TxPort    = (*fakeLedger)(nil)
)

func newFakeLedger(jobs ...models.Job) *fakeLedger {
	f := &fakeLedger{
		jobs:          make(map[uint64]models.Job),
		jobErrs:       make(map[uint64]error),
		statuses:      make(map[string]models.TxStatus),
		failHeights:   make(map[int]bool),
		height:        1000,
		defaultStatus: models.TxStatusSuccess,
	}
	for _, job := range jobs {
		f.jobs[job.ID] = job
		if job.ID >= f.nextID {
			f.nextID = job.ID + 1
		}
	}
	return f
}

func (f *fakeLedger) GetJob(_ context.Context, id uint64) (models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.jobErrs[id]; err != nil {
		return models.Job{}, err
	}
	job, ok := f.jobs[id]
	if !ok {
		return models.Job{}, ledger.ErrNotFound
	}
	return job, nil
}

func (f *fakeLedger) GetNextJobID(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextID, f.nextIDErr
}

func (f *fakeLedger) GetCurrentHeight(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heightCalls++
	if f.failHeights[f.heightCalls] {
		return 0, fmt.Errorf("unexpected status code: 503")
	}
	h := f.height
	f.height += f.heightStep
	return h, nil
}

func (f *fakeLedger) Submit(_ context.Context, call ledger.ContractCall) (string, error) {
	f.mu.Lock()
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		f.mu.Unlock()
		return "", err
	}
	f.txCount++
	txID := fmt.Sprintf("0x%064x", f.txCount)
	f.submitted = append(f.submitted, call)
	hook := f.onSubmit
	f.mu.Unlock()

	if hook != nil {
		hook(f, call)
	}
	return txID, nil
}

func (f *fakeLedger) GetTxStatus(_ context.Context, txID string) (models.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if status, ok := f.statuses[txID]; ok {
		return status, nil
	}
	return f.defaultStatus, nil
}

func (f *fakeLedger) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.submitted))
	for _, c := range f.submitted {
		out = append(out, c.Function)
	}
	return out
}

func (f *fakeLedger) updateJob(id uint64, fn func(*models.Job)) {
	job := f.jobs[id]
	fn(&job)
	f.jobs[id] = job
}

// applyCalls mutates jobs the way the contracts would on a successful call
func applyCalls(f *fakeLedger, call ledger.ContractCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := jobIDArg(call)
	if !ok {
		return
	}
	switch call.Function {
	case "execute-swap-stake-job":
		f.updateJob(id, func(j *models.Job) { j.Status = models.JobStatusExecuted })
	case "claim-fee":
		f.updateJob(id, func(j *models.Job) { j.FeePaid = true })
	}
}

func jobIDArg(call ledger.ContractCall) (uint64, bool) {
	if len(call.Args) == 0 || call.Args[0].Int == nil {
		return 0, false
	}
	return call.Args[0].Int.Uint64(), true
}

// fakeSleeper records requested waits and returns immediately
type fakeSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type fakeGate struct {
	ok    bool
	err   error
	calls int
}

func (g *fakeGate) Validate(_ context.Context, _ models.Job) (bool, error) {
	g.calls++
	return g.ok, g.err
}
