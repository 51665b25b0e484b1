package agent

import (
	"math/big"

	"github.com/proofrail/proofrail-agent/pkg/config"
	"github.com/proofrail/proofrail-agent/pkg/contracts"
	"github.com/proofrail/proofrail-agent/pkg/ledger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

// ContractBundle is the set of contracts a job execution touches
type ContractBundle struct {
	InputToken  models.ContractID
	OutputToken models.ContractID
	SwapHelper  models.ContractID
	Staking     models.ContractID
	Executor    models.ContractID
	Escrow      models.ContractID
}

// BundleFromConfig builds the bundle from the configured contracts
func BundleFromConfig(c config.ContractsConfig) ContractBundle {
	return ContractBundle{
		InputToken:  c.InputToken,
		OutputToken: c.OutputToken,
		SwapHelper:  c.SwapHelper,
		Staking:     c.Staking,
		Executor:    c.JobRouter,
		Escrow:      c.JobEscrow,
	}
}

// ExecutionParams are the arguments of one job execution
type ExecutionParams struct {
	JobID      uint64
	SwapAmount *big.Int
	Factor     *big.Int
	Contracts  ContractBundle
}

// ExecuteCall builds the router call executing the job
func (p ExecutionParams) ExecuteCall() (ledger.ContractCall, error) {
	return contracts.NewRouter(p.Contracts.Executor).ExecuteSwapStakeJob(contracts.SwapStakeArgs{
		JobID:       p.JobID,
		InputToken:  p.Contracts.InputToken,
		OutputToken: p.Contracts.OutputToken,
		SwapHelper:  p.Contracts.SwapHelper,
		Staking:     p.Contracts.Staking,
		Factor:      p.Factor,
		SwapAmount:  p.SwapAmount,
	})
}

// ClaimFeeCall builds the escrow call paying the agent fee
func (p ExecutionParams) ClaimFeeCall() (ledger.ContractCall, error) {
	return contracts.NewEscrow(p.Contracts.Escrow).ClaimFee(p.JobID, p.Contracts.InputToken)
}

// Planner turns a job into execution parameters
type Planner struct {
	bundle ContractBundle
	factor *big.Int
}

// NewPlanner creates a planner using the given contracts and swap factor
func NewPlanner(bundle ContractBundle, factor *big.Int) *Planner {
	return &Planner{bundle: bundle, factor: factor}
}

// Plan swaps half of the job's maximum input
func (p *Planner) Plan(job models.Job) ExecutionParams {
	swap := new(big.Int)
	if job.MaxInputAmount != nil {
		swap.Quo(job.MaxInputAmount, big.NewInt(2))
	}
	return ExecutionParams{
		JobID:      job.ID,
		SwapAmount: swap,
		Factor:     new(big.Int).Set(p.factor),
		Contracts:  p.bundle,
	}
}

// claimParams rebuilds the parameters needed for a fee claim of a known job id
func (p *Planner) claimParams(jobID uint64) ExecutionParams {
	return ExecutionParams{JobID: jobID, Contracts: p.bundle}
}
