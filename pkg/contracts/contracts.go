// Package contracts builds the public function calls the agent sends to the
// job-router and job-escrow contracts.
package contracts

import (
	"fmt"
	"math/big"

	"github.com/proofrail/proofrail-agent/pkg/clarity"
	"github.com/proofrail/proofrail-agent/pkg/ledger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

// Public functions called by the agent
const (
	FnExecuteSwapStakeJob = "execute-swap-stake-job"
	FnClaimFee            = "claim-fee"
)

// Router binds the job-router contract
type Router struct {
	id models.ContractID
}

// NewRouter creates a binding for the job-router deployed at id
func NewRouter(id models.ContractID) *Router {
	return &Router{id: id}
}

// ID returns the contract the binding calls
func (r *Router) ID() models.ContractID {
	return r.id
}

// SwapStakeArgs are the arguments of execute-swap-stake-job
type SwapStakeArgs struct {
	JobID       uint64
	InputToken  models.ContractID
	OutputToken models.ContractID
	SwapHelper  models.ContractID
	Staking     models.ContractID
	Factor      *big.Int
	SwapAmount  *big.Int
}

// ExecuteSwapStakeJob builds
// (execute-swap-stake-job (job uint) (input <ft>) (output <ft>) (helper <swap>) (staking <stake>) (factor uint) (amount uint))
func (r *Router) ExecuteSwapStakeJob(args SwapStakeArgs) (ledger.ContractCall, error) {
	if args.Factor == nil || args.SwapAmount == nil {
		return ledger.ContractCall{}, fmt.Errorf("factor and swap amount are required")
	}

	traits := make([]clarity.Value, 0, 4)
	for _, id := range []models.ContractID{args.InputToken, args.OutputToken, args.SwapHelper, args.Staking} {
		v, err := contractArg(id)
		if err != nil {
			return ledger.ContractCall{}, err
		}
		traits = append(traits, v)
	}

	callArgs := []clarity.Value{clarity.UInt(args.JobID)}
	callArgs = append(callArgs, traits...)
	callArgs = append(callArgs, clarity.UIntBig(args.Factor), clarity.UIntBig(args.SwapAmount))

	return ledger.ContractCall{
		Contract: r.id,
		Function: FnExecuteSwapStakeJob,
		Args:     callArgs,
	}, nil
}

// Escrow binds the job-escrow contract
type Escrow struct {
	id models.ContractID
}

// NewEscrow creates a binding for the job-escrow deployed at id
func NewEscrow(id models.ContractID) *Escrow {
	return &Escrow{id: id}
}

// ID returns the contract the binding calls
func (e *Escrow) ID() models.ContractID {
	return e.id
}

// ClaimFee builds (claim-fee (job uint) (token <ft>))
func (e *Escrow) ClaimFee(jobID uint64, inputToken models.ContractID) (ledger.ContractCall, error) {
	token, err := contractArg(inputToken)
	if err != nil {
		return ledger.ContractCall{}, err
	}
	return ledger.ContractCall{
		Contract: e.id,
		Function: FnClaimFee,
		Args:     []clarity.Value{clarity.UInt(jobID), token},
	}, nil
}

func contractArg(id models.ContractID) (clarity.Value, error) {
	p, err := id.Principal()
	if err != nil {
		return clarity.Value{}, fmt.Errorf("invalid contract %s: %w", id, err)
	}
	return clarity.PrincipalValue(p), nil
}
