package agent

import (
	"context"
	"math/big"

	"github.com/proofrail/proofrail-agent/pkg/config"
	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/metrics"
	"github.com/proofrail/proofrail-agent/pkg/models"
	"github.com/proofrail/proofrail-agent/pkg/pricegate"
)

// RejectReason explains why a job was not executed
type RejectReason string

const (
	ReasonFeeTooLow      RejectReason = "fee-too-low"
	ReasonExpiringSoon   RejectReason = "expiring-soon"
	ReasonPriceInvalid   RejectReason = "price-invalid"
	ReasonPriceGateError RejectReason = "price-gate-error"
	ReasonCircuitOpen    RejectReason = "circuit-open"
)

// Decision is the outcome of evaluating a job
type Decision struct {
	Accept bool
	Reason RejectReason
}

func accept() Decision                   { return Decision{Accept: true} }
func reject(reason RejectReason) Decision { return Decision{Reason: reason} }

// EligibilityPolicy decides whether a job is worth executing
type EligibilityPolicy struct {
	minFee        *big.Int
	expiryMargin  int64
	gate          pricegate.Gate
	failurePolicy config.PriceGateFailurePolicy
	logger        logger.Logger
}

// NewEligibilityPolicy creates a policy. A nil gate disables price validation.
func NewEligibilityPolicy(
	minFee *big.Int,
	expiryMargin int64,
	gate pricegate.Gate,
	failurePolicy config.PriceGateFailurePolicy,
	log logger.Logger,
) *EligibilityPolicy {
	if minFee == nil {
		minFee = new(big.Int)
	}
	if failurePolicy == "" {
		failurePolicy = config.FailOpen
	}
	return &EligibilityPolicy{
		minFee:        minFee,
		expiryMargin:  expiryMargin,
		gate:          gate,
		failurePolicy: failurePolicy,
		logger:        log,
	}
}

// Evaluate checks fee, expiry margin and price in that order
func (p *EligibilityPolicy) Evaluate(ctx context.Context, job models.Job, height uint64) Decision {
	fee := job.AgentFeeAmount
	if fee == nil {
		fee = new(big.Int)
	}
	if fee.Cmp(p.minFee) < 0 {
		p.logger.DebugWithJob(job.ID, "Fee %s below minimum %s", fee, p.minFee)
		return reject(ReasonFeeTooLow)
	}

	if remaining := job.BlocksUntilExpiry(height); !job.IsExecutable(height) || remaining < p.expiryMargin {
		p.logger.DebugWithJob(job.ID, "Expires in %d blocks, margin is %d", remaining, p.expiryMargin)
		return reject(ReasonExpiringSoon)
	}

	if p.gate == nil {
		return accept()
	}

	ok, err := p.gate.Validate(ctx, job)
	if err != nil {
		metrics.PriceGate.WithLabelValues("error").Inc()
		if p.failurePolicy == config.FailClosed {
			p.logger.ErrorWithJob(job.ID, "Price gate failed, rejecting: %v", err)
			return reject(ReasonPriceGateError)
		}
		p.logger.ErrorWithJob(job.ID, "Price gate failed, proceeding: %v", err)
		return accept()
	}
	if !ok {
		metrics.PriceGate.WithLabelValues("invalid").Inc()
		return reject(ReasonPriceInvalid)
	}

	metrics.PriceGate.WithLabelValues("valid").Inc()
	return accept()
}
