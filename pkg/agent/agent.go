// Package agent runs the job execution loop: discover open jobs assigned to this
// agent, execute the eligible ones through the router and claim their fees.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/proofrail/proofrail-agent/pkg/circuitbreaker"
	"github.com/proofrail/proofrail-agent/pkg/config"
	"github.com/proofrail/proofrail-agent/pkg/contracts"
	"github.com/proofrail/proofrail-agent/pkg/events"
	"github.com/proofrail/proofrail-agent/pkg/health"
	"github.com/proofrail/proofrail-agent/pkg/ledger"
	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/metrics"
	"github.com/proofrail/proofrail-agent/pkg/models"
	"github.com/proofrail/proofrail-agent/pkg/pricegate"
	"github.com/proofrail/proofrail-agent/pkg/store"
)

// shutdownTimeout bounds the health server shutdown
const shutdownTimeout = 5 * time.Second

// staleTxExpirer is implemented by ledger clients that track pending transactions
type staleTxExpirer interface {
	ExpireStaleTransactions() int
}

// Dependencies are the collaborators of an Agent
type Dependencies struct {
	Query     ledger.QueryPort
	Tx        ledger.TxPort
	Gate      pricegate.Gate
	Journal   store.Journal
	Publisher events.Publisher
	Breaker   *circuitbreaker.CircuitBreaker
	Logger    logger.Logger
}

// Agent executes jobs assigned to its identity
type Agent struct {
	cfg       *config.Config
	identity  string
	query     ledger.QueryPort
	tx        ledger.TxPort
	catalog   *Catalog
	policy    *EligibilityPolicy
	planner   *Planner
	submitter *Submitter
	waiter    *ConfirmationWaiter
	journal   store.Journal
	publisher events.Publisher
	breaker   *circuitbreaker.CircuitBreaker
	logger    logger.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	status  health.AgentStatus
}

var _ health.StatusProvider = (*Agent)(nil)

// New creates an agent wired to the Hiro API, the remote signer and the configured
// journal, price gate and event stream
func New(ctx context.Context, cfg *config.Config) (*Agent, error) {
	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	client := ledger.NewClient(
		ledger.ClientConfig{
			Endpoint: cfg.APIEndpoint,
			Network:  cfg.Network.Name,
			Sender:   cfg.AgentAddress,
			Escrow:   cfg.Contracts.JobEscrow,
			TxFee:    cfg.TxFee,
		},
		ledger.NewRemoteSigner(cfg.SignerURL),
		ledger.NewNonceManager(stdLogger),
		stdLogger,
	)

	if height, err := client.GetCurrentHeight(ctx); err != nil {
		stdLogger.Error("Ledger API at %s unreachable: %v", cfg.APIEndpoint, err)
	} else {
		stdLogger.Info("Connected to %s at height %d", cfg.Network.Name, height)
	}

	var gate pricegate.Gate
	if cfg.PriceValidation.Enabled {
		gate = pricegate.NewPythGate(pricegate.Config{
			APIURL:           cfg.PriceValidation.APIURL,
			FeedID:           cfg.PriceValidation.FeedID,
			MaxAge:           cfg.PriceValidation.MaxAge,
			MaxConfidenceBps: cfg.PriceValidation.MaxConfidenceBps,
			CacheTTL:         cfg.PriceValidation.CacheTTL,
		}, stdLogger)
	}

	var journal store.Journal
	if cfg.StorePath != "" {
		sqlite, err := store.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		journal = sqlite
	} else {
		stdLogger.Notice("STORE_PATH not set, execution journal is kept in memory")
		journal = store.NewMemory()
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		nats, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix, stdLogger)
		if err != nil {
			_ = journal.Close()
			return nil, err
		}
		publisher = nats
	}

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		stdLogger,
	)

	return NewWithDependencies(cfg, Dependencies{
		Query:     client,
		Tx:        client,
		Gate:      gate,
		Journal:   journal,
		Publisher: publisher,
		Breaker:   breaker,
		Logger:    stdLogger,
	}), nil
}

// NewWithDependencies creates an agent from explicit collaborators
func NewWithDependencies(cfg *config.Config, deps Dependencies) *Agent {
	log := deps.Logger
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	journal := deps.Journal
	if journal == nil {
		journal = store.NewMemory()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	breaker := deps.Breaker
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(false, 0, 0, 0, log)
	}

	return &Agent{
		cfg:       cfg,
		identity:  cfg.AgentAddress,
		query:     deps.Query,
		tx:        deps.Tx,
		catalog:   NewCatalog(deps.Query, cfg.ScanWindow, log),
		policy:    NewEligibilityPolicy(cfg.MinFeeAmount, cfg.ExpiryMarginBlocks, deps.Gate, cfg.PriceValidation.FailurePolicy, log),
		planner:   NewPlanner(BundleFromConfig(cfg.Contracts), cfg.SwapFactor),
		submitter: NewSubmitter(deps.Tx, cfg.MaxRetries, cfg.RetryBaseDelay, log),
		waiter:    NewConfirmationWaiter(deps.Query, deps.Tx, cfg.ConfirmMaxWaitBlocks, cfg.ConfirmPollInterval, log),
		journal:   journal,
		publisher: publisher,
		breaker:   breaker,
		logger:    log,
		now:       time.Now,
		status: health.AgentStatus{
			Address: cfg.AgentAddress,
			Network: cfg.Network.Name,
		},
	}
}

// Start runs cycles until ctx is cancelled or Stop is called
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	a.running = true
	a.cancel = cancel
	a.status.Running = true
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.running = false
		a.cancel = nil
		a.status.Running = false
		a.mu.Unlock()
	}()

	if a.cfg.MetricsPort != "" {
		healthServer := health.NewServer(
			a.cfg.MetricsPort,
			a.cfg.MetricsAPIKey,
			a,
			a.breaker,
			3*a.cfg.PollInterval+time.Minute,
			a.logger,
		)
		go healthServer.Start()
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			if err := healthServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("Health server shutdown: %v", err)
			}
		}()
	}

	a.logger.Notice("Starting agent %s on %s with polling interval %v", a.identity, a.cfg.Network.Name, a.cfg.PollInterval)

	for a.isRunning() && ctx.Err() == nil {
		a.safeCycle(ctx)

		if !a.isRunning() {
			break
		}
		if err := sleepCtx(ctx, a.cfg.PollInterval); err != nil {
			break
		}
	}

	a.logger.Notice("Agent stopped")
	return nil
}

// Stop ends the loop and interrupts any backoff or confirmation wait in progress
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	if a.cancel != nil {
		a.cancel()
	}
}

// Close releases the journal and the event stream
func (a *Agent) Close() error {
	return errors.Join(a.publisher.Close(), a.journal.Close())
}

func (a *Agent) isRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Status implements health.StatusProvider
func (a *Agent) Status() health.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// safeCycle runs one cycle, logging errors and recovering panics
func (a *Agent) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CycleErrors.Inc()
			a.logger.Error("Recovered from panic in cycle: %v", r)
			a.setLastError(fmt.Errorf("panic: %v", r))
		}
	}()

	if err := a.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Cycle failed: %v", err)
	}
}

// RunCycle performs a single pass: fee-claim recovery, discovery and execution
func (a *Agent) RunCycle(ctx context.Context) error {
	start := a.now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	if expirer, ok := a.tx.(staleTxExpirer); ok {
		if n := expirer.ExpireStaleTransactions(); n > 0 {
			a.logger.Notice("Expired %d stale transactions", n)
		}
	}

	height, err := a.query.GetCurrentHeight(ctx)
	if err != nil {
		metrics.CycleErrors.Inc()
		a.setLastError(err)
		return fmt.Errorf("failed to get current height: %w", err)
	}
	metrics.CurrentBlockHeight.Set(float64(height))

	a.recoverFeeClaims(ctx, height)

	jobs, err := a.catalog.ListOpenJobsForAgent(ctx, a.identity)
	if err != nil {
		metrics.CycleErrors.Inc()
		a.setLastError(err)
		return err
	}
	metrics.JobsDiscovered.Set(float64(len(jobs)))
	if len(jobs) > 0 {
		a.logger.Info("Found %d open jobs at height %d", len(jobs), height)
	} else {
		a.logger.Debug("No open jobs at height %d", height)
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.processJob(ctx, job)
	}

	a.mu.Lock()
	a.status.LastCycleAt = a.now()
	a.status.LastHeight = height
	a.status.LastJobsFound = len(jobs)
	a.mu.Unlock()
	return nil
}

// processJob takes one job from eligibility through execution and fee claim
func (a *Agent) processJob(ctx context.Context, job models.Job) {
	start := time.Now()
	defer func() {
		metrics.JobProcessingTime.Observe(time.Since(start).Seconds())
	}()

	entry, err := a.journal.Get(ctx, job.ID)
	switch {
	case err == nil && (entry.State == store.StateExecuted || entry.State == store.StateFeeClaimed):
		a.logger.DebugWithJob(job.ID, "Already %s, skipping", entry.State)
		return
	case err != nil && !errors.Is(err, store.ErrNotFound):
		a.logger.ErrorWithJob(job.ID, "Failed to read journal, skipping: %v", err)
		return
	}

	// Earlier jobs in the cycle may have consumed blocks, expiry is judged at the current tip
	height, err := a.query.GetCurrentHeight(ctx)
	if err != nil {
		a.logger.ErrorWithJob(job.ID, "Failed to read current height, skipping: %v", err)
		a.setLastError(err)
		return
	}
	metrics.CurrentBlockHeight.Set(float64(height))

	decision := a.policy.Evaluate(ctx, job, height)
	if !decision.Accept {
		a.rejectJob(job.ID, height, decision.Reason)
		return
	}
	if a.breaker.IsOpen() {
		a.rejectJob(job.ID, height, ReasonCircuitOpen)
		return
	}

	params := a.planner.Plan(job)
	call, err := params.ExecuteCall()
	if err != nil {
		a.handleFailure(job.ID, height, "", err, events.TypeExecutionFailed)
		return
	}

	a.logger.InfoWithJob(job.ID, "Executing: swap %s of %s, fee %s", params.SwapAmount, job.InputToken, job.AgentFeeAmount)
	entry = store.Entry{JobID: job.ID, State: store.StateExecuting}
	a.putEntry(ctx, entry)

	txID, err := a.submitter.Submit(ctx, call)
	if err != nil {
		metrics.JobsExecuted.WithLabelValues("broadcast_failed").Inc()
		entry.State = store.StateFailed
		entry.LastError = err.Error()
		a.putEntry(ctx, entry)
		a.handleFailure(job.ID, height, "", err, events.TypeExecutionFailed)
		return
	}

	entry.ExecuteTxID = txID
	a.putEntry(ctx, entry)

	outcome, err := a.waiter.AwaitConfirmation(ctx, txID)
	if err != nil {
		metrics.JobsExecuted.WithLabelValues(outcome.String()).Inc()
		entry.State = store.StateFailed
		entry.LastError = err.Error()
		a.putEntry(ctx, entry)
		a.handleFailure(job.ID, height, txID, err, events.TypeExecutionFailed)
		return
	}

	metrics.JobsExecuted.WithLabelValues(Confirmed.String()).Inc()
	a.breaker.RecordSuccess()
	entry.State = store.StateExecuted
	entry.LastError = ""
	a.putEntry(ctx, entry)

	a.mu.Lock()
	a.status.JobsExecuted++
	a.mu.Unlock()

	a.logger.NoticeWithJob(job.ID, "Executed in %s", txID)
	a.publish(events.NewJobEvent(events.TypeExecuted, job.ID, a.identity).WithTx(txID).WithHeight(height))

	a.claimFee(ctx, entry, height)
}

// claimFee submits claim-fee for an executed job and waits for it
func (a *Agent) claimFee(ctx context.Context, entry store.Entry, height uint64) {
	call, err := a.planner.claimParams(entry.JobID).ClaimFeeCall()
	if err != nil {
		a.handleFailure(entry.JobID, height, "", err, events.TypeFeeClaimFailed)
		return
	}

	txID, err := a.submitter.Submit(ctx, call)
	if err != nil {
		if ClassifyError(err) == ErrorTypeAlreadyProcessed && a.feePaid(ctx, entry.JobID) {
			a.markClaimed(ctx, entry, height)
			return
		}
		metrics.FeeClaims.WithLabelValues("broadcast_failed").Inc()
		entry.LastError = err.Error()
		a.putEntry(ctx, entry)
		a.handleFailure(entry.JobID, height, "", err, events.TypeFeeClaimFailed)
		return
	}

	entry.ClaimTxID = txID
	a.putEntry(ctx, entry)

	outcome, err := a.waiter.AwaitConfirmation(ctx, txID)
	if err != nil {
		// An aborted claim may mean the fee was paid by an earlier claim
		if outcome == Aborted && a.feePaid(ctx, entry.JobID) {
			a.markClaimed(ctx, entry, height)
			return
		}
		metrics.FeeClaims.WithLabelValues(outcome.String()).Inc()
		entry.LastError = err.Error()
		a.putEntry(ctx, entry)
		a.handleFailure(entry.JobID, height, txID, err, events.TypeFeeClaimFailed)
		return
	}

	a.markClaimed(ctx, entry, height)
}

// feePaid reports whether the ledger records the job's fee as paid
func (a *Agent) feePaid(ctx context.Context, jobID uint64) bool {
	job, err := a.query.GetJob(ctx, jobID)
	if err != nil {
		a.logger.ErrorWithJob(jobID, "Could not verify fee payment: %v", err)
		return false
	}
	return job.FeePaid
}

// markClaimed closes a journal entry whose fee has been paid
func (a *Agent) markClaimed(ctx context.Context, entry store.Entry, height uint64) {
	entry.State = store.StateFeeClaimed
	entry.LastError = ""
	a.putEntry(ctx, entry)

	metrics.FeeClaims.WithLabelValues(Confirmed.String()).Inc()
	a.mu.Lock()
	a.status.FeesClaimed++
	a.mu.Unlock()

	a.logger.NoticeWithJob(entry.JobID, "Fee claimed")
	a.publish(events.NewJobEvent(events.TypeFeeClaimed, entry.JobID, a.identity).WithTx(entry.ClaimTxID).WithHeight(height))
}

func (a *Agent) rejectJob(jobID, height uint64, reason RejectReason) {
	metrics.JobsRejected.WithLabelValues(string(reason)).Inc()
	a.logger.InfoWithJob(jobID, "Rejected: %s", reason)
	a.publish(events.NewJobEvent(events.TypeRejected, jobID, a.identity).WithReason(string(reason)).WithHeight(height))
}

// handleFailure classifies a job failure, feeds the circuit breaker and reports it
func (a *Agent) handleFailure(jobID, height uint64, txID string, err error, eventType events.Type) {
	errType := ClassifyError(err)
	metrics.JobErrors.WithLabelValues(string(errType)).Inc()

	if countsAsFailure(errType) && a.breaker.RecordFailure() {
		a.logger.ErrorWithJob(jobID, "Circuit breaker open, pausing new executions")
	}

	reason := string(errType)
	if code, ok := contracts.ExtractErrorCode(err.Error()); ok {
		reason += ", " + contracts.DescribeError(code)
	}
	if txID != "" {
		a.logger.ErrorWithJob(jobID, "%s (%s) tx %s: %v", eventType, reason, txID, err)
	} else {
		a.logger.ErrorWithJob(jobID, "%s (%s): %v", eventType, reason, err)
	}
	a.publish(events.NewJobEvent(eventType, jobID, a.identity).WithTx(txID).WithReason(string(errType)).WithHeight(height))
	a.setLastError(err)
}

// putEntry writes the journal; a write failure is logged and does not stop the job
func (a *Agent) putEntry(ctx context.Context, entry store.Entry) {
	entry.UpdatedAt = a.now()
	if err := a.journal.Upsert(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.ErrorWithJob(entry.JobID, "Failed to write journal entry (%s): %v", entry.State, err)
	}
}

func (a *Agent) publish(event events.JobEvent) {
	if err := a.publisher.Publish(event); err != nil {
		a.logger.DebugWithJob(event.JobID, "Event %s not published: %v", event.Type, err)
	}
}

func (a *Agent) setLastError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status.LastError = err.Error()
}
