package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/proofrail/proofrail-agent/pkg/logger"
)

// TransactionStatus represents the local view of a submitted transaction
type TransactionStatus int

const (
	// TxPending indicates transaction is pending
	TxPending TransactionStatus = iota
	// TxConfirmed indicates transaction is confirmed
	TxConfirmed
	// TxFailed indicates transaction has failed
	TxFailed
	// TxTimedOut indicates transaction has timed out
	TxTimedOut
)

// TransactionRecord tracks details about a transaction
type TransactionRecord struct {
	TxID      string
	Nonce     uint64
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    TransactionStatus
}

// NonceSource reports the next nonce the ledger will accept for an address
type NonceSource interface {
	GetPossibleNextNonce(ctx context.Context, address string) (uint64, error)
}

// NonceManager allocates nonces per identity and serializes submissions through a single slot
type NonceManager struct {
	identities map[string]*identityNonceData
	mu         sync.Mutex
	txTimeout  time.Duration
	logger     logger.Logger
}

// identityNonceData holds nonce data for one signing identity
type identityNonceData struct {
	// Next nonce to hand out
	currentNonce uint64
	// Pending transactions by nonce
	pendingTxs map[uint64]*TransactionRecord
	// Set when a dropped transaction may have left a gap; the next allocation trusts the ledger
	resync bool
	// Single submission slot
	slot chan struct{}
	mu   sync.Mutex
}

// NewNonceManager creates a new nonce manager
func NewNonceManager(log logger.Logger) *NonceManager {
	return &NonceManager{
		identities: make(map[string]*identityNonceData),
		txTimeout:  10 * time.Minute,
		logger:     log,
	}
}

// SetTransactionTimeout sets the age after which pending transactions count as timed out
func (nm *NonceManager) SetTransactionTimeout(timeout time.Duration) {
	nm.txTimeout = timeout
}

func (nm *NonceManager) identity(address string) *identityNonceData {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	data, ok := nm.identities[address]
	if !ok {
		data = &identityNonceData{
			pendingTxs: make(map[uint64]*TransactionRecord),
			slot:       make(chan struct{}, 1),
		}
		nm.identities[address] = data
	}
	return data
}

// Acquire takes the submission slot for an identity, blocking until it is free or ctx is done.
// The returned function releases the slot and is safe to call more than once.
func (nm *NonceManager) Acquire(ctx context.Context, address string) (func(), error) {
	data := nm.identity(address)
	select {
	case data.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-data.slot })
	}, nil
}

// GetNonce reserves and returns max(local next, ledger next) for the identity
func (nm *NonceManager) GetNonce(ctx context.Context, address string, source NonceSource) (uint64, error) {
	data := nm.identity(address)

	ledgerNonce, err := source.GetPossibleNextNonce(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to get next nonce: %w", err)
	}

	data.mu.Lock()
	defer data.mu.Unlock()

	if data.resync {
		if data.currentNonce != ledgerNonce {
			nm.logger.Info("Resyncing nonce for %s: %d -> %d", address, data.currentNonce, ledgerNonce)
		}
		data.currentNonce = ledgerNonce
		data.resync = false
	} else if ledgerNonce > data.currentNonce {
		nm.logger.Debug("Updating nonce for %s: %d -> %d", address, data.currentNonce, ledgerNonce)
		data.currentNonce = ledgerNonce
	}

	nonce := data.currentNonce
	data.currentNonce++
	return nonce, nil
}

// ReleaseNonce returns an unused nonce after a failed broadcast so the next submission reuses it
func (nm *NonceManager) ReleaseNonce(address string, nonce uint64) {
	data := nm.identity(address)
	data.mu.Lock()
	defer data.mu.Unlock()

	if data.currentNonce == nonce+1 {
		data.currentNonce = nonce
		nm.logger.Debug("Released nonce %d for %s", nonce, address)
	}
}

// TrackTransaction records a broadcast transaction
func (nm *NonceManager) TrackTransaction(address, txID string, nonce uint64) {
	data := nm.identity(address)
	data.mu.Lock()
	defer data.mu.Unlock()

	now := time.Now()
	data.pendingTxs[nonce] = &TransactionRecord{
		TxID:      txID,
		Nonce:     nonce,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    TxPending,
	}
	nm.logger.Debug("Tracking transaction for %s with nonce %d: %s", address, nonce, txID)
}

// MarkTransactionConfirmed removes a mined transaction (success or abort) from the pending set
func (nm *NonceManager) MarkTransactionConfirmed(address, txID string) bool {
	return nm.finish(address, txID, TxConfirmed)
}

// MarkTransactionFailed removes a transaction that never made it into a block. Its nonce
// may be unused, so the next allocation resyncs with the ledger.
func (nm *NonceManager) MarkTransactionFailed(address, txID string) bool {
	return nm.finish(address, txID, TxFailed)
}

func (nm *NonceManager) finish(address, txID string, status TransactionStatus) bool {
	data := nm.identity(address)
	data.mu.Lock()
	defer data.mu.Unlock()

	for nonce, tx := range data.pendingTxs {
		if tx.TxID != txID {
			continue
		}
		tx.Status = status
		tx.UpdatedAt = time.Now()
		delete(data.pendingTxs, nonce)
		if status == TxFailed {
			data.resync = true
		}
		return true
	}
	nm.logger.Debug("No pending transaction %s found for %s", txID, address)
	return false
}

// FindTimeoutTransactions marks and returns pending transactions older than the timeout
func (nm *NonceManager) FindTimeoutTransactions(address string) []TransactionRecord {
	data := nm.identity(address)
	data.mu.Lock()
	defer data.mu.Unlock()

	now := time.Now()
	var timedOut []TransactionRecord
	for _, tx := range data.pendingTxs {
		if tx.Status == TxPending && now.Sub(tx.CreatedAt) > nm.txTimeout {
			tx.Status = TxTimedOut
			tx.UpdatedAt = now
			timedOut = append(timedOut, *tx)
		}
	}
	if len(timedOut) > 0 {
		data.resync = true
	}
	return timedOut
}

// GetPendingTransactionsCount returns the number of pending transactions for an identity
func (nm *NonceManager) GetPendingTransactionsCount(address string) int {
	data := nm.identity(address)
	data.mu.Lock()
	defer data.mu.Unlock()
	return len(data.pendingTxs)
}
