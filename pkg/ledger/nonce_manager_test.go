package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofrail/proofrail-agent/pkg/logger"
)

type staticNonceSource struct {
	nonce uint64
	err   error
}

func (s *staticNonceSource) GetPossibleNextNonce(_ context.Context, _ string) (uint64, error) {
	return s.nonce, s.err
}

func TestNonceManager(t *testing.T) {
	ctx := context.Background()

	t.Run("takes the larger of local and ledger nonce", func(t *testing.T) {
		nm := NewNonceManager(&logger.EmptyLogger{})
		source := &staticNonceSource{nonce: 4}

		n, err := nm.GetNonce(ctx, testSender, source)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), n)

		// The ledger has not seen the first transaction yet
		n, err = nm.GetNonce(ctx, testSender, source)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), n)

		source.nonce = 9
		n, err = nm.GetNonce(ctx, testSender, source)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), n)
	})

	t.Run("release reuses the last nonce only", func(t *testing.T) {
		nm := NewNonceManager(&logger.EmptyLogger{})
		source := &staticNonceSource{nonce: 1}

		first, _ := nm.GetNonce(ctx, testSender, source)
		second, _ := nm.GetNonce(ctx, testSender, source)
		nm.ReleaseNonce(testSender, first)

		next, _ := nm.GetNonce(ctx, testSender, source)
		assert.Equal(t, second+1, next)

		nm.ReleaseNonce(testSender, next)
		again, _ := nm.GetNonce(ctx, testSender, source)
		assert.Equal(t, next, again)
	})

	t.Run("ledger error", func(t *testing.T) {
		nm := NewNonceManager(&logger.EmptyLogger{})
		_, err := nm.GetNonce(ctx, testSender, &staticNonceSource{err: errors.New("boom")})
		assert.Error(t, err)
	})

	t.Run("dropped transaction forces a resync", func(t *testing.T) {
		nm := NewNonceManager(&logger.EmptyLogger{})
		source := &staticNonceSource{nonce: 3}

		n, _ := nm.GetNonce(ctx, testSender, source)
		nm.TrackTransaction(testSender, "0x01", n)
		n, _ = nm.GetNonce(ctx, testSender, source)
		nm.TrackTransaction(testSender, "0x02", n)
		assert.Equal(t, 2, nm.GetPendingTransactionsCount(testSender))

		assert.True(t, nm.MarkTransactionFailed(testSender, "0x01"))
		assert.False(t, nm.MarkTransactionFailed(testSender, "0x01"))

		n, _ = nm.GetNonce(ctx, testSender, source)
		assert.Equal(t, uint64(3), n)
	})

	t.Run("confirmed transactions leave the pending set", func(t *testing.T) {
		nm := NewNonceManager(&logger.EmptyLogger{})
		nm.TrackTransaction(testSender, "0x01", 0)
		assert.True(t, nm.MarkTransactionConfirmed(testSender, "0x01"))
		assert.Equal(t, 0, nm.GetPendingTransactionsCount(testSender))
	})

	t.Run("timeouts", func(t *testing.T) {
		nm := NewNonceManager(&logger.EmptyLogger{})
		nm.SetTransactionTimeout(time.Millisecond)
		nm.TrackTransaction(testSender, "0x01", 0)
		time.Sleep(5 * time.Millisecond)

		timedOut := nm.FindTimeoutTransactions(testSender)
		require.Len(t, timedOut, 1)
		assert.Equal(t, "0x01", timedOut[0].TxID)
		assert.Equal(t, TxTimedOut, timedOut[0].Status)
		assert.Empty(t, nm.FindTimeoutTransactions(testSender))
	})
}

func TestNonceManagerSlot(t *testing.T) {
	nm := NewNonceManager(&logger.EmptyLogger{})

	release, err := nm.Acquire(context.Background(), testSender)
	require.NoError(t, err)

	// A second caller for the same identity waits
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = nm.Acquire(ctx, testSender)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Another identity is independent
	other, err := nm.Acquire(context.Background(), testDeployer)
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := nm.Acquire(context.Background(), testSender)
	require.NoError(t, err)
	again()
}
