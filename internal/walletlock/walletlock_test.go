package walletlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"github.com/gaslift-labs/gaslift/internal/logger"
	"github.com/stretchr/testify/assert"
)

const testWallet = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

func Test_Locker(t *testing.T) {
	ctx := context.Background()
	l := logger.NewNoopLogger()

	t.Run("Should run the operation while holding the lock", func(t *testing.T) {
		locker := NewLocker(kvstore.NewInMemoryStore(), testWallet, l)

		ran := false
		err := locker.ExecuteWithWalletLock(ctx, time.Second, func(_ context.Context) error {
			ran = true
			return nil
		})
		assert.Nil(t, err)
		assert.True(t, ran)
	})

	t.Run("Should return the operation's error and still release", func(t *testing.T) {
		locker := NewLocker(kvstore.NewInMemoryStore(), testWallet, l)

		opErr := errors.New("submit failed")
		err := locker.ExecuteWithWalletLock(ctx, time.Second, func(_ context.Context) error {
			return opErr
		})
		assert.Equal(t, opErr, err)

		// Lock must be reacquirable immediately after the failed operation.
		err = locker.ExecuteWithWalletLock(ctx, 200*time.Millisecond, func(_ context.Context) error {
			return nil
		})
		assert.Nil(t, err)
	})

	t.Run("Should serialize concurrent operations on the same wallet", func(t *testing.T) {
		kv := kvstore.NewInMemoryStore()
		locker := NewLocker(kv, testWallet, l)

		var mu sync.Mutex
		inCriticalSection := 0
		overlapped := false

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := locker.ExecuteWithWalletLock(ctx, 5*time.Second, func(_ context.Context) error {
					mu.Lock()
					inCriticalSection++
					if inCriticalSection > 1 {
						overlapped = true
					}
					mu.Unlock()

					time.Sleep(20 * time.Millisecond)

					mu.Lock()
					inCriticalSection--
					mu.Unlock()
					return nil
				})
				assert.Nil(t, err)
			}()
		}
		wg.Wait()

		assert.False(t, overlapped)
	})

	t.Run("Should time out when another holder never releases", func(t *testing.T) {
		kv := kvstore.NewInMemoryStore()

		// Simulate a holder from another process.
		_, err := kv.SetIfAbsent(ctx, "gaslift:wallet-lock:"+"0xab5801a7d398351b8be11c439e05c5b3259aec9b", "held", time.Minute)
		assert.Nil(t, err)

		locker := NewLocker(kv, testWallet, l)

		ran := false
		err = locker.ExecuteWithWalletLock(ctx, 300*time.Millisecond, func(_ context.Context) error {
			ran = true
			return nil
		})

		var notAcquired *ErrLockNotAcquired
		assert.True(t, errors.As(err, &notAcquired))
		assert.False(t, ran)
	})

	t.Run("Should stop waiting when the context is cancelled", func(t *testing.T) {
		kv := kvstore.NewInMemoryStore()
		_, _ = kv.SetIfAbsent(ctx, "gaslift:wallet-lock:"+"0xab5801a7d398351b8be11c439e05c5b3259aec9b", "held", time.Minute)

		locker := NewLocker(kv, testWallet, l)

		cancelCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		err := locker.ExecuteWithWalletLock(cancelCtx, 10*time.Second, func(_ context.Context) error {
			return nil
		})
		assert.NotNil(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
