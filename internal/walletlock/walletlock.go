package walletlock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const (
	DefaultTimeout = 30 * time.Second
	retryInterval  = 100 * time.Millisecond
)

type ErrLockNotAcquired struct {
	Timeout time.Duration
}

func (e *ErrLockNotAcquired) Error() string {
	return fmt.Sprintf("failed to acquire wallet lock within %s", e.Timeout)
}

type lockToken struct {
	LockId     string    `json:"lockId"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Locker serializes every signing/broadcast path for one wallet. The lock is
// advisory and time-bounded: the TTL equals the acquisition timeout, so it
// must exceed the longest critical section plus margin. All call sites share
// one key per wallet: two concurrent paths must never race on the same
// account nonce.
type Locker struct {
	kv     kvstore.Store
	key    string
	logger *zap.Logger
}

func NewLocker(kv kvstore.Store, walletAddress string, l *zap.Logger) *Locker {
	return &Locker{
		kv:     kv,
		key:    fmt.Sprintf("gaslift:wallet-lock:%s", strings.ToLower(walletAddress)),
		logger: l,
	}
}

// ExecuteWithWalletLock acquires the lock (spin-retrying every 100ms until
// timeout), runs operation, and releases the lock on every exit path. On
// timeout it returns ErrLockNotAcquired without running operation.
func (wl *Locker) ExecuteWithWalletLock(ctx context.Context, timeout time.Duration, operation func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	token, err := json.Marshal(lockToken{
		LockId:     uuid.New().String(),
		AcquiredAt: time.Now(),
	})
	if err != nil {
		return xerrors.Errorf("failed to build lock token: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		acquired, err := wl.kv.SetIfAbsent(ctx, wl.key, string(token), timeout)
		if err != nil {
			return xerrors.Errorf("failed to acquire wallet lock: %w", err)
		}
		if acquired {
			break
		}
		if time.Now().Add(retryInterval).After(deadline) {
			return &ErrLockNotAcquired{Timeout: timeout}
		}

		select {
		case <-ctx.Done():
			return xerrors.Errorf("context cancelled while waiting for wallet lock: %w", ctx.Err())
		case <-time.After(retryInterval):
		}
	}

	defer func() {
		// Release by overwriting with a near-zero TTL; a cancelled context
		// must not leave the lock held for its full TTL.
		releaseCtx := context.WithoutCancel(ctx)
		if err := wl.kv.Set(releaseCtx, wl.key, string(token), time.Millisecond); err != nil {
			wl.logger.Sugar().Warnw("Failed to release wallet lock; it will expire by TTL",
				zap.Error(err),
				zap.String("key", wl.key),
			)
		}
	}()

	return operation(ctx)
}
