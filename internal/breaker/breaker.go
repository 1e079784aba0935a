package breaker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"go.uber.org/zap"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// BreakerState is persisted to the key-value store after every mutation and
// reloaded (best effort) before every decision, so a restarted process
// resumes where it left off.
type BreakerState struct {
	State         State      `json:"state"`
	FailureCount  int        `json:"failureCount"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
}

type Config struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
}

func (c *Config) withDefaults() Config {
	cfg := Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
	}
	if c == nil {
		return cfg
	}
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.Window > 0 {
		cfg.Window = c.Window
	}
	if c.Cooldown > 0 {
		cfg.Cooldown = c.Cooldown
	}
	return cfg
}

// ErrCircuitOpen is returned by Execute without invoking the wrapped function.
type ErrCircuitOpen struct {
	FailureCount int
	RetryIn      time.Duration
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker OPEN after %d failures; retry in %s", e.FailureCount, e.RetryIn.Round(time.Second))
}

// Breaker is one circuit breaker instance for a single key. Instances are
// independent; concurrent Execute calls on the same key interleave their
// load/mutate/persist sequence against the store (read-modify-write, known
// race, acceptable at sponsorship cadence).
type Breaker struct {
	key    string
	cfg    Config
	kv     kvstore.Store
	logger *zap.Logger

	mu    sync.Mutex
	state BreakerState
}

func NewBreaker(key string, cfg *Config, kv kvstore.Store, l *zap.Logger) *Breaker {
	return &Breaker{
		key:    key,
		cfg:    cfg.withDefaults(),
		kv:     kv,
		logger: l,
		state: BreakerState{
			State: StateClosed,
		},
	}
}

func (b *Breaker) Key() string {
	return b.key
}

func (b *Breaker) storageKey() string {
	return fmt.Sprintf("gaslift:breaker:%s", b.key)
}

// load refreshes in-memory state from the store. Failures are logged and
// ignored; the in-memory state stays authoritative for this process.
func (b *Breaker) load(ctx context.Context) {
	raw, found, err := b.kv.Get(ctx, b.storageKey())
	if err != nil {
		b.logger.Sugar().Warnw("Failed to load breaker state, using in-memory state",
			zap.Error(err),
			zap.String("breaker", b.key),
		)
		return
	}
	if !found {
		return
	}

	loaded := BreakerState{}
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		b.logger.Sugar().Warnw("Failed to parse persisted breaker state",
			zap.Error(err),
			zap.String("breaker", b.key),
		)
		return
	}
	b.state = loaded
}

// persist writes state to the store. Failures are logged and never block the
// caller.
func (b *Breaker) persist(ctx context.Context) {
	raw, err := json.Marshal(b.state)
	if err != nil {
		b.logger.Sugar().Warnw("Failed to marshal breaker state", zap.Error(err), zap.String("breaker", b.key))
		return
	}
	if err := b.kv.Set(ctx, b.storageKey(), string(raw), 0); err != nil {
		b.logger.Sugar().Warnw("Failed to persist breaker state",
			zap.Error(err),
			zap.String("breaker", b.key),
		)
	}
}

// evaluate applies lazy transitions at the given instant.
func (b *Breaker) evaluate(now time.Time) {
	switch b.state.State {
	case StateClosed:
		if b.state.LastFailureAt == nil {
			return
		}
		if now.Sub(*b.state.LastFailureAt) > b.cfg.Window {
			// Window elapsed without reaching threshold; failures do not
			// accumulate indefinitely.
			b.state.FailureCount = 0
			return
		}
		if b.state.FailureCount >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateOpen:
		if b.state.LastFailureAt != nil && now.Sub(*b.state.LastFailureAt) >= b.cfg.Cooldown {
			b.transition(StateHalfOpen)
		}
	}
}

func (b *Breaker) transition(to State) {
	from := b.state.State
	if from == to {
		return
	}
	b.state.State = to
	if to == StateClosed {
		b.state.FailureCount = 0
	}
	b.logger.Sugar().Infow("Circuit breaker state transition",
		zap.String("breaker", b.key),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("failureCount", b.state.FailureCount),
	)
}

// CurrentState reloads persisted state, applies lazy transitions and returns
// a copy.
func (b *Breaker) CurrentState(ctx context.Context) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.load(ctx)
	b.evaluate(time.Now())
	return b.state
}

// Execute runs fn under the breaker. When the circuit is OPEN it returns
// ErrCircuitOpen without invoking fn. Otherwise fn's outcome is recorded and
// its error, if any, returned unchanged.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	b.load(ctx)

	now := time.Now()
	b.evaluate(now)

	if b.state.State == StateOpen {
		retryIn := b.cfg.Cooldown
		if b.state.LastFailureAt != nil {
			retryIn = b.cfg.Cooldown - now.Sub(*b.state.LastFailureAt)
		}
		openErr := &ErrCircuitOpen{
			FailureCount: b.state.FailureCount,
			RetryIn:      retryIn,
		}
		b.persist(ctx)
		b.mu.Unlock()
		return openErr
	}
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.recordFailure(time.Now())
	} else {
		b.recordSuccess(time.Now())
	}
	b.persist(ctx)

	return err
}

func (b *Breaker) recordSuccess(now time.Time) {
	b.state.LastSuccessAt = &now
	if b.state.State == StateHalfOpen {
		b.transition(StateClosed)
		return
	}
	b.state.FailureCount = 0
}

func (b *Breaker) recordFailure(now time.Time) {
	b.state.FailureCount++
	b.state.LastFailureAt = &now

	if b.state.State == StateHalfOpen {
		b.transition(StateOpen)
		return
	}
	if b.state.State == StateClosed && b.state.FailureCount >= b.cfg.FailureThreshold {
		b.transition(StateOpen)
	}
}
