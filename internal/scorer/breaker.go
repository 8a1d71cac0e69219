package scorer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed passes calls through.
	BreakerClosed BreakerState = iota
	// BreakerOpen refuses calls until the reset timeout elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single trial call through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when a Breaker opens and how long it stays open.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive scorer failures that
	// opens the breaker. Default: 5.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration
}

// Breaker wraps a Scorer and fails fast with KindUnavailable after repeated
// scorer failures. Only typed scorer failures count; caller cancellation and
// data-source errors do not.
type Breaker struct {
	next Scorer
	cfg  BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Scorer, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{next: next, cfg: cfg, now: time.Now}
}

// Score implements Scorer.
func (b *Breaker) Score(ctx context.Context, req Request, timeout time.Duration) ([]int64, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	ids, err := b.next.Score(ctx, req, timeout)
	b.record(ctx, err)
	return ids, err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return &Error{Kind: KindUnavailable, Detail: "scorer breaker open"}
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return &Error{Kind: KindUnavailable, Detail: "scorer trial call in flight"}
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasTrial := b.state == BreakerHalfOpen
	if wasTrial {
		b.probing = false
	}

	if !trips(ctx, err) {
		if wasTrial && err == nil {
			b.transition(BreakerClosed)
		}
		if err == nil {
			b.failures = 0
		}
		return
	}

	b.failures++
	if wasTrial || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		if b.state != BreakerOpen {
			b.transition(BreakerOpen)
		}
	}
}

// trips reports whether err counts as a scorer failure. Failures after the
// caller cancelled do not.
func trips(ctx context.Context, err error) bool {
	if err == nil || KindOf(err) == "" || KindOf(err) == KindUnavailable {
		return false
	}
	return !errors.Is(ctx.Err(), context.Canceled)
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	zap.L().Warn("scorer: breaker state change",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("consecutive_failures", b.failures),
	)
}
