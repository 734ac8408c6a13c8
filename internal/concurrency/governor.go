// Package concurrency implements a process-wide adaptive concurrency
// governor for LLM calls, ported from the original implementation's
// module-level Ark limiter.
package concurrency

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Governor bounds the number of concurrent LLM calls. It starts at
// HighLimit permits and drops to LowLimit after ConsecutiveFailureThreshold
// consecutive connection-like failures, recovering after
// ConsecutiveSuccessThreshold consecutive successes AND a cooldown period
// has elapsed since the drop.
type Governor struct {
	mu   sync.Mutex
	cond *sync.Cond

	highLimit int
	lowLimit  int

	current  int // permits currently issued
	limit    int // current ceiling

	consecutiveFailures int
	consecutiveSuccess  int

	degraded      bool
	degradedSince time.Time

	now func() time.Time
}

const (
	consecutiveFailureThreshold = 4
	consecutiveSuccessThreshold = 6
	recoveryCooldown            = 120 * time.Second
)

// NewGovernor creates a governor with the given high/low permit ceilings.
func NewGovernor(highLimit, lowLimit int) *Governor {
	if highLimit <= 0 {
		highLimit = 4
	}
	if lowLimit <= 0 || lowLimit > highLimit {
		lowLimit = 2
	}
	g := &Governor{highLimit: highLimit, lowLimit: lowLimit, limit: highLimit, now: time.Now}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (g *Governor) Acquire(ctx context.Context) error {
	g.mu.Lock()
	for g.current >= g.limit {
		if ctx.Err() != nil {
			g.mu.Unlock()
			return ctx.Err()
		}
		// sync.Cond doesn't support context cancellation directly; poll via
		// a helper goroutine that wakes the waiter on ctx.Done().
		done := make(chan struct{})
		stop := context.AfterFunc(ctx, func() {
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
			close(done)
		})
		g.cond.Wait()
		stop()
		select {
		case <-done:
		default:
		}
		if ctx.Err() != nil {
			g.mu.Unlock()
			return ctx.Err()
		}
	}
	g.current++
	g.mu.Unlock()
	return nil
}

// Release returns a permit and reports whether the call succeeded, which
// feeds the adaptive threshold logic.
func (g *Governor) Release(err error) {
	g.mu.Lock()
	g.current--
	if err != nil && isConnectionLike(err) {
		g.consecutiveFailures++
		g.consecutiveSuccess = 0
		if g.consecutiveFailures >= consecutiveFailureThreshold && !g.degraded {
			g.limit = g.lowLimit
			g.degraded = true
			g.degradedSince = g.now()
		}
	} else if err == nil {
		g.consecutiveSuccess++
		g.consecutiveFailures = 0
		if g.degraded && g.consecutiveSuccess >= consecutiveSuccessThreshold &&
			g.now().Sub(g.degradedSince) >= recoveryCooldown {
			g.limit = g.highLimit
			g.degraded = false
			g.consecutiveSuccess = 0
		}
	}
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Limit returns the current permit ceiling, for observability.
func (g *Governor) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

var connectionLikeSubstrings = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"eof",
	"i/o timeout",
	"no route to host",
	"context deadline exceeded",
}

func isConnectionLike(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range connectionLikeSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
