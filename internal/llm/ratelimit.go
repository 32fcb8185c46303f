package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/paperflow/internal/service"
)

// rateLimitedClient wraps a client with a token bucket so burst traffic
// never exceeds the provider's request budget.
type rateLimitedClient struct {
	inner   service.LLMClient
	limiter *rateLimiter
}

func newRateLimitedClient(inner service.LLMClient, requestsPerMinute int) *rateLimitedClient {
	return &rateLimitedClient{
		inner:   inner,
		limiter: newRateLimiter(requestsPerMinute),
	}
}

func (c *rateLimitedClient) Complete(ctx context.Context, req service.ChatRequest) (service.ChatResponse, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return service.ChatResponse{}, err
	}
	return c.inner.Complete(ctx, req)
}

// rateLimiter implements a simple token bucket.
type rateLimiter struct {
	lastRefill time.Time
	stopCh     chan struct{}
	tokens     int
	capacity   int
	refillRate int
	mu         sync.Mutex
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	rl := &rateLimiter{
		tokens:     requestsPerMinute,
		capacity:   requestsPerMinute,
		refillRate: requestsPerMinute,
		lastRefill: time.Now(),
		stopCh:     make(chan struct{}),
	}
	go rl.refill()
	return rl
}

// wait blocks until a token is available or the context is canceled.
func (rl *rateLimiter) wait(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if rl.tryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (rl *rateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

func (rl *rateLimiter) refill() {
	ticker := time.NewTicker(time.Minute / time.Duration(rl.refillRate))
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			if rl.tokens < rl.capacity {
				rl.tokens++
			}
			rl.mu.Unlock()
		}
	}
}

// Close stops the refill goroutine.
func (rl *rateLimiter) Close() {
	close(rl.stopCh)
}
