package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

const (
	failoverStickyAfter     = 60 * time.Second
	failoverInitialCooldown = 60 * time.Second
	failoverMaxCooldown     = 5 * time.Minute
)

// failoverProvider routes to primary and serves each failed call from
// fallback. The primary keeps getting tried per call until its failures
// have persisted for a minute; only then is it benched for a cooldown
// window, starting at one minute and doubling on each re-bench up to five
// minutes.
type failoverProvider struct {
	log      *logger.Logger
	primary  provider
	fallback provider

	mu          sync.Mutex
	firstFail   time.Time
	downUntil   time.Time
	cooldown    time.Duration
	consecFails int
	clock       func() time.Time
}

func newFailoverProvider(log *logger.Logger, primary, fallback provider) *failoverProvider {
	return &failoverProvider{
		log:      log.With("service", "LLMFailover"),
		primary:  primary,
		fallback: fallback,
		cooldown: failoverInitialCooldown,
		clock:    time.Now,
	}
}

func (f *failoverProvider) Name() string  { return f.primary.Name() }
func (f *failoverProvider) Model() string { return f.primary.Model() }

func (f *failoverProvider) primaryAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock().After(f.downUntil)
}

func (f *failoverProvider) markPrimaryFailed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock()
	f.consecFails++
	if f.firstFail.IsZero() {
		f.firstFail = now
	}
	// Transient blips keep retrying the primary on every call.
	if now.Sub(f.firstFail) < failoverStickyAfter {
		return
	}
	cd := f.cooldown
	f.downUntil = now.Add(cd)
	f.log.Warn("primary llm provider failing persistently, benching",
		"cooldown", cd.String(), "consecutive_failures", f.consecFails)
	next := cd * 2
	if next > failoverMaxCooldown {
		next = failoverMaxCooldown
	}
	f.cooldown = next
}

func (f *failoverProvider) markPrimaryHealthy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consecFails = 0
	f.cooldown = failoverInitialCooldown
	f.firstFail = time.Time{}
	f.downUntil = time.Time{}
}

func (f *failoverProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if f.primaryAvailable() {
		resp, err := f.primary.Generate(ctx, req)
		if err == nil {
			f.markPrimaryHealthy()
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		if errors.Is(err, domain.ErrProviderNotRetryable) {
			// Bad request shape fails the same way on any provider.
			return Response{}, err
		}
		f.markPrimaryFailed()
		if f.fallback == nil {
			return Response{}, err
		}
	} else if f.fallback == nil {
		return Response{}, domain.ErrProviderUnavailable
	}
	return f.fallback.Generate(ctx, req)
}
