package llm

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/lawgraph-backend/internal/data/calllog"
	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// budgetGuard enforces a daily token ceiling. It tracks usage in memory
// for the current UTC day, seeded from the call log so restarts do not
// reset the counter. A zero limit disables the guard.
type budgetGuard struct {
	log   *logger.Logger
	limit int64
	clock func() time.Time

	mu     sync.Mutex
	day    string
	used   int64
	warned bool
}

func newBudgetGuard(ctx context.Context, log *logger.Logger, store calllog.Store, limit int64) *budgetGuard {
	g := &budgetGuard{
		log:   log.With("service", "LLMBudget"),
		limit: limit,
		clock: time.Now,
	}
	if limit <= 0 || store == nil {
		return g
	}
	now := g.clock().UTC()
	g.day = now.Format("2006-01-02")
	if usage, err := store.UsageForDay(ctx, now); err != nil {
		g.log.Warn("could not seed budget from call log", "error", err)
	} else {
		g.used = usage.TokensIn + usage.TokensOut
	}
	return g
}

// Allow returns ErrBudgetExhausted once the day's spend reaches the limit.
func (g *budgetGuard) Allow() error {
	if g.limit <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked()
	if g.used >= g.limit {
		return domain.ErrBudgetExhausted
	}
	return nil
}

// Commit records actual spend after a call and logs once at 80%.
func (g *budgetGuard) Commit(tokens int64) {
	if g.limit <= 0 || tokens <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked()
	g.used += tokens
	if !g.warned && g.used*5 >= g.limit*4 {
		g.warned = true
		g.log.Warn("llm daily budget nearing limit",
			"used_tokens", g.used, "limit_tokens", g.limit)
	}
}

func (g *budgetGuard) Usage() (used, limit int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked()
	return g.used, g.limit
}

func (g *budgetGuard) rollDayLocked() {
	day := g.clock().UTC().Format("2006-01-02")
	if day != g.day {
		g.day = day
		g.used = 0
		g.warned = false
	}
}
