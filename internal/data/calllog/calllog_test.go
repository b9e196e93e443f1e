package calllog

import (
	"context"
	"math"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

func testStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := NewWithDB(logger.NewNop(), db)
	if err != nil {
		t.Fatalf("NewWithDB: %v", err)
	}
	return s
}

func TestRecordAndUsageForDay(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	calls := []*Call{
		{Purpose: "classify", Provider: "primary", Model: "m", TokensIn: 100, TokensOut: 50, CostUSD: 0.01, Success: true, CreatedAt: now},
		{Purpose: "answer", Provider: "primary", Model: "m", TokensIn: 200, TokensOut: 300, CostUSD: 0.02, Success: true, Cached: true, CreatedAt: now},
		{Purpose: "hyde", Provider: "primary", Model: "m", Success: false, Error: "timeout", CreatedAt: now},
		// Yesterday's call must not count toward today.
		{Purpose: "classify", Provider: "primary", Model: "m", TokensIn: 999, Success: true, CreatedAt: now.Add(-25 * time.Hour)},
	}
	for _, c := range calls {
		if err := s.Record(ctx, c); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	usage, err := s.UsageForDay(ctx, now)
	if err != nil {
		t.Fatalf("UsageForDay: %v", err)
	}
	if usage.Calls != 3 {
		t.Fatalf("calls: want 3 got %d", usage.Calls)
	}
	if usage.TokensIn != 300 || usage.TokensOut != 350 {
		t.Fatalf("tokens: in=%d out=%d", usage.TokensIn, usage.TokensOut)
	}
	if math.Abs(usage.CostUSD-0.03) > 1e-9 {
		t.Fatalf("cost: want 0.03 got %f", usage.CostUSD)
	}
	if usage.CacheHits != 1 {
		t.Fatalf("cache hits: want 1 got %d", usage.CacheHits)
	}
	if usage.Failures != 1 {
		t.Fatalf("failures: want 1 got %d", usage.Failures)
	}
}

func TestUsageForEmptyDay(t *testing.T) {
	s := testStore(t)
	usage, err := s.UsageForDay(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("UsageForDay: %v", err)
	}
	if usage.Calls != 0 || usage.TokensIn != 0 || usage.TokensOut != 0 {
		t.Fatalf("empty day should aggregate to zero: %+v", usage)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		err := s.Record(ctx, &Call{
			Purpose:   "classify",
			Provider:  "primary",
			Model:     "m",
			Success:   true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("limit 3: got %d", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].CreatedAt.After(recent[i-1].CreatedAt) {
			t.Fatalf("recent not ordered newest first")
		}
	}
}

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	s := testStore(t)
	call := &Call{Purpose: "answer", Provider: "primary", Model: "m", Success: true}
	if err := s.Record(context.Background(), call); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if call.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("Record should assign an id")
	}
	if call.CreatedAt.IsZero() {
		t.Fatalf("Record should stamp CreatedAt")
	}
}
