package calllog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// Call is one upstream model invocation. Rows back the daily token budget
// and the /llm/usage endpoint.
type Call struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID   string    `gorm:"column:request_id;index" json:"request_id"`
	Purpose     string    `gorm:"column:purpose;not null" json:"purpose"`
	Provider    string    `gorm:"column:provider;not null" json:"provider"`
	Model       string    `gorm:"column:model;not null" json:"model"`
	PromptChars int       `gorm:"column:prompt_chars" json:"prompt_chars"`
	TokensIn    int       `gorm:"column:tokens_in" json:"tokens_in"`
	TokensOut   int       `gorm:"column:tokens_out" json:"tokens_out"`
	CostUSD     float64   `gorm:"column:cost_usd" json:"cost_usd"`
	Cached      bool      `gorm:"column:cached;not null" json:"cached"`
	Success     bool      `gorm:"column:success;not null" json:"success"`
	Error       string    `gorm:"column:error" json:"error,omitempty"`
	LatencyMS   int64     `gorm:"column:latency_ms" json:"latency_ms"`
	CreatedAt   time.Time `gorm:"index;not null" json:"created_at"`
}

func (Call) TableName() string { return "llm_call_log" }

// DailyUsage is the aggregate the budget guard reads.
type DailyUsage struct {
	Day       string  `json:"day"`
	Calls     int64   `json:"calls"`
	TokensIn  int64   `json:"tokens_in"`
	TokensOut int64   `json:"tokens_out"`
	CostUSD   float64 `json:"cost_usd"`
	CacheHits int64   `json:"cache_hits"`
	Failures  int64   `json:"failures"`
}

type Store interface {
	Record(ctx context.Context, call *Call) error
	UsageForDay(ctx context.Context, day time.Time) (DailyUsage, error)
	Recent(ctx context.Context, limit int) ([]Call, error)
}

type store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open connects per CALLLOG_DSN. A postgres:// DSN uses the postgres
// driver; anything else is treated as a sqlite path, defaulting to an
// on-disk file next to the data dir so the budget survives restarts.
func Open(log *logger.Logger) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	dsn := envutil.Str("CALLLOG_DSN", "lawgraph_calllog.db")

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open call log db: %w", err)
	}
	if err := db.AutoMigrate(&Call{}); err != nil {
		return nil, fmt.Errorf("migrate call log db: %w", err)
	}
	return &store{db: db, log: log.With("service", "CallLogStore")}, nil
}

// NewWithDB wires an existing gorm handle, used by tests.
func NewWithDB(log *logger.Logger, db *gorm.DB) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := db.AutoMigrate(&Call{}); err != nil {
		return nil, err
	}
	return &store{db: db, log: log.With("service", "CallLogStore")}, nil
}

func (s *store) Record(ctx context.Context, call *Call) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(call).Error; err != nil {
		// Accounting must never fail a user request.
		s.log.Warn("call log write failed", "error", err)
		return err
	}
	return nil
}

func (s *store) UsageForDay(ctx context.Context, day time.Time) (DailyUsage, error) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var row struct {
		Calls     int64
		TokensIn  int64
		TokensOut int64
		CostUSD   float64
		CacheHits int64
		Failures  int64
	}
	err := s.db.WithContext(ctx).
		Model(&Call{}).
		Select(
			"COUNT(*) AS calls, "+
				"COALESCE(SUM(tokens_in),0) AS tokens_in, "+
				"COALESCE(SUM(tokens_out),0) AS tokens_out, "+
				"COALESCE(SUM(cost_usd),0) AS cost_usd, "+
				"COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END),0) AS cache_hits, "+
				"COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END),0) AS failures").
		Where("created_at >= ? AND created_at < ?", start, end).
		Scan(&row).Error
	if err != nil {
		return DailyUsage{}, err
	}
	return DailyUsage{
		Day:       start.Format("2006-01-02"),
		Calls:     row.Calls,
		TokensIn:  row.TokensIn,
		TokensOut: row.TokensOut,
		CostUSD:   row.CostUSD,
		CacheHits: row.CacheHits,
		Failures:  row.Failures,
	}, nil
}

func (s *store) Recent(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	var calls []Call
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}
