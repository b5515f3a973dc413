package data

import (
	"context"
	"fmt"
	"time"

	"DocketWatch/pkg/registry"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// telemetryKeyPrefix namespaces the live counters in Redis.
const telemetryKeyPrefix = "telemetry:"

// telemetryCounterTTL expires live counters so a restarted dashboard starts
// from a clean slate.
const telemetryCounterTTL = 48 * time.Hour

// RegistryCallLog is the GORM model for the registry_call_log table.
type RegistryCallLog struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Group      string    `gorm:"column:service_group;type:varchar(32);not null;index"`
	Operation  string    `gorm:"column:operation;type:varchar(64);not null"`
	CaseKey    string    `gorm:"column:case_key;type:varchar(64);index"`
	Success    bool      `gorm:"column:success;not null"`
	ErrorKind  string    `gorm:"column:error_kind;type:varchar(32)"`
	DurationMs int64     `gorm:"column:duration_ms;not null"`
	CalledAt   time.Time `gorm:"column:called_at;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (RegistryCallLog) TableName() string {
	return "registry_call_log"
}

// TelemetrySink implements registry.TelemetrySink. Records arrive on the
// gateway's side channel, already off the critical path, so writes here are
// synchronous; every failure is logged and swallowed.
type TelemetrySink struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *log.Helper
}

// NewTelemetrySink creates the telemetry sink.
func NewTelemetrySink(db *gorm.DB, rdb *redis.Client, logger log.Logger) *TelemetrySink {
	return &TelemetrySink{
		db:     db,
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// Record persists one call outcome, best effort.
func (s *TelemetrySink) Record(rec registry.CallRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := RegistryCallLog{
		Group:      rec.Group,
		Operation:  rec.Operation,
		CaseKey:    rec.CaseKey,
		Success:    rec.Success,
		ErrorKind:  rec.ErrorKind,
		DurationMs: rec.Duration.Milliseconds(),
		CalledAt:   rec.At,
	}
	if s.db != nil {
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			s.logger.Warnw("failed to write call log",
				"operation", rec.Operation,
				"case_key", rec.CaseKey,
				"error", err)
		}
	}

	s.bumpCounters(ctx, rec)
}

// bumpCounters maintains live per-day counters in Redis for dashboards.
// Redis being down degrades to nothing; the call log row is the durable record.
func (s *TelemetrySink) bumpCounters(ctx context.Context, rec registry.CallRecord) {
	if s.rdb == nil {
		return
	}

	day := rec.At.UTC().Format("2006-01-02")
	outcome := "success"
	if !rec.Success {
		outcome = "failure"
	}
	key := fmt.Sprintf("%s%s:%s:%s", telemetryKeyPrefix, day, rec.Group, outcome)

	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Warnw("failed to bump telemetry counter (degraded mode)",
			"key", key,
			"error", err)
		return
	}
	if count == 1 {
		s.rdb.Expire(ctx, key, telemetryCounterTTL)
	}
}
