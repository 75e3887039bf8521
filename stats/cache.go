package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/metrics"
)

// Cache stores JSON-encodable values under string keys.
type Cache interface {
	// Get decodes the value into dst. A miss is (false, nil).
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// NewRedisClient connects to redis and pings it.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisCache is a Cache over a redis client. Values are stored as JSON.
type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete %v: %w", keys, err)
	}
	return nil
}

// =============================================================================
// CACHED AGGREGATOR
// =============================================================================

// Cached serves Aggregator reports from a Cache. Cache failures are logged
// and the report is computed from the stores instead; they never fail a
// request.
//
// Saved calculations and ledger changes drop the affected keys, so a hit is
// never older than the last write that went through this process.
type Cached struct {
	next    *Aggregator
	cache   Cache
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewCached(next *Aggregator, cache Cache, ttl time.Duration, l *zap.Logger, m *metrics.Metrics) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger.OrNop(l), metrics: m}
}

func teacherKey(teacherID int64, year int) string {
	return fmt.Sprintf("stats:teacher:%d:%d", teacherID, year)
}

func vacationKey(year int) string { return fmt.Sprintf("stats:vacations:%d", year) }

func payrollKey(year, month int) string { return fmt.Sprintf("stats:payroll:%d:%02d", year, month) }

func (c *Cached) TeacherYear(ctx context.Context, teacher generic.TeacherProfile, year int) (*YearlyStatistics, error) {
	var out YearlyStatistics
	if c.lookup(ctx, teacherKey(teacher.ID, year), &out) {
		return &out, nil
	}
	ys, err := c.next.TeacherYear(ctx, teacher, year)
	if err != nil {
		return nil, err
	}
	c.store(ctx, teacherKey(teacher.ID, year), ys)
	return ys, nil
}

func (c *Cached) VacationYear(ctx context.Context, year int) (*VacationStatistics, error) {
	var out VacationStatistics
	if c.lookup(ctx, vacationKey(year), &out) {
		return &out, nil
	}
	vs, err := c.next.VacationYear(ctx, year)
	if err != nil {
		return nil, err
	}
	c.store(ctx, vacationKey(year), vs)
	return vs, nil
}

func (c *Cached) MonthlyPayroll(ctx context.Context, year, month int) (*PayrollReport, error) {
	if month < 1 || month > 12 {
		return c.next.MonthlyPayroll(ctx, year, month)
	}
	var out PayrollReport
	if c.lookup(ctx, payrollKey(year, month), &out) {
		return &out, nil
	}
	report, err := c.next.MonthlyPayroll(ctx, year, month)
	if err != nil {
		return nil, err
	}
	c.store(ctx, payrollKey(year, month), report)
	return report, nil
}

// CalculationSaved drops the teacher's year and the month's payroll report.
func (c *Cached) CalculationSaved(ctx context.Context, teacherID int64, on generic.Date) {
	c.invalidate(ctx, teacherKey(teacherID, on.Year()), payrollKey(on.Year(), int(on.Month())))
}

// VacationChanged drops the leave statistics of every year the record
// touches.
func (c *Cached) VacationChanged(ctx context.Context, v generic.VacationRecord) {
	keys := []string{vacationKey(v.StartDate.Year())}
	if v.EndDate.Year() != v.StartDate.Year() {
		keys = append(keys, vacationKey(v.EndDate.Year()))
	}
	c.invalidate(ctx, keys...)
}

func (c *Cached) lookup(ctx context.Context, key string, dst any) bool {
	hit, err := c.cache.Get(ctx, key, dst)
	if err != nil {
		c.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		hit = false
	}
	c.metrics.RecordCacheLookup(hit)
	return hit
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	if err := c.cache.Set(ctx, key, v, c.ttl); err != nil {
		c.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cached) invalidate(ctx context.Context, keys ...string) {
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.logger.Warn("stats cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
