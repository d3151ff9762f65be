// Package guest meters unauthenticated generations. Guests never touch the
// coin ledger; they get a small per-IP daily allowance tracked in Redis.
package guest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Allowance struct {
	rdb   *redis.Client
	limit int
}

func NewAllowance(rdb *redis.Client, limit int) *Allowance {
	return &Allowance{rdb: rdb, limit: limit}
}

// Limit returns the configured daily cap.
func (a *Allowance) Limit() int {
	return a.limit
}

// Consume takes one unit of today's allowance for the client. It returns the
// count used so far today; ok is false when the cap was already reached, in
// which case nothing is consumed.
func (a *Allowance) Consume(ctx context.Context, clientIP string) (ok bool, used int, err error) {
	now := time.Now().UTC()
	key := dayKey(clientIP, now)

	count, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr guest counter: %w", err)
	}
	if count == 1 {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
		if err := a.rdb.ExpireAt(ctx, key, midnight).Err(); err != nil {
			return false, 0, fmt.Errorf("expire guest counter: %w", err)
		}
	}

	if int(count) > a.limit {
		// Undo the overshoot so the stored count stays at the cap.
		_ = a.rdb.Decr(ctx, key).Err()
		return false, a.limit, nil
	}
	return true, int(count), nil
}

// Return gives one unit back after the metered operation itself failed, so an
// upstream outage does not burn a guest's whole day.
func (a *Allowance) Return(ctx context.Context, clientIP string) error {
	key := dayKey(clientIP, time.Now().UTC())
	if err := a.rdb.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("decr guest counter: %w", err)
	}
	return nil
}

func dayKey(clientIP string, now time.Time) string {
	return fmt.Sprintf("guest:%s:%s", clientIP, now.Format("2006-01-02"))
}
