// Package quota tracks platform upload quota spent across runs within one
// UTC day. The per-run limit flag caps a single invocation; the ledger keeps
// several invocations on the same day from collectively blowing the
// platform's daily budget.
package quota

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger is a Redis-backed daily counter with atomic reserve/release.
// A nil Ledger disables quota tracking.
type Ledger struct {
	client *redis.Client
	prefix string
	daily  int
}

// NewLedger constructs a ledger allowing dailyLimit uploads per UTC day.
func NewLedger(client *redis.Client, channel string, dailyLimit int) *Ledger {
	return &Ledger{
		client: client,
		prefix: "quota:uploads:" + channel + ":",
		daily:  dailyLimit,
	}
}

func (l *Ledger) key(now time.Time) string {
	return l.prefix + now.UTC().Format("2006-01-02")
}

// Reserve consumes one upload from today's budget. Returns whether the
// reservation succeeded and how many uploads remain.
func (l *Ledger) Reserve(ctx context.Context) (bool, int, error) {
	if l == nil || l.daily <= 0 {
		return true, -1, nil
	}
	res, err := reserveScript.Run(ctx, l.client, []string{l.key(time.Now())}, l.daily).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, err
	}
	allowed := arr[0].(int64) == 1
	remaining := int(arr[1].(int64))
	return allowed, remaining, nil
}

// Release returns one reservation to today's budget after an upload that
// never consumed platform quota (e.g. the payload could not be read).
func (l *Ledger) Release(ctx context.Context) error {
	if l == nil || l.daily <= 0 {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key(time.Now())}).Err()
}

// Keys expire two days out so yesterday's ledger survives midnight races
// but nothing accumulates.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local used = tonumber(redis.call('GET', key) or '0')
if used >= limit then
  return {0, 0}
end
used = redis.call('INCR', key)
redis.call('EXPIRE', key, 172800)
return {1, limit - used}
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
local used = tonumber(redis.call('GET', key) or '0')
if used > 0 then
  redis.call('DECR', key)
end
return used
`)
