package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"magabot/internal/models"
)

// slidingWindowScript checks and records one request against both sorted sets.
// KEYS[1] user window, KEYS[2] global window.
// ARGV: now_ms, window_ms, user_limit, global_limit, member.
// Returns {code, retry_after_ms}: 0 allowed, 1 per-user, 2 global.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local userLimit = tonumber(ARGV[3])
local globalLimit = tonumber(ARGV[4])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", now - window)

local function retryAfter(key, limit)
	local count = redis.call("ZCARD", key)
	local entry = redis.call("ZRANGE", key, count - limit, count - limit, "WITHSCORES")
	if entry[2] == nil then
		return window
	end
	return tonumber(entry[2]) + window - now
end

if userLimit > 0 and redis.call("ZCARD", KEYS[1]) >= userLimit then
	return {1, retryAfter(KEYS[1], userLimit)}
end
if globalLimit > 0 and redis.call("ZCARD", KEYS[2]) >= globalLimit then
	return {2, retryAfter(KEYS[2], globalLimit)}
end

redis.call("ZADD", KEYS[1], now, ARGV[5])
redis.call("ZADD", KEYS[2], now, ARGV[5])
redis.call("PEXPIRE", KEYS[1], window)
redis.call("PEXPIRE", KEYS[2], window)
return {0, 0}
`)

// RedisBackend keeps sliding windows in Redis sorted sets so several
// instances share one set of ceilings
type RedisBackend struct {
	client redis.Scripter
	prefix string
}

// NewRedisBackend creates a Redis-backed window store. Keys are namespaced under prefix.
func NewRedisBackend(client redis.Scripter, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "magabot:guard"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// Keys returns the user and global sorted-set keys for a class
func (r *RedisBackend) Keys(userID string, class models.LatencyClass) (string, string) {
	// Hash tag keeps both keys on one cluster slot so the script stays atomic
	return fmt.Sprintf("{%s}:%s:user:%s", r.prefix, class, userID),
		fmt.Sprintf("{%s}:%s:global", r.prefix, class)
}

// Check implements Backend
func (r *RedisBackend) Check(ctx context.Context, userID string, class models.LatencyClass, limits Limits, now time.Time) (Decision, error) {
	userKey, globalKey := r.Keys(userID, class)
	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{userKey, globalKey},
		now.UnixMilli(),
		limits.Window.Milliseconds(),
		limits.PerUser[class],
		limits.Global[class],
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("guard script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("guard script: unexpected reply %v", res)
	}
	return decodeScriptReply(res[0], res[1])
}

func decodeScriptReply(code, retryMs int64) (Decision, error) {
	retry := time.Duration(retryMs) * time.Millisecond
	switch code {
	case 0:
		return Decision{Allowed: true}, nil
	case 1:
		return Decision{Reason: ReasonPerUser, RetryAfter: retry}, nil
	case 2:
		return Decision{Reason: ReasonGlobal, RetryAfter: retry}, nil
	}
	return Decision{}, fmt.Errorf("guard script: unknown code %d", code)
}
