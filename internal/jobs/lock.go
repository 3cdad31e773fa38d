package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is a distributed mutual exclusion lock
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) (bool, error)
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLock holds locks in Redis under the instance's id
type RedisLock struct {
	client     redis.Cmdable
	instanceID string
}

// NewRedisLock creates a lock owned by instanceID
func NewRedisLock(client redis.Cmdable, instanceID string) *RedisLock {
	return &RedisLock{client: client, instanceID: instanceID}
}

// Acquire takes the lock unless another instance holds it
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, l.instanceID, ttl).Result()
}

// Release drops the lock if this instance still holds it
func (l *RedisLock) Release(ctx context.Context, key string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{key}, l.instanceID).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
