package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OfferLocker 以岗位为粒度串行化级联与奖励发放。
// Lock 拿不到锁时返回 ErrCascadeBusy，调用方整体重试，绝不半途执行。
type OfferLocker interface {
	Lock(ctx context.Context, offerID uint) (release func(), err error)
}

const (
	offerLockKeyPrefix = "engine:offer-lock:"
	offerLockTTL       = 30 * time.Second
)

// 释放时校验持有者再删除，避免误删他人续期后的锁。
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOfferLocker 基于 SETNX 的跨进程互斥，多副本部署使用。
type RedisOfferLocker struct {
	client redis.UniversalClient
}

// NewRedisOfferLocker 构造 Redis 锁。
func NewRedisOfferLocker(client redis.UniversalClient) *RedisOfferLocker {
	return &RedisOfferLocker{client: client}
}

// Lock 实现 OfferLocker。
func (l *RedisOfferLocker) Lock(ctx context.Context, offerID uint) (func(), error) {
	key := fmt.Sprintf("%s%d", offerLockKeyPrefix, offerID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, offerLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire offer lock %q: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: offer %d", ErrCascadeBusy, offerID)
	}

	release := func() {
		// 释放失败只能靠 TTL 兜底，不阻塞主流程。
		_ = releaseLockScript.Run(context.Background(), l.client, []string{key}, token).Err()
	}
	return release, nil
}

// LocalOfferLocker 进程内互斥，单副本部署与测试使用。
type LocalOfferLocker struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewLocalOfferLocker 构造进程内锁。
func NewLocalOfferLocker() *LocalOfferLocker {
	return &LocalOfferLocker{locks: make(map[uint]*sync.Mutex)}
}

// Lock 实现 OfferLocker。
func (l *LocalOfferLocker) Lock(_ context.Context, offerID uint) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[offerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[offerID] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, fmt.Errorf("%w: offer %d", ErrCascadeBusy, offerID)
	}
	return m.Unlock, nil
}
