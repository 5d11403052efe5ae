package api

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// 登录限流按 IP+邮箱+小时分桶计数。
const loginRateKeyPrefix = "unimatch:rate:login:"

type rateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// loginRateKey 构造当前小时的限流桶键。
func loginRateKey(ip, email string, now time.Time) string {
	return loginRateKeyPrefix + ip + ":" + strings.ToLower(email) + ":" + now.UTC().Format("2006010215")
}

// incrWithTTL 自增计数，首次创建时设置过期时间。
func incrWithTTL(ctx context.Context, client rateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}
