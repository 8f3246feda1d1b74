package natsx

import (
	"context"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Msg 收到的消息；ID 取自 Nats-Msg-Id 头，可能为空
type Msg struct {
	Subject string
	Data    []byte
	ID      string
}

// Handler JetStream 模式下返回 nil 才 ACK
type Handler func(ctx context.Context, m Msg) error

type Middleware func(Handler) Handler

// Chain 第一个中间件在最外层
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type SeenStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// SeenCache 单进程去重表，过期由 ttlcache 清理
type SeenCache struct {
	cache *ttlcache.Cache[string, struct{}]
}

func NewSeenCache(ttl time.Duration, capacity uint64) *SeenCache {
	opts := []ttlcache.Option[string, struct{}]{
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, struct{}](capacity))
	}
	sc := &SeenCache{cache: ttlcache.New[string, struct{}](opts...)}
	go sc.cache.Start()
	return sc
}

func (sc *SeenCache) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	_, found := sc.cache.GetOrSet(key, struct{}{}, ttlcache.WithTTL[string, struct{}](ttl))
	return found, nil
}

func (sc *SeenCache) Close() { sc.cache.Stop() }

// Dedup 跳过重复投递（JS 重投、发布端重试）。
// 无 ID 时用 subject+内容 作弱ID。
func Dedup(store SeenStore, ttl time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m Msg) error {
			key := m.ID
			if key == "" {
				key = m.Subject + "|" + strings.TrimSpace(string(m.Data))
			}
			if seen, _ := store.SeenOnce(key, ttl); seen {
				return nil
			}
			return next(ctx, m)
		}
	}
}
