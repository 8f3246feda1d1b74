package followers

import (
	"context"
	"time"

	"PPRealtime/tools/errs"

	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

var cacheResults = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rt_gateway_followers_cache_total",
		Help: "Followers cache lookups by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(cacheResults)
}

const defaultFetchTimeout = 3 * time.Second

// Cached 关注列表 TTL 缓存；失败不缓存，同一作者并发未命中只回源一次。
// 回源不受发起者 ctx 取消影响，只受 fetchTimeout 约束；每个调用方按自己的 ctx 等待结果。
type Cached struct {
	inner        Store
	cache        *ttlcache.Cache[string, []string]
	group        singleflight.Group
	fetchTimeout time.Duration
}

func NewCached(inner Store, ttl time.Duration, capacity uint64, fetchTimeout time.Duration) *Cached {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	opts := []ttlcache.Option[string, []string]{
		ttlcache.WithTTL[string, []string](ttl),
		ttlcache.WithDisableTouchOnHit[string, []string](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []string](capacity))
	}
	c := &Cached{inner: inner, cache: ttlcache.New[string, []string](opts...), fetchTimeout: fetchTimeout}
	go c.cache.Start()
	return c
}

func (c *Cached) Followers(ctx context.Context, authorID string) ([]string, error) {
	if item := c.cache.Get(authorID); item != nil {
		cacheResults.WithLabelValues("hit").Inc()
		return item.Value(), nil
	}
	cacheResults.WithLabelValues("miss").Inc()

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(authorID, func() (any, error) {
		fctx, cancel := context.WithTimeout(fetchCtx, c.fetchTimeout)
		defer cancel()
		ids, err := c.inner.Followers(fctx, authorID)
		if err != nil {
			return nil, err
		}
		c.cache.Set(authorID, ids, ttlcache.DefaultTTL)
		return ids, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			cacheResults.WithLabelValues("error").Inc()
			return nil, res.Err
		}
		return res.Val.([]string), nil
	case <-ctx.Done():
		cacheResults.WithLabelValues("error").Inc()
		return nil, errs.ErrLookup.WrapMsg("followers lookup canceled", "author", authorID, "err", ctx.Err())
	}
}

// Invalidate 关注关系变更时调用
func (c *Cached) Invalidate(authorID string) { c.cache.Delete(authorID) }

func (c *Cached) Close() error {
	c.cache.Stop()
	return c.inner.Close()
}
