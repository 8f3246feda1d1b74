// Package storage keeps per-user presence records in Redis so other
// services can tell which gateway node a user is connected to.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const presencePrefix = "rt:presence:"

func PresenceKey(userID string) string { return presencePrefix + userID }

// 只删除自己节点写入的记录
var delIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type presenceStore interface {
	Set(ctx context.Context, key, node string, ttl time.Duration) error
	Refresh(ctx context.Context, keys []string, node string, ttl time.Duration) error
	DelIfOwner(ctx context.Context, key, node string) error
	Get(ctx context.Context, key string) (string, bool, error)
}

type redisPresenceStore struct {
	rdb redis.UniversalClient
}

func (s redisPresenceStore) Set(ctx context.Context, key, node string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, node, ttl).Err()
}

func (s redisPresenceStore) Refresh(ctx context.Context, keys []string, node string, ttl time.Duration) error {
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Set(ctx, k, node, ttl)
		}
		return nil
	})
	return err
}

func (s redisPresenceStore) DelIfOwner(ctx context.Context, key, node string) error {
	return delIfOwner.Run(ctx, s.rdb, []string{key}, node).Err()
}

func (s redisPresenceStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Presence 实现 chat.PresenceObserver。
// 回调只改本地集合并登记待写状态（每用户只保留最新一次），单协程写 Redis；
// 失败只记日志，不影响连接。
type Presence struct {
	store presenceStore
	node  string
	ttl   time.Duration
	log   *zap.Logger

	mu      sync.Mutex
	online  map[string]struct{}
	pending map[string]bool // user -> 期望状态，true 在线
	wake    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewPresence(rdb redis.UniversalClient, node string, ttl time.Duration, log *zap.Logger) *Presence {
	return newPresence(redisPresenceStore{rdb: rdb}, node, ttl, log)
}

func newPresence(store presenceStore, node string, ttl time.Duration, log *zap.Logger) *Presence {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Presence{
		store:   store,
		node:    node,
		ttl:     ttl,
		log:     log,
		online:  make(map[string]struct{}),
		pending: make(map[string]bool),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (p *Presence) UserOnline(userID string)  { p.mark(userID, true) }
func (p *Presence) UserOffline(userID string) { p.mark(userID, false) }

// mark 不阻塞：在 registry 锁内被调用
func (p *Presence) mark(userID string, online bool) {
	p.mu.Lock()
	if online {
		p.online[userID] = struct{}{}
	} else {
		delete(p.online, userID)
	}
	p.pending[userID] = online
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start 启动写协程和续期，续期间隔为 ttl/3
func (p *Presence) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.run(ctx, p.ttl/3)
	})
}

func (p *Presence) run(ctx context.Context, every time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-p.wake:
			p.drain(ctx)
		case <-ticker.C:
			p.drain(ctx)
			p.refresh(ctx)
		case <-ctx.Done():
			p.flush(context.Background())
			return
		case <-p.done:
			p.flush(context.Background())
			return
		}
	}
}

func (p *Presence) takePending() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	out := p.pending
	p.pending = make(map[string]bool)
	return out
}

func (p *Presence) drain(ctx context.Context) {
	for user, online := range p.takePending() {
		p.apply(ctx, user, online)
	}
}

func (p *Presence) apply(ctx context.Context, user string, online bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	key := PresenceKey(user)
	if online {
		if err := p.store.Set(ctx, key, p.node, p.ttl); err != nil {
			p.log.Warn("presence set failed", zap.String("user", user), zap.Error(err))
		}
		return
	}
	if err := p.store.DelIfOwner(ctx, key, p.node); err != nil {
		p.log.Warn("presence del failed", zap.String("user", user), zap.Error(err))
	}
}

func (p *Presence) onlineKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.online))
	for u := range p.online {
		keys = append(keys, PresenceKey(u))
	}
	return keys
}

// refresh 按本地在线集合续期，写失败的记录也在这里补上
func (p *Presence) refresh(ctx context.Context) {
	keys := p.onlineKeys()
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.store.Refresh(ctx, keys, p.node, p.ttl); err != nil {
		p.log.Warn("presence refresh failed", zap.Int("users", len(keys)), zap.Error(err))
	}
}

// flush 写完待处理状态后，清掉本节点仍在线用户的记录
func (p *Presence) flush(ctx context.Context) {
	p.drain(ctx)
	p.mu.Lock()
	users := make([]string, 0, len(p.online))
	for u := range p.online {
		users = append(users, u)
	}
	p.mu.Unlock()
	for _, u := range users {
		p.apply(ctx, u, false)
	}
}

// Lookup 返回用户所在节点
func (p *Presence) Lookup(ctx context.Context, userID string) (string, bool, error) {
	return p.store.Get(ctx, PresenceKey(userID))
}

// Close 停止写协程并删除本节点的在线记录
func (p *Presence) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}
