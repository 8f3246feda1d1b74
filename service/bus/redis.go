package bus

import (
	"context"
	"sync"

	rds "PPRealtime/service/storage/redis"
	"PPRealtime/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus Redis PUBLISH/SUBSCRIBE，频道名即事件名
type RedisBus struct {
	rdb *redis.Client
	log *zap.Logger

	mu   sync.Mutex
	subs []*redis.PubSub
	wg   sync.WaitGroup
}

func NewRedisBus(ctx context.Context, rawURL string, log *zap.Logger) (*RedisBus, error) {
	opts, err := rds.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb, err := rds.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &RedisBus{rdb: rdb, log: log}, nil
}

func (b *RedisBus) Name() string { return "redis" }

// Client 供 presence 复用同一连接池
func (b *RedisBus) Client() *redis.Client { return b.rdb }

func (b *RedisBus) Publish(ctx context.Context, channel string, data []byte) error {
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return errs.ErrUnavailable.WrapMsg("redis publish", "channel", channel, "err", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channels []string, h Handler) error {
	ps := b.rdb.Subscribe(ctx, channels...)
	// 等订阅确认，保证返回后不会漏掉随后发布的消息
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return errs.ErrUnavailable.WrapMsg("redis subscribe", "channels", channels, "err", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	ch := ps.Channel(redis.WithChannelSize(1024))
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				h(ctx, Message{Channel: m.Channel, Data: []byte(m.Payload)})
			case <-ctx.Done():
				_ = ps.Close()
				return
			}
		}
	}()
	b.log.Info("redis subscribed", zap.Strings("channels", channels))
	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
	b.wg.Wait()
	return b.rdb.Close()
}
