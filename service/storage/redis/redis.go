package redis

import (
	"context"
	"time"

	"PPRealtime/tools/errs"

	"github.com/redis/go-redis/v9"
)

// ParseURL redis://[:password@]host:port/db 或 rediss://
func ParseURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, errs.ErrConfig.WrapMsg("parse redis url", "err", err)
	}
	return opts, nil
}

// Open 创建客户端并 Ping，失败时关闭客户端
func Open(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.ErrUnavailable.WrapMsg("redis ping", "addr", opts.Addr, "err", err)
	}
	return rdb, nil
}
