// Package followers resolves an author's followers for newPost fan-out.
// Backends are chosen by DSN scheme: postgres://, mongodb://, memory://.
package followers

import (
	"context"
	"net/url"
	"strings"
	"time"

	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// Lookup 作者不存在（没有 profile）时返回 ErrLookup
type Lookup interface {
	Followers(ctx context.Context, authorID string) ([]string, error)
}

// Store 带资源释放的 Lookup
type Store interface {
	Lookup
	Close() error
}

type Config struct {
	DSN       string
	Database  string // mongodb 库名
	CacheTTL  time.Duration
	CacheSize uint64
	Timeout   time.Duration
}

// Open 按 DSN 选择后端，CacheTTL > 0 时外包一层缓存
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	u, err := url.Parse(cfg.DSN)
	if err != nil {
		return nil, errs.ErrConfig.WrapMsg("parse followers dsn", "err", err)
	}

	var st Store
	switch strings.ToLower(u.Scheme) {
	case "memory":
		st, err = NewMemoryFromFile(u.Path)
	case "postgres", "postgresql":
		st, err = NewPostgres(ctx, cfg.DSN, cfg.Timeout)
	case "mongodb", "mongodb+srv":
		st, err = NewMongo(ctx, cfg.DSN, cfg.Database, cfg.Timeout)
	default:
		return nil, errs.ErrConfig.WrapMsg("unsupported followers dsn", "scheme", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	log.Info("followers lookup ready", zap.String("backend", u.Scheme), zap.Duration("cacheTtl", cfg.CacheTTL))

	if cfg.CacheTTL > 0 {
		return NewCached(st, cfg.CacheTTL, cfg.CacheSize, cfg.Timeout), nil
	}
	return st, nil
}

func noProfile(authorID string) error {
	return errs.ErrLookup.WrapMsg("author has no profile", "author", authorID)
}
