package followers

import (
	"context"
	"time"

	"PPRealtime/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// 关注关系在 profile 之间：follows.follower_id / following_id 都指向 profiles.id
const (
	queryHasProfile = `SELECT EXISTS (SELECT 1 FROM profiles WHERE user_id = $1)`
	queryFollowers  = `SELECT fp.user_id::text
FROM profiles ap
JOIN follows f ON f.following_id = ap.id
JOIN profiles fp ON fp.id = f.follower_id
WHERE ap.user_id = $1`
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string, timeout time.Duration) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.ErrConfig.WrapMsg("parse postgres dsn", "err", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(cctx, cfg)
	if err != nil {
		return nil, errs.ErrUnavailable.WrapMsg("postgres connect", "err", err)
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, errs.ErrUnavailable.WrapMsg("postgres ping", "err", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Followers(ctx context.Context, authorID string) ([]string, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, queryHasProfile, authorID).Scan(&exists); err != nil {
		return nil, errs.ErrLookup.WrapMsg("query profile", "author", authorID, "err", err)
	}
	if !exists {
		return nil, noProfile(authorID)
	}

	rows, err := p.pool.Query(ctx, queryFollowers, authorID)
	if err != nil {
		return nil, errs.ErrLookup.WrapMsg("query followers", "author", authorID, "err", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errs.ErrLookup.WrapMsg("scan followers", "author", authorID, "err", err)
	}
	return ids, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
