// Package mongoutil opens a pinged MongoDB client from a Config, retrying
// transient failures.
package mongoutil

import (
	"context"
	"time"

	"PPRealtime/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	Uri         string
	Address     []string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	AppName     string
	MaxPoolSize int
	MaxRetry    int
	Timeout     time.Duration // 连接 + ping 超时
}

func (c *Config) clientOptions() (*options.ClientOptions, error) {
	opts := options.Client().ApplyURI(c.Uri).
		SetMaxPoolSize(uint64(c.MaxPoolSize)).
		SetServerSelectionTimeout(c.Timeout)
	if c.AppName != "" {
		opts.SetAppName(c.AppName)
	}
	// 单独给了用户名时覆盖 URI 中的认证
	if c.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   c.Username,
			Password:   c.Password,
			AuthSource: c.AuthSource,
		})
	}
	if err := opts.Validate(); err != nil {
		return nil, errs.ErrConfig.WrapMsg("mongo options", "err", err)
	}
	return opts, nil
}

type Client struct {
	cli *mongo.Client
	db  *mongo.Database
}

func (c *Client) DB() *mongo.Database { return c.db }

func (c *Client) Collection(name string) *mongo.Collection { return c.db.Collection(name) }

func (c *Client) Close(ctx context.Context) error { return c.cli.Disconnect(ctx) }

// Open 连接并 ping；认证类错误不重试
func Open(ctx context.Context, cfg *Config) (*Client, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	opts, err := cfg.clientOptions()
	if err != nil {
		return nil, err
	}

	var cli *mongo.Client
	for attempt := 0; ; attempt++ {
		cli, err = connect(ctx, opts, cfg.Timeout)
		if err == nil {
			break
		}
		if attempt+1 >= cfg.MaxRetry || !shouldRetry(ctx, err) || !backoff(ctx, attempt) {
			return nil, errs.ErrUnavailable.WrapMsg("connect mongo", "database", cfg.Database, "attempts", attempt+1, "err", err)
		}
	}
	return &Client{cli: cli, db: cli.Database(cfg.Database)}, nil
}

func connect(ctx context.Context, opts *options.ClientOptions, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return cli, nil
}
