package mongoutil

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PPRealtime/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
	defaultTimeout     = 5 * time.Second
	retryBase          = 500 * time.Millisecond
)

// 13 Unauthorized, 18 AuthenticationFailed
var fatalCodes = map[int32]struct{}{13: {}, 18: {}}

// buildMongoURI authSource 缺省为库名；用户名密码做 URL 转义
func buildMongoURI(c *Config) string {
	authSource := c.AuthSource
	if authSource == "" {
		authSource = c.Database
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   strings.Join(c.Address, ","),
		Path:   "/" + c.Database,
		RawQuery: url.Values{
			"authSource":  {authSource},
			"maxPoolSize": {strconv.Itoa(c.MaxPoolSize)},
		}.Encode(),
	}
	if c.Username != "" && c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u.String()
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		_, fatal := fatalCodes[cmdErr.Code]
		return !fatal
	}
	return true
}

// backoff 第 n 次重试前等待 retryBase * 2^n，ctx 结束提前返回 false
func backoff(ctx context.Context, attempt int) bool {
	t := time.NewTimer(retryBase << attempt)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ValidateAndSetDefaults validates the configuration and sets default values.
func (c *Config) ValidateAndSetDefaults() error {
	if c.Uri == "" && len(c.Address) == 0 {
		return errs.ErrConfig.WrapMsg("either Uri or Address must be provided")
	}
	if c.Database == "" {
		return errs.ErrConfig.WrapMsg("database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Uri == "" {
		c.Uri = buildMongoURI(c)
	}
	return nil
}
