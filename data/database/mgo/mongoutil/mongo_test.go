package mongoutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"PPRealtime/tools/errs"
)

func TestValidateAndSetDefaults(t *testing.T) {
	c := &Config{Address: []string{"m1:27017", "m2:27017"}, Database: "social", Username: "u", Password: "p@ss"}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, "mongodb://u:p%40ss@m1:27017,m2:27017/social?authSource=social&maxPoolSize=100", c.Uri)
	assert.Equal(t, defaultMaxRetry, c.MaxRetry)
	assert.Equal(t, defaultTimeout, c.Timeout)

	c = &Config{Address: []string{"m1:27017"}, Database: "social", AuthSource: "admin"}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, "mongodb://m1:27017/social?authSource=admin&maxPoolSize=100", c.Uri)

	assert.ErrorIs(t, (&Config{Database: "x"}).ValidateAndSetDefaults(), errs.ErrConfig)
	assert.ErrorIs(t, (&Config{Uri: "mongodb://h"}).ValidateAndSetDefaults(), errs.ErrConfig)
}

func TestClientOptions(t *testing.T) {
	c := &Config{Uri: "mongodb://h:27017", Database: "d", Username: "admin", Password: "pw", AppName: "rt", MaxPoolSize: 5, Timeout: time.Second}
	opts, err := c.clientOptions()
	require.NoError(t, err)
	require.NotNil(t, opts.Auth)
	assert.Equal(t, "admin", opts.Auth.Username)
	assert.Equal(t, uint64(5), *opts.MaxPoolSize)
	assert.Equal(t, "rt", *opts.AppName)
}

func TestShouldRetry(t *testing.T) {
	ctx := context.Background()
	assert.True(t, shouldRetry(ctx, errors.New("connection refused")))
	assert.False(t, shouldRetry(ctx, mongo.CommandError{Code: 18}))
	assert.False(t, shouldRetry(ctx, mongo.CommandError{Code: 13}))
	assert.True(t, shouldRetry(ctx, mongo.CommandError{Code: 91}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, shouldRetry(cancelled, errors.New("x")))
}

func TestBackoffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.False(t, backoff(ctx, 3))
	assert.Less(t, time.Since(start), time.Second)
}
