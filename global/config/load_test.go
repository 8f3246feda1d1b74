package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"PPRealtime/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRemote struct {
	content string
	err     error
}

func (s staticRemote) Fetch() (string, error) { return s.content, s.err }

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaultsNeedSecret(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfig))
	assert.Contains(t, err.Error(), "tokenSecret is required")
}

func TestLoadFileThenEnv(t *testing.T) {
	p := writeFile(t, `
brokerUrl: nats://127.0.0.1:4222
tokenSecret: from-file
allowedOrigin: https://app.example.com
listenPort: 9000
followers:
  dsn: postgres://u:p@localhost:5432/social
  cacheTtl: 1m
conn:
  pongWait: 30s
`)
	t.Setenv("RT_LISTEN_PORT", "9100")
	t.Setenv("RT_TOKEN_SECRET", "from-env")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.BrokerURL)
	assert.Equal(t, "nats", cfg.BrokerScheme())
	assert.Equal(t, "from-env", cfg.TokenSecret)
	assert.Equal(t, 9100, cfg.ListenPort)
	assert.Equal(t, ":9100", cfg.Address())
	assert.Equal(t, "https://app.example.com", cfg.AllowedOrigin)
	assert.Equal(t, time.Minute, cfg.Followers.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Conn.PongWait)
	assert.Equal(t, 10*time.Second, cfg.Conn.WriteWait)
}

func TestLoadRemoteOverlay(t *testing.T) {
	t.Setenv("RT_TOKEN_SECRET", "s")
	t.Setenv("RT_ALLOWED_ORIGIN", "https://env.example.com")

	cfg, err := LoadWith("", staticRemote{content: "allowedOrigin: https://remote.example.com\nfanout:\n  workers: 3\n"})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Fanout.Workers)
	assert.Equal(t, "https://env.example.com", cfg.AllowedOrigin)

	_, err = LoadWith("", staticRemote{err: errors.New("down")})
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := &AppConfig{}
	setDefaults(cfg)
	cfg.TokenSecret = "s"
	cfg.BrokerURL = "amqp://localhost"
	cfg.Followers.DSN = "mysql://x"
	cfg.Fanout.Workers = 0
	cfg.Log.Level = "trace"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "invalid brokerUrl")
	assert.Contains(t, msg, "invalid followers dsn scheme")
	assert.Contains(t, msg, "fanout workers must be positive")
	assert.Contains(t, msg, "invalid log level")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestNacosEnabled(t *testing.T) {
	assert.False(t, NacosConfig{Addr: "127.0.0.1"}.Enabled())
	assert.True(t, NacosConfig{Addr: "127.0.0.1", DataID: "gateway.yaml"}.Enabled())
}

func TestInstanceName(t *testing.T) {
	c := &AppConfig{NodeID: 3, InstanceName: " gw.eu/1 "}
	assert.Equal(t, "gw-eu-1", c.Instance())

	host, err := os.Hostname()
	require.NoError(t, err)
	c = &AppConfig{NodeID: 1}
	assert.Equal(t, sanitizeName(host)+"-1", c.Instance())
	assert.NotEqual(t, (&AppConfig{NodeID: 1, InstanceName: "a"}).Instance(), (&AppConfig{NodeID: 1, InstanceName: "b"}).Instance())
}
