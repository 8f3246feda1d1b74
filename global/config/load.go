package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"PPRealtime/tools/errs"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// RemoteSource 远程配置（nacos），返回 yaml 文本
type RemoteSource interface {
	Fetch() (string, error)
}

// Load 默认值 -> 文件 -> 环境变量；配置了 nacos 时叠加远程 yaml 后再应用一次环境变量。
func Load(path string) (*AppConfig, error) {
	return LoadWith(path, nil)
}

// LoadWith remote 为 nil 且配置里启用了 nacos 时自动创建 NacosSource。
func LoadWith(path string, remote RemoteSource) (*AppConfig, error) {
	cfg := &AppConfig{}
	setDefaults(cfg)

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, errs.ErrConfig.WrapMsg("loading config file", "path", path, "err", err)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, errs.ErrConfig.WrapMsg("processing env config", "err", err)
	}

	if remote == nil && cfg.Nacos.Enabled() {
		src, err := NewNacosSource(cfg.Nacos)
		if err != nil {
			return nil, err
		}
		remote = src
	}
	if remote != nil {
		content, err := remote.Fetch()
		if err != nil {
			return nil, errs.ErrConfig.WrapMsg("fetching remote config", "err", err)
		}
		if err := Apply(cfg, content); err != nil {
			return nil, err
		}
		// 环境变量优先级最高
		if err := envconfig.Process("", cfg); err != nil {
			return nil, errs.ErrConfig.WrapMsg("processing env config", "err", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply 把 yaml 文本叠加到 cfg 上
func Apply(cfg *AppConfig, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return errs.ErrConfig.WrapMsg("parsing yaml", "err", err)
	}
	return nil
}

func loadFromFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate 收集全部问题后一次返回
func (c *AppConfig) Validate() error {
	var problems []string

	if c.ListenPort < 1 || c.ListenPort > 65535 {
		problems = append(problems, "listenPort must be between 1 and 65535")
	}
	if c.GrpcPort < 0 || c.GrpcPort > 65535 {
		problems = append(problems, "grpcPort must be between 0 and 65535")
	}
	if c.GrpcPort != 0 && c.GrpcPort == c.ListenPort {
		problems = append(problems, "grpcPort must differ from listenPort")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		problems = append(problems, "nodeId must be between 0 and 1023")
	}
	if strings.TrimSpace(c.TokenSecret) == "" {
		problems = append(problems, "tokenSecret is required")
	}
	switch strings.ToUpper(c.TokenAlg) {
	case "HS256", "HS384", "HS512":
	default:
		problems = append(problems, fmt.Sprintf("invalid tokenAlg: %s (must be HS256, HS384 or HS512)", c.TokenAlg))
	}
	if strings.TrimSpace(c.AllowedOrigin) == "" {
		problems = append(problems, "allowedOrigin is required (use * to allow any)")
	}

	validBrokers := map[string]bool{"redis": true, "rediss": true, "nats": true, "kafka": true, "memory": true}
	if u, err := url.Parse(c.BrokerURL); err != nil || !validBrokers[u.Scheme] {
		problems = append(problems, fmt.Sprintf("invalid brokerUrl: %q (scheme must be redis, rediss, nats, kafka or memory)", c.BrokerURL))
	}
	validFollowers := map[string]bool{"postgres": true, "postgresql": true, "mongodb": true, "mongodb+srv": true, "memory": true}
	if u, err := url.Parse(c.Followers.DSN); err != nil || !validFollowers[u.Scheme] {
		problems = append(problems, fmt.Sprintf("invalid followers dsn scheme: %q", schemeOf(c.Followers.DSN)))
	}

	if c.Fanout.Workers < 1 {
		problems = append(problems, "fanout workers must be positive")
	}
	if c.Fanout.QueueSize < 1 {
		problems = append(problems, "fanout queueSize must be positive")
	}
	if c.Conn.SendQueueSize < 1 {
		problems = append(problems, "conn sendQueueSize must be positive")
	}
	if c.Conn.PongWait <= 0 || c.Conn.WriteWait <= 0 {
		problems = append(problems, "conn pongWait and writeWait must be positive")
	}
	if c.Handshake.Rate < 0 || c.Handshake.Burst < 0 {
		problems = append(problems, "handshake rate and burst must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		problems = append(problems, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		problems = append(problems, fmt.Sprintf("invalid log format: %s (must be console or json)", c.Log.Format))
	}

	if len(problems) > 0 {
		return errs.ErrConfig.WrapMsg("config validation failed:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}

// BrokerScheme 返回 brokerUrl 的 scheme
func (c *AppConfig) BrokerScheme() string { return schemeOf(c.BrokerURL) }

func (c *AppConfig) Address() string { return fmt.Sprintf(":%d", c.ListenPort) }

func schemeOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Scheme
}
