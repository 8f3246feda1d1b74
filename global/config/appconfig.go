package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	EnvPrefix = "RT"

	DefaultListenPort = 8080
	DefaultGrpcPort   = 50051
)

// AppConfig 网关全部配置：默认值 -> yaml 文件 -> nacos -> 环境变量
type AppConfig struct {
	NodeID     int64 `envconfig:"RT_NODE_ID" yaml:"nodeId"` // 雪花节点 0~1023
	// 实例名：kafka 消费组与 presence 归属都用它区分网关；为空时取 <hostname>-<nodeId>
	InstanceName string `envconfig:"RT_INSTANCE_NAME" yaml:"instanceName"`
	ListenPort int   `envconfig:"RT_LISTEN_PORT" yaml:"listenPort"`
	GrpcPort   int   `envconfig:"RT_GRPC_PORT" yaml:"grpcPort"` // 0 关闭 gRPC health

	// brokerUrl: redis:// | rediss:// | nats:// | kafka:// | memory://
	BrokerURL string `envconfig:"RT_BROKER_URL" yaml:"brokerUrl"`

	TokenSecret string `envconfig:"RT_TOKEN_SECRET" yaml:"tokenSecret"`
	TokenAlg    string `envconfig:"RT_TOKEN_ALG" yaml:"tokenAlg"`

	// 逗号分隔，* 表示任意来源
	AllowedOrigin string `envconfig:"RT_ALLOWED_ORIGIN" yaml:"allowedOrigin"`

	Followers FollowersConfig `yaml:"followers"`
	Fanout    FanoutConfig    `yaml:"fanout"`
	Conn      ConnConfig      `yaml:"conn"`
	Handshake HandshakeConfig `yaml:"handshake"`
	Presence  PresenceConfig  `yaml:"presence"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Log       LogConfig       `yaml:"log"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type FollowersConfig struct {
	// postgres://... | mongodb://... | memory://
	DSN       string        `envconfig:"RT_FOLLOWERS_DSN" yaml:"dsn"`
	Database  string        `envconfig:"RT_FOLLOWERS_DATABASE" yaml:"database"` // mongo 库名
	CacheTTL  time.Duration `envconfig:"RT_FOLLOWERS_CACHE_TTL" yaml:"cacheTtl"` // 0 不缓存
	CacheSize uint64        `envconfig:"RT_FOLLOWERS_CACHE_SIZE" yaml:"cacheSize"`
	Timeout   time.Duration `envconfig:"RT_FOLLOWERS_TIMEOUT" yaml:"timeout"`
}

type FanoutConfig struct {
	Workers   int `envconfig:"RT_FANOUT_WORKERS" yaml:"workers"`
	QueueSize int `envconfig:"RT_FANOUT_QUEUE" yaml:"queueSize"`
}

type ConnConfig struct {
	SendQueueSize  int           `envconfig:"RT_SEND_QUEUE_SIZE" yaml:"sendQueueSize"`
	WriteWait      time.Duration `envconfig:"RT_WRITE_WAIT" yaml:"writeWait"`
	PongWait       time.Duration `envconfig:"RT_PONG_WAIT" yaml:"pongWait"`
	MaxMessageSize int64         `envconfig:"RT_MAX_MESSAGE_SIZE" yaml:"maxMessageSize"`
}

type HandshakeConfig struct {
	Rate  float64 `envconfig:"RT_HANDSHAKE_RATE" yaml:"rate"` // 每秒握手数，0 不限
	Burst int     `envconfig:"RT_HANDSHAKE_BURST" yaml:"burst"`
}

type PresenceConfig struct {
	Enabled bool          `envconfig:"RT_PRESENCE_ENABLED" yaml:"enabled"`
	TTL     time.Duration `envconfig:"RT_PRESENCE_TTL" yaml:"ttl"`
}

type KafkaConfig struct {
	Version string `envconfig:"RT_KAFKA_VERSION" yaml:"version"`
	GroupID string `envconfig:"RT_KAFKA_GROUP" yaml:"groupId"` // 为空时按节点生成，保证每个网关都收到全部事件
}

type LogConfig struct {
	Level  string `envconfig:"RT_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RT_LOG_FORMAT" yaml:"format"` // console | json
}

type NacosConfig struct {
	Addr      string `envconfig:"RT_NACOS_ADDR" yaml:"addr"`
	Port      uint64 `envconfig:"RT_NACOS_PORT" yaml:"port"`
	Namespace string `envconfig:"RT_NACOS_NAMESPACE" yaml:"namespace"`
	DataID    string `envconfig:"RT_NACOS_DATA_ID" yaml:"dataId"`
	Group     string `envconfig:"RT_NACOS_GROUP" yaml:"group"`
}

// Instance 多个网关即使 nodeId 相同，主机名不同也不会冲突
func (c *AppConfig) Instance() string {
	if name := sanitizeName(c.InstanceName); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "gateway"
	}
	return fmt.Sprintf("%s-%d", sanitizeName(host), c.NodeID)
}

// sanitizeName 只保留 kafka group / nats 名允许的字符
func sanitizeName(s string) string {
	return strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, strings.TrimSpace(s)), "-")
}

func (n NacosConfig) Enabled() bool { return n.Addr != "" && n.DataID != "" }

func setDefaults(cfg *AppConfig) {
	cfg.NodeID = 1
	cfg.ListenPort = DefaultListenPort
	cfg.GrpcPort = DefaultGrpcPort
	cfg.BrokerURL = "redis://127.0.0.1:6379/0"
	cfg.TokenAlg = "HS256"
	cfg.AllowedOrigin = "http://localhost:3000"

	cfg.Followers = FollowersConfig{
		DSN:       "memory://",
		Database:  "social",
		CacheTTL:  30 * time.Second,
		CacheSize: 10000,
		Timeout:   3 * time.Second,
	}
	cfg.Fanout = FanoutConfig{Workers: 8, QueueSize: 1024}
	cfg.Conn = ConnConfig{
		SendQueueSize:  256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 512,
	}
	cfg.Presence = PresenceConfig{Enabled: true, TTL: 90 * time.Second}
	cfg.Kafka = KafkaConfig{Version: "2.8.0"}
	cfg.Log = LogConfig{Level: "info", Format: "console"}
	cfg.Nacos = NacosConfig{Port: 8848, Group: "DEFAULT_GROUP"}
}
