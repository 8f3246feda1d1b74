package kafka

import (
	"strings"
	"time"

	"PPRealtime/tools/errs"

	"github.com/Shopify/sarama"
)

// Config 客户端配置，由 bus 从 brokerUrl 解析
type Config struct {
	Brokers       []string
	GroupID       string
	ClientID      string
	Version       string // 例如 "2.8.0"
	InitialOffset string // newest/oldest
	Compression   string // none/snappy/lz4/zstd/gzip
	Retries       int

	// 仅 AutoCreateTopics 为 true 时使用
	AutoCreateTopics  bool
	Partitions        int32
	ReplicationFactor int16
}

func DefaultConfig() Config {
	return Config{
		Brokers:           []string{"127.0.0.1:9092"},
		ClientID:          "rt-gateway",
		Version:           "2.8.0",
		InitialOffset:     "newest",
		Compression:       "snappy",
		Retries:           5,
		Partitions:        8,
		ReplicationFactor: 1,
	}
}

func parseCompression(s string) sarama.CompressionCodec {
	switch strings.ToLower(s) {
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	case "gzip":
		return sarama.CompressionGZIP
	default:
		return sarama.CompressionNone
	}
}

// BuildBaseConfig 生产者与消费组共用的 sarama 配置
func BuildBaseConfig(c Config) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, errs.ErrConfig.WrapMsg("kafka version", "version", c.Version, "err", err)
		}
		cfg.Version = v
	}
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if c.Retries <= 0 {
		c.Retries = 1
	}
	cfg.Producer.Retry.Max = c.Retries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key 决定分区
	cfg.Producer.Compression = parseCompression(c.Compression)
	if cfg.Producer.Compression == sarama.CompressionZSTD && !cfg.Version.IsAtLeast(sarama.V2_1_0_0) {
		return nil, errs.ErrConfig.WrapMsg("zstd requires kafka >= 2.1.0", "version", c.Version)
	}

	// Consumer
	switch strings.ToLower(c.InitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, errs.ErrConfig.WrapMsg("kafka config", "err", err)
	}
	return cfg, nil
}
