package bus

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"PPRealtime/service/kafka"
	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

type Options struct {
	Log          *zap.Logger
	NodeID       int64
	Instance     string // 网关实例名，决定 kafka 消费组和 nats 连接名；为空时按 NodeID 生成
	KafkaVersion string
	KafkaGroup   string
}

// Open 按 brokerUrl 的 scheme 选择后端
func Open(ctx context.Context, rawURL string, opts Options) (Bus, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.ErrConfig.WrapMsg("parse broker url", "err", err)
	}
	name := opts.clientName()

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemoryBus(), nil
	case "redis", "rediss":
		return NewRedisBus(ctx, rawURL, log.Named("redis"))
	case "nats":
		return NewNatsBus(rawURL, name, log.Named("nats"))
	case "kafka":
		base := kafka.DefaultConfig()
		base.ClientID = name
		base.GroupID = name
		if opts.KafkaGroup != "" {
			base.GroupID = opts.KafkaGroup
		}
		if opts.KafkaVersion != "" {
			base.Version = opts.KafkaVersion
		}
		return NewKafkaBus(rawURL, base, log.Named("kafka"))
	default:
		return nil, errs.ErrConfig.WrapMsg("unsupported broker scheme", "url", rawURL)
	}
}

func (o Options) clientName() string {
	if o.Instance != "" {
		return "rt-gateway-" + o.Instance
	}
	return fmt.Sprintf("rt-gateway-%d", o.NodeID)
}
