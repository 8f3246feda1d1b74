package bus

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"PPRealtime/service/kafka"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KafkaBus 频道即 topic。每个网关用自己的消费组，所以每个实例都能收到全部事件。
// brokerUrl: kafka://h1:9092[,h2:9092]?group=xx&version=2.8.0&offset=newest&autoCreate=true
type KafkaBus struct {
	cfg      kafka.Config
	producer *kafka.Producer
	log      *zap.Logger

	mu     sync.Mutex
	groups []*kafka.Group
	seq    int
	wg     sync.WaitGroup

	readyTimeout time.Duration
}

func parseKafkaURL(raw string, base kafka.Config) (kafka.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return base, errs.ErrConfig.WrapMsg("parse kafka url", "err", err)
	}
	cfg := base
	cfg.Brokers = nil
	for _, h := range strings.Split(u.Host, ",") {
		if h = strings.TrimSpace(h); h != "" {
			cfg.Brokers = append(cfg.Brokers, h)
		}
	}
	if len(cfg.Brokers) == 0 {
		return cfg, errs.ErrConfig.WrapMsg("kafka url has no brokers", "url", raw)
	}

	q := u.Query()
	if v := q.Get("group"); v != "" {
		cfg.GroupID = v
	}
	if v := q.Get("version"); v != "" {
		cfg.Version = v
	}
	if v := q.Get("offset"); v != "" {
		cfg.InitialOffset = v
	}
	if v := q.Get("compression"); v != "" {
		cfg.Compression = v
	}
	if v := q.Get("autoCreate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errs.ErrConfig.WrapMsg("kafka autoCreate", "value", v)
		}
		cfg.AutoCreateTopics = b
	}
	if v := q.Get("partitions"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return cfg, errs.ErrConfig.WrapMsg("kafka partitions", "value", v)
		}
		cfg.Partitions = int32(n)
	}
	if cfg.GroupID == "" {
		return cfg, errs.ErrConfig.WrapMsg("kafka group is empty")
	}
	return cfg, nil
}

func NewKafkaBus(rawURL string, base kafka.Config, log *zap.Logger) (*KafkaBus, error) {
	cfg, err := parseKafkaURL(rawURL, base)
	if err != nil {
		return nil, err
	}
	p, err := kafka.NewProducer(cfg)
	if err != nil {
		return nil, errs.ErrUnavailable.WrapMsg("kafka producer", "brokers", cfg.Brokers, "err", err)
	}
	return &KafkaBus{cfg: cfg, producer: p, log: log, readyTimeout: 15 * time.Second}, nil
}

func (b *KafkaBus) Name() string { return "kafka" }

func (b *KafkaBus) Publish(_ context.Context, channel string, data []byte) error {
	// 随机 key 打散到各分区；订阅方不依赖跨分区顺序
	if _, _, err := b.producer.Send(channel, uuid.NewString(), data); err != nil {
		return errs.ErrUnavailable.WrapMsg("kafka publish", "topic", channel, "err", err)
	}
	return nil
}

func (b *KafkaBus) ensureTopics(channels []string) error {
	admin, err := kafka.NewClusterAdmin(b.cfg)
	if err != nil {
		return err
	}
	defer admin.Close()
	return kafka.EnsureTopics(admin, channels, b.cfg, b.log)
}

func (b *KafkaBus) Subscribe(ctx context.Context, channels []string, h Handler) error {
	if b.cfg.AutoCreateTopics {
		if err := b.ensureTopics(channels); err != nil {
			return errs.ErrUnavailable.WrapMsg("kafka ensure topics", "topics", channels, "err", err)
		}
	}

	b.mu.Lock()
	cfg := b.cfg
	if b.seq > 0 {
		// 同一节点的第二个订阅不能和第一个分摊分区
		cfg.GroupID = fmt.Sprintf("%s-%d", cfg.GroupID, b.seq)
	}
	b.seq++
	b.mu.Unlock()

	g, err := kafka.NewGroup(cfg, channels, func(_ context.Context, m *sarama.ConsumerMessage) {
		h(ctx, Message{Channel: m.Topic, Data: m.Value, ID: fmt.Sprintf("%d-%d", m.Partition, m.Offset)})
	}, b.log.With(zap.String("group", cfg.GroupID)))
	if err != nil {
		return errs.ErrUnavailable.WrapMsg("kafka consumer group", "group", cfg.GroupID, "err", err)
	}

	b.mu.Lock()
	b.groups = append(b.groups, g)
	b.mu.Unlock()

	b.wg.Add(1)
	safe.SafeGo(b.log, "kafka-group", func() {
		defer b.wg.Done()
		g.Run(ctx)
	})

	// OffsetNewest：分区分配完成前发布的消息收不到，尽量等一下
	select {
	case <-g.Ready():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.readyTimeout):
		b.log.Warn("kafka group not ready yet, continuing", zap.String("group", cfg.GroupID))
	}
	b.log.Info("kafka subscribed", zap.Strings("topics", channels), zap.String("group", cfg.GroupID))
	return nil
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	groups := b.groups
	b.groups = nil
	b.mu.Unlock()

	for _, g := range groups {
		if err := g.Close(); err != nil {
			b.log.Warn("close consumer group", zap.Error(err))
		}
	}
	b.wg.Wait()
	return b.producer.Close()
}
