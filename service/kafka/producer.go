package kafka

import (
	"github.com/Shopify/sarama"
)

// Producer 同步生产者
type Producer struct {
	p sarama.SyncProducer
}

func NewProducer(c Config) (*Producer, error) {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewSyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{p: p}, nil
}

// NewProducerFrom 包装已有的 SyncProducer（测试里传 mocks）
func NewProducerFrom(p sarama.SyncProducer) *Producer { return &Producer{p: p} }

func (p *Producer) Send(topic, key string, value []byte) (partition int32, offset int64, err error) {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	return p.p.SendMessage(msg)
}

func (p *Producer) Close() error { return p.p.Close() }
