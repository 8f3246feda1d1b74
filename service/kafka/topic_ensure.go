package kafka

import (
	"errors"
	"fmt"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

func NewClusterAdmin(c Config) (sarama.ClusterAdmin, error) {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	return sarama.NewClusterAdmin(c.Brokers, cfg)
}

func topicDetail(c Config) *sarama.TopicDetail {
	minISR := "1"
	if c.ReplicationFactor >= 3 {
		minISR = "2"
	}
	parts := c.Partitions
	if parts <= 0 {
		parts = 1
	}
	rf := c.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	return &sarama.TopicDetail{
		NumPartitions:     parts,
		ReplicationFactor: rf,
		ConfigEntries: map[string]*string{
			"cleanup.policy":                 strPtr("delete"),
			"min.insync.replicas":            strPtr(minISR),
			"unclean.leader.election.enable": strPtr("false"),
			"compression.type":               strPtr("producer"),
		},
	}
}

// EnsureTopics 不存在则创建；已存在且分区数不足时扩分区（Kafka 只能加分区）
func EnsureTopics(admin sarama.ClusterAdmin, topics []string, c Config, log *zap.Logger) error {
	td := topicDetail(c)
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return fmt.Errorf("describe topic %s: %w", t, err)
		}
		exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

		if !exists {
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
					log.Debug("topic exists (race)", zap.String("topic", t))
					continue
				}
				return fmt.Errorf("create topic %s: %w", t, err)
			}
			log.Info("topic created", zap.String("topic", t), zap.Int32("partitions", td.NumPartitions), zap.Int16("rf", td.ReplicationFactor))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if td.NumPartitions > cur {
			if err := admin.CreatePartitions(t, td.NumPartitions, nil, false); err != nil {
				return fmt.Errorf("expand partitions %s from %d to %d: %w", t, cur, td.NumPartitions, err)
			}
			log.Info("topic partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", td.NumPartitions))
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
