package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// MessageHandler 在分区消费协程上执行；返回后 offset 即被标记
type MessageHandler func(ctx context.Context, msg *sarama.ConsumerMessage)

type groupHandler struct {
	h         MessageHandler
	log       *zap.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

func (g *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	g.log.Debug("consumer group setup", zap.String("member", sess.MemberID()), zap.Int32("generation", sess.GenerationID()))
	g.readyOnce.Do(func() { close(g.ready) })
	return nil
}

func (g *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	g.log.Debug("consumer group cleanup")
	return nil
}

func (g *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			g.h(sess.Context(), msg)
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

// Group 一个消费组实例，Run 阻塞直到 ctx 结束或 Close
type Group struct {
	cg      sarama.ConsumerGroup
	topics  []string
	handler *groupHandler
	log     *zap.Logger
}

func NewGroup(c Config, topics []string, h MessageHandler, log *zap.Logger) (*Group, error) {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	cg, err := sarama.NewConsumerGroup(c.Brokers, c.GroupID, cfg)
	if err != nil {
		return nil, err
	}
	return newGroup(cg, topics, h, log), nil
}

func newGroup(cg sarama.ConsumerGroup, topics []string, h MessageHandler, log *zap.Logger) *Group {
	return &Group{
		cg:     cg,
		topics: topics,
		handler: &groupHandler{
			h:     h,
			log:   log,
			ready: make(chan struct{}),
		},
		log: log,
	}
}

// Ready 第一次分配分区后关闭
func (g *Group) Ready() <-chan struct{} { return g.handler.ready }

func (g *Group) Run(ctx context.Context) {
	go func() {
		for err := range g.cg.Errors() {
			g.log.Warn("consumer group error", zap.Error(err))
		}
	}()
	for {
		// rebalance 后 Consume 返回，需要重新进入
		err := g.cg.Consume(ctx, g.topics, g.handler)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
			return
		}
		if err != nil {
			g.log.Warn("consume error", zap.Strings("topics", g.topics), zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (g *Group) Close() error { return g.cg.Close() }
