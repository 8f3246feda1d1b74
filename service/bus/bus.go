// Package bus is the pub/sub layer between API handlers (publishers) and
// gateway instances (subscribers). Every backend broadcasts: each subscribed
// gateway sees every message published on a channel.
package bus

import (
	"context"
)

// Message 总线原始消息，Data 由订阅方解码
type Message struct {
	Channel string
	Data    []byte
	ID      string // 后端提供的消息ID，可能为空
}

// Handler 在后端投递协程上执行，必须尽快返回
type Handler func(ctx context.Context, msg Message)

type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte) error
}

type Subscriber interface {
	// Subscribe 建立订阅后返回；消息在后端协程上回调，直到 ctx 结束或 Close
	Subscribe(ctx context.Context, channels []string, h Handler) error
}

type Bus interface {
	Publisher
	Subscriber
	Name() string
	Close() error
}
