package natsx

import (
	"strings"
	"time"
)

// Mode 订阅/发布模式
type Mode int

const (
	Core          Mode = iota // 无持久化，断线期间的消息丢失
	JetStreamPush             // JS 推送订阅，按 handler 返回值 ACK/NAK
)

// ParseMode core | js_push，未知值回退 Core
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "js_push", "jetstream":
		return JetStreamPush
	default:
		return Core
	}
}

func (m Mode) String() string {
	if m == JetStreamPush {
		return "js_push"
	}
	return "core"
}

// SubOptions 对该客户端的所有订阅生效。
// Queue 为空是广播：每个网关实例都收到全部消息。
type SubOptions struct {
	Mode          Mode
	Queue         string
	Durable       string // JS durable 前缀，实际名为 <Durable>_<subject>
	AckWait       time.Duration
	MaxAckPending int
}

func (o SubOptions) withDefaults() SubOptions {
	if o.AckWait <= 0 {
		o.AckWait = 30 * time.Second
	}
	if o.MaxAckPending <= 0 {
		o.MaxAckPending = 1024
	}
	return o
}

// durableFor durable 名不能含 '.'
func (o SubOptions) durableFor(subject string) string {
	if o.Durable == "" {
		return ""
	}
	return o.Durable + "_" + strings.ReplaceAll(subject, ".", "_")
}
