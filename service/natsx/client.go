// Package natsx wraps nats.go for subject-per-channel messaging in Core or
// JetStream push mode, with a handler middleware chain on the consume side.
package natsx

import (
	"context"
	"strings"
	"sync"
	"time"

	"PPRealtime/tools/errs"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const HeaderMsgID = "Nats-Msg-Id"

var idHeaders = []string{HeaderMsgID, "X-Msg-Id"}

type Config struct {
	Servers         []string
	Name            string
	User            string
	Password        string
	Token           string
	ReconnectWait   time.Duration
	Timeout         time.Duration
	PublishAsyncMax int
}

type Client struct {
	opts SubOptions
	mws  []Middleware
	log  *zap.Logger

	nc *nats.Conn
	js nats.JetStreamContext

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

func (c Config) natsOptions(log *zap.Logger) []nats.Option {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(c.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if c.User != "" {
		opts = append(opts, nats.UserInfo(c.User, c.Password))
	}
	if c.Token != "" {
		opts = append(opts, nats.Token(c.Token))
	}
	return opts
}

// Dial 连接 NATS；JetStream 模式会同时初始化 JS 上下文
func Dial(cfg Config, opts SubOptions, log *zap.Logger, mws ...Middleware) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrConfig.WrapMsg("nats servers missing")
	}
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), cfg.natsOptions(log)...)
	if err != nil {
		return nil, errs.ErrUnavailable.WrapMsg("nats connect", "servers", cfg.Servers, "err", err)
	}
	c := &Client{opts: opts.withDefaults(), mws: mws, log: log, nc: nc}
	if c.opts.Mode == JetStreamPush {
		pending := cfg.PublishAsyncMax
		if pending == 0 {
			pending = 4096
		}
		js, err := nc.JetStream(nats.PublishAsyncMaxPending(pending))
		if err != nil {
			nc.Close()
			return nil, errs.ErrUnavailable.WrapMsg("init jetstream", "err", err)
		}
		c.js = js
	}
	return c, nil
}

func (c *Client) Mode() Mode { return c.opts.Mode }

func (c *Client) Connected() bool { return c.nc != nil && c.nc.IsConnected() }

// Publish 带 Nats-Msg-Id 发送，msgID 为空自动生成。
// JetStream 去重窗口和消费端 Dedup 都依赖该头。
func (c *Client) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	if msgID == "" {
		msgID = uuid.NewString()
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderMsgID, msgID)

	var err error
	if c.js != nil {
		_, err = c.js.PublishMsg(msg, nats.Context(ctx))
	} else {
		err = c.nc.PublishMsg(msg)
	}
	if err != nil {
		return errs.ErrUnavailable.WrapMsg("nats publish", "subject", subject, "err", err)
	}
	return nil
}

// Subscribe 注册 subject 回调；回调运行在 nats 的投递协程上
func (c *Client) Subscribe(ctx context.Context, subject string, h Handler) error {
	h = Chain(h, c.mws...)

	var (
		sub *nats.Subscription
		err error
	)
	if c.js == nil {
		cb := func(m *nats.Msg) { _ = h(ctx, toMsg(m)) }
		if c.opts.Queue == "" {
			sub, err = c.nc.Subscribe(subject, cb)
		} else {
			sub, err = c.nc.QueueSubscribe(subject, c.opts.Queue, cb)
		}
		if err == nil {
			_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
		}
	} else {
		opts := []nats.SubOpt{
			nats.ManualAck(),
			nats.AckWait(c.opts.AckWait),
			nats.MaxAckPending(c.opts.MaxAckPending),
			nats.DeliverNew(),
		}
		if d := c.opts.durableFor(subject); d != "" {
			opts = append(opts, nats.Durable(d))
		}
		cb := func(m *nats.Msg) {
			if err := h(ctx, toMsg(m)); err != nil {
				_ = m.Nak()
				return
			}
			_ = m.Ack()
		}
		if c.opts.Queue == "" {
			sub, err = c.js.Subscribe(subject, cb, opts...)
		} else {
			sub, err = c.js.QueueSubscribe(subject, c.opts.Queue, cb, opts...)
		}
	}
	if err != nil {
		return errs.ErrUnavailable.WrapMsg("nats subscribe", "subject", subject, "mode", c.opts.Mode.String(), "err", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sub.Unsubscribe()
		return errs.ErrUnavailable.WrapMsg("nats client closed")
	}
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Close drain 所有订阅后关闭连接
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Drain()
	}
	return c.nc.Drain()
}

func toMsg(m *nats.Msg) Msg {
	return Msg{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		ID:      msgID(m.Header),
	}
}

func msgID(h nats.Header) string {
	for _, k := range idHeaders {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return ""
}
