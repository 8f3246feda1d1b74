package bus

import (
	"context"
	"net/url"
	"strings"
	"time"

	"PPRealtime/service/natsx"
	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

const natsDedupTTL = 2 * time.Minute

// NatsBus 频道 -> 同名 subject。
// brokerUrl: nats://[user:pass@]host:4222[,host2:4222]?mode=core|js_push&durable=xx&queue=xx
type NatsBus struct {
	cli  *natsx.Client
	seen *natsx.SeenCache
	log  *zap.Logger
}

func parseNatsURL(raw, name string) (natsx.Config, natsx.SubOptions, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return natsx.Config{}, natsx.SubOptions{}, errs.ErrConfig.WrapMsg("parse nats url", "err", err)
	}
	cfg := natsx.Config{Name: name}
	for _, h := range strings.Split(u.Host, ",") {
		if h = strings.TrimSpace(h); h != "" {
			cfg.Servers = append(cfg.Servers, "nats://"+h)
		}
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			cfg.User, cfg.Password = u.User.Username(), pw
		} else {
			cfg.Token = u.User.Username()
		}
	}
	q := u.Query()
	opts := natsx.SubOptions{
		Mode:    natsx.ParseMode(q.Get("mode")),
		Durable: q.Get("durable"),
		Queue:   q.Get("queue"),
	}
	if len(cfg.Servers) == 0 {
		return cfg, opts, errs.ErrConfig.WrapMsg("nats url has no servers", "url", raw)
	}
	return cfg, opts, nil
}

func NewNatsBus(rawURL, name string, log *zap.Logger) (*NatsBus, error) {
	cfg, opts, err := parseNatsURL(rawURL, name)
	if err != nil {
		return nil, err
	}
	seen := natsx.NewSeenCache(natsDedupTTL, 100_000)
	cli, err := natsx.Dial(cfg, opts, log, natsx.Dedup(seen, natsDedupTTL))
	if err != nil {
		seen.Close()
		return nil, err
	}
	return &NatsBus{cli: cli, seen: seen, log: log}, nil
}

func (b *NatsBus) Name() string { return "nats" }

func (b *NatsBus) Publish(ctx context.Context, channel string, data []byte) error {
	return b.cli.Publish(ctx, channel, data, "")
}

func (b *NatsBus) Subscribe(ctx context.Context, channels []string, h Handler) error {
	for _, ch := range channels {
		err := b.cli.Subscribe(ctx, ch, func(ctx context.Context, m natsx.Msg) error {
			h(ctx, Message{Channel: m.Subject, Data: m.Data, ID: m.ID})
			return nil
		})
		if err != nil {
			return err
		}
	}
	b.log.Info("nats subscribed", zap.Strings("channels", channels), zap.Stringer("mode", b.cli.Mode()))
	return nil
}

func (b *NatsBus) Close() error {
	defer b.seen.Close()
	return b.cli.Close()
}
