package chat

import (
	"context"
	"errors"
	"time"

	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// FollowersLookup 作者 -> 粉丝ID。作者不存在时返回 ErrLookup。
type FollowersLookup interface {
	Followers(ctx context.Context, authorID string) ([]string, error)
}

// DispatchResult 一次分发的统计
type DispatchResult struct {
	Targets   int // 去重后的目标用户数
	Delivered int // 成功入队的连接数
	Failed    int // 入队失败的连接数
}

// Dispatcher 事件 -> 目标用户 -> 每条在线连接。
// 至多一次：不在线即丢弃，不重试，不落离线队列。
type Dispatcher struct {
	reg           *Registry
	followers     FollowersLookup
	log           *zap.Logger
	lookupTimeout time.Duration
}

func NewDispatcher(reg *Registry, followers FollowersLookup, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{reg: reg, followers: followers, log: log, lookupTimeout: 3 * time.Second}
}

// WithLookupTimeout 0 表示只受调用方 ctx 约束
func (d *Dispatcher) WithLookupTimeout(t time.Duration) *Dispatcher {
	d.lookupTimeout = t
	return d
}

func (d *Dispatcher) targets(ctx context.Context, e Event) ([]string, error) {
	switch ev := e.(type) {
	case NewMessage:
		return []string{ev.RecipientID}, nil
	case NewNotification:
		return []string{ev.RecipientUserID}, nil
	case NewPost:
		return d.lookupFollowers(ctx, ev.AuthorID)
	default:
		return nil, errs.ErrDecode.WrapMsg("unsupported event type")
	}
}

func (d *Dispatcher) lookupFollowers(ctx context.Context, authorID string) ([]string, error) {
	if d.followers == nil {
		return nil, errs.ErrLookup.WrapMsg("no followers lookup configured", "author", authorID)
	}
	if d.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.lookupTimeout)
		defer cancel()
	}

	start := time.Now()
	ids, err := d.followers.Followers(ctx, authorID)
	followersLookupSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, errs.ErrLookup) {
			return nil, errs.WrapMsg(err, "followers lookup", "author", authorID)
		}
		return nil, errs.ErrLookup.WrapMsg("followers lookup", "author", authorID, "err", err)
	}
	return dedupe(ids), nil
}

// Dispatch 返回 LookupError 时整条事件放弃，没有任何连接收到。
// 单条连接入队失败只计数，不影响其他连接和其他用户。
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (DispatchResult, error) {
	var res DispatchResult
	ch := e.Channel()

	targets, err := d.targets(ctx, e)
	if err != nil {
		eventsDropped.WithLabelValues(ch, dropReason(err)).Inc()
		d.log.Warn("drop event", zap.String("channel", ch), zap.Int("code", errs.Code(err)), zap.Error(err))
		return res, err
	}
	res.Targets = len(targets)
	if len(targets) == 0 {
		return res, nil
	}

	payload, err := BuildFrame(e)
	if err != nil {
		eventsDropped.WithLabelValues(ch, "encode").Inc()
		d.log.Warn("drop event", zap.String("channel", ch), zap.Error(err))
		return res, err
	}

	for _, uid := range targets {
		for _, c := range d.reg.Get(uid) {
			if err := c.Enqueue(payload); err != nil {
				res.Failed++
				deliveries.WithLabelValues(ch, "failed").Inc()
				d.log.Warn("deliver failed", zap.String("channel", ch),
					zap.String("user", uid), zap.String("conn", c.ConnID), zap.Error(err))
				continue
			}
			res.Delivered++
			deliveries.WithLabelValues(ch, "ok").Inc()
		}
	}
	return res, nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, errs.ErrLookup):
		return "lookup"
	case errors.Is(err, errs.ErrDecode):
		return "decode"
	default:
		return "other"
	}
}

func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
