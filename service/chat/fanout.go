package chat

import (
	"context"
	"sync"

	"PPRealtime/tools/safe"

	"go.uber.org/zap"
)

// Fanout 固定数量的 worker 消费有界队列，总线回调只做非阻塞入队。
// 单 worker 时保持入队顺序。
type Fanout struct {
	d    *Dispatcher
	log  *zap.Logger
	jobs chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewFanout(d *Dispatcher, workers, queue int, log *zap.Logger) *Fanout {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Fanout{
		d:      d,
		log:    log,
		jobs:   make(chan Event, queue),
		ctx:    ctx,
		cancel: cancel,
	}
	f.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go f.worker()
	}
	return f
}

func (f *Fanout) worker() {
	defer f.wg.Done()
	for ev := range f.jobs {
		f.run(ev)
	}
}

func (f *Fanout) run(ev Event) {
	defer safe.Recover(f.log, "fanout")
	_, _ = f.d.Dispatch(f.ctx, ev)
}

// Submit 队列满或已关闭时返回 false，事件丢弃
func (f *Fanout) Submit(ev Event) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		eventsDropped.WithLabelValues(ev.Channel(), "closed").Inc()
		return false
	}
	select {
	case f.jobs <- ev:
		return true
	default:
		eventsDropped.WithLabelValues(ev.Channel(), "overload").Inc()
		f.log.Warn("fanout queue full, drop event", zap.String("channel", ev.Channel()))
		return false
	}
}

// Pending 队列中尚未处理的事件数
func (f *Fanout) Pending() int { return len(f.jobs) }

// Close 停止接收，处理完已入队的事件后返回
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.jobs)
	f.mu.Unlock()

	f.wg.Wait()
	f.cancel()
}
