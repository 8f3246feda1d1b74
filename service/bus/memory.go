package bus

import (
	"context"
	"sync"

	"PPRealtime/tools/errs"

	"github.com/google/uuid"
)

type memorySub struct {
	channels map[string]struct{}
	ch       chan Message
	h        Handler
	done     chan struct{}
	stopOnce sync.Once
}

func (s *memorySub) stop() { s.stopOnce.Do(func() { close(s.done) }) }

// MemoryBus 进程内总线，测试与单机开发用。
// 每个订阅一个投递协程，同一频道内保持发布顺序。
type MemoryBus struct {
	mu         sync.RWMutex
	subs       []*memorySub
	closed     bool
	bufferSize int
	inflightWg sync.WaitGroup
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{bufferSize: 1024}
}

func (b *MemoryBus) Name() string { return "memory" }

func (b *MemoryBus) Publish(ctx context.Context, channel string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errs.ErrUnavailable.WrapMsg("bus is closed")
	}

	msg := Message{Channel: channel, Data: append([]byte(nil), data...), ID: uuid.NewString()}
	for _, s := range b.subs {
		if _, ok := s.channels[channel]; !ok {
			continue
		}
		select {
		case s.ch <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channels []string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errs.ErrUnavailable.WrapMsg("bus is closed")
	}

	s := &memorySub{
		channels: make(map[string]struct{}, len(channels)),
		ch:       make(chan Message, b.bufferSize),
		h:        h,
		done:     make(chan struct{}),
	}
	for _, c := range channels {
		s.channels[c] = struct{}{}
	}
	b.subs = append(b.subs, s)

	b.inflightWg.Add(1)
	go func() {
		defer b.inflightWg.Done()
		for {
			select {
			case msg := <-s.ch:
				s.h(ctx, msg)
			case <-s.done:
				return
			case <-ctx.Done():
				s.stop()
				b.remove(s)
				return
			}
		}
	}()
	return nil
}

func (b *MemoryBus) remove(s *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, x := range b.subs {
		if x == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Close stops all deliveries and waits for running handlers.
func (b *MemoryBus) Close() error {
	// 先停投递，解除可能阻塞在满队列上的 Publish
	b.mu.RLock()
	subs := append([]*memorySub(nil), b.subs...)
	b.mu.RUnlock()
	for _, s := range subs {
		s.stop()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		s.stop()
	}
	b.subs = nil
	b.mu.Unlock()

	b.inflightWg.Wait()
	return nil
}
