package chat

import (
	"context"
	"sync"
	"time"

	"PPRealtime/middleware"
	"PPRealtime/middleware/security"
	"PPRealtime/service/bus"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"
	"PPRealtime/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Config struct {
	Conn           ConnConf
	FanoutWorkers  int
	FanoutQueue    int
	LookupTimeout  time.Duration
	HandshakeRate  float64 // 每秒握手数，0 不限
	HandshakeBurst int
}

// Deps 外部协作者；Registry/IDs/Log 为空时使用默认实现
type Deps struct {
	Bus       bus.Subscriber
	Verifier  security.TokenVerifier
	Followers FollowersLookup
	Origin    *middleware.OriginPolicy
	Registry  *Registry
	IDs       *ids.Generator
	Log       *zap.Logger
}

// Server 网关：握手鉴权 -> 注册 -> 读写泵；总线 -> 解码 -> fanout -> 连接
type Server struct {
	cfg      Config
	conf     ConnConf
	reg      *Registry
	sub      bus.Subscriber
	verifier security.TokenVerifier
	origin   *middleware.OriginPolicy
	disp     *Dispatcher
	fanout   *Fanout
	ids      *ids.Generator
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	started   bool
	stopped   bool
	subCancel context.CancelFunc
	connWG    sync.WaitGroup
}

func NewServer(cfg Config, d Deps) *Server {
	safe.MustNotNil(d.Bus, "bus")
	safe.MustNotNil(d.Verifier, "verifier")

	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Registry == nil {
		d.Registry = NewRegistry()
	}
	if d.IDs == nil {
		d.IDs = ids.NewGenerator(1)
	}
	if d.Origin == nil {
		d.Origin = middleware.NewOriginPolicy("*")
	}
	conf := cfg.Conn
	conf.norm()

	disp := NewDispatcher(d.Registry, d.Followers, d.Log.Named("dispatch"))
	if cfg.LookupTimeout > 0 {
		disp.WithLookupTimeout(cfg.LookupTimeout)
	}

	s := &Server{
		cfg:      cfg,
		conf:     conf,
		reg:      d.Registry,
		sub:      d.Bus,
		verifier: d.Verifier,
		origin:   d.Origin,
		disp:     disp,
		fanout:   NewFanout(disp, cfg.FanoutWorkers, cfg.FanoutQueue, d.Log.Named("fanout")),
		ids:      d.IDs,
		log:      d.Log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.origin.Allow,
		Subprotocols:    []string{security.SubprotocolToken},
	}
	return s
}

func (s *Server) Registry() *Registry { return s.reg }

// Start 订阅全部频道。ctx 结束或 Stop 时订阅随之结束。
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errs.ErrUnavailable.WrapMsg("server stopped")
	}
	if s.started {
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	if err := s.sub.Subscribe(subCtx, Channels(), s.onMessage); err != nil {
		cancel()
		return err
	}
	s.subCancel = cancel
	s.started = true
	s.log.Info("gateway started", zap.Strings("channels", Channels()))
	return nil
}

// onMessage 运行在总线投递协程上，只做解码和非阻塞入队
func (s *Server) onMessage(_ context.Context, m bus.Message) {
	eventsReceived.WithLabelValues(m.Channel).Inc()
	ev, err := DecodeEvent(m.Channel, m.Data)
	if err != nil {
		eventsDropped.WithLabelValues(m.Channel, "decode").Inc()
		s.log.Warn("drop malformed event", zap.String("channel", m.Channel), zap.String("id", m.ID), zap.Error(err))
		return
	}
	s.fanout.Submit(ev)
}

// Stop 顺序：停订阅 -> 处理完队列 -> 关闭全部连接 -> 等连接协程退出
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	if s.subCancel != nil {
		s.subCancel()
	}
	s.mu.Unlock()

	s.fanout.Close()
	n := s.reg.CloseAll()
	s.log.Info("closing connections", zap.Int("count", n))

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errs.ErrUnavailable.WrapMsg("stop timed out", "err", ctx.Err())
	}
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// acquire 停机后拒绝新连接
func (s *Server) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.connWG.Add(1)
	return true
}
