package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPRealtime/global/config"
	"PPRealtime/logger"
	"PPRealtime/middleware"
	"PPRealtime/service/bus"
	"PPRealtime/service/chat"
	"PPRealtime/service/followers"
	"PPRealtime/service/storage"
	"PPRealtime/tools"
	"PPRealtime/tools/ids"
	"PPRealtime/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		logger.Error("gateway exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(tools.GetEnv("RT_CONFIG", ""))
	if err != nil {
		return err
	}
	log := logger.Init(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := security.NewVerifier(security.Options{
		Secret: []byte(cfg.TokenSecret),
		Alg:    cfg.TokenAlg,
		Leeway: 30 * time.Second,
	})
	if err != nil {
		return err
	}
	origin := middleware.NewOriginPolicy(cfg.AllowedOrigin)

	instance := cfg.Instance()
	b, err := bus.Open(ctx, cfg.BrokerURL, bus.Options{
		Log:          logger.Named("bus"),
		NodeID:       cfg.NodeID,
		Instance:     instance,
		KafkaVersion: cfg.Kafka.Version,
		KafkaGroup:   cfg.Kafka.GroupID,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	fl, err := followers.Open(ctx, followers.Config{
		DSN:       cfg.Followers.DSN,
		Database:  cfg.Followers.Database,
		CacheTTL:  cfg.Followers.CacheTTL,
		CacheSize: cfg.Followers.CacheSize,
		Timeout:   cfg.Followers.Timeout,
	}, logger.Named("followers"))
	if err != nil {
		return err
	}
	defer fl.Close()

	var regOpts []chat.RegistryOption
	if rb, ok := b.(*bus.RedisBus); ok && cfg.Presence.Enabled {
		p := storage.NewPresence(rb.Client(), instance, cfg.Presence.TTL, logger.Named("presence"))
		p.Start(ctx)
		defer p.Close()
		regOpts = append(regOpts, chat.WithPresenceObserver(p))
	}

	srv := chat.NewServer(chat.Config{
		Conn: chat.ConnConf{
			SendQueueSize:  cfg.Conn.SendQueueSize,
			WriteWait:      cfg.Conn.WriteWait,
			PongWait:       cfg.Conn.PongWait,
			MaxMessageSize: cfg.Conn.MaxMessageSize,
		},
		FanoutWorkers:  cfg.Fanout.Workers,
		FanoutQueue:    cfg.Fanout.QueueSize,
		LookupTimeout:  cfg.Followers.Timeout,
		HandshakeRate:  cfg.Handshake.Rate,
		HandshakeBurst: cfg.Handshake.Burst,
	}, chat.Deps{
		Bus:       b,
		Verifier:  verifier,
		Followers: fl,
		Origin:    origin,
		Registry:  chat.NewRegistry(regOpts...),
		IDs:       ids.NewGenerator(cfg.NodeID),
		Log:       logger.Named("gateway"),
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	if cfg.Nacos.Enabled() {
		watchOrigin(cfg, origin, log)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.ZapRecovery(log), middleware.ZapLogger(logger.Named("http")))
	srv.Routes(r)
	r.GET("/healthz", srv.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpSrv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hs := health.NewServer()
	var (
		gs      *grpc.Server
		grpcLis net.Listener
	)
	if cfg.GrpcPort > 0 {
		grpcLis, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.GrpcPort))
		if err != nil {
			return err
		}
		gs = grpc.NewServer()
		healthpb.RegisterHealthServer(gs, hs)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		hs.SetServingStatus("rt.Gateway", healthpb.HealthCheckResponse_SERVING)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", httpSrv.Addr), zap.String("broker", b.Name()), zap.String("instance", instance))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if gs != nil {
		g.Go(func() error {
			log.Info("grpc health listening", zap.Int("port", cfg.GrpcPort))
			return gs.Serve(grpcLis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		hs.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// 先关网关（连接已被劫持，http.Server.Shutdown 不会等它们）
		if err := srv.Stop(sctx); err != nil {
			log.Warn("gateway stop", zap.Error(err))
		}
		if err := httpSrv.Shutdown(sctx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		if gs != nil {
			gs.GracefulStop()
		}
		return nil
	})
	return g.Wait()
}

// watchOrigin allowedOrigin 支持 nacos 热更新，其他配置需要重启
func watchOrigin(cfg *config.AppConfig, origin *middleware.OriginPolicy, log *zap.Logger) {
	src, err := config.NewNacosSource(cfg.Nacos)
	if err != nil {
		log.Warn("nacos watch disabled", zap.Error(err))
		return
	}
	err = src.Watch(func(content string) {
		next := *cfg
		if err := config.Apply(&next, content); err != nil {
			log.Warn("ignore nacos update", zap.Error(err))
			return
		}
		origin.Update(next.AllowedOrigin)
		log.Info("allowed origin updated", zap.String("allowedOrigin", next.AllowedOrigin))
	})
	if err != nil {
		log.Warn("nacos watch failed", zap.Error(err))
		src.Close()
	}
}
