package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ismaiel54/unified-trading-gateway/internal/chaos"
	"github.com/ismaiel54/unified-trading-gateway/internal/config"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange/kafkafeed"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange/paper"
	"github.com/ismaiel54/unified-trading-gateway/internal/httpapi"
	"github.com/ismaiel54/unified-trading-gateway/internal/idempotency"
	"github.com/ismaiel54/unified-trading-gateway/internal/logging"
	"github.com/ismaiel54/unified-trading-gateway/internal/marketdata"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"github.com/ismaiel54/unified-trading-gateway/internal/observability"
	"github.com/ismaiel54/unified-trading-gateway/internal/raft"
	"github.com/ismaiel54/unified-trading-gateway/internal/rpc"
	"github.com/ismaiel54/unified-trading-gateway/internal/store"
	"github.com/ismaiel54/unified-trading-gateway/internal/trading"
	"github.com/ismaiel54/unified-trading-gateway/internal/userdata"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// runner is an exchange adapter with a background loop
type runner interface {
	Run(ctx context.Context) error
}

func main() {
	cfg := config.LoadConfig("gateway")

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting gateway",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("data_dir", cfg.DataDir),
		zap.String("exchanges_file", cfg.ExchangesFile),
		zap.Bool("raft_enabled", cfg.RaftEnabled),
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	exchangeConfigs, err := config.LoadExchanges(cfg.ExchangesFile)
	if err != nil {
		logger.Fatal("failed to load exchanges", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgCfg := msg.Config{Brokers: cfg.Brokers(), ClientID: cfg.ServiceName}
	registry, runners, tradingOpts, err := buildExchanges(exchangeConfigs, msgCfg, logger)
	if err != nil {
		logger.Fatal("failed to build exchanges", zap.Error(err))
	}

	dbPath := filepath.Join(cfg.DataDir, "gateway.db")
	st, err := store.Open(dbPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()
	logger.Info("store opened", zap.String("path", dbPath))

	healthChecker := observability.NewHealthChecker(logger)
	healthChecker.AddCheck("store", st.Ping)
	for name, r := range runners {
		if k, ok := r.(kafkaRunner); ok {
			healthChecker.AddCheck("feed:"+name, k.ex.Ready)
		}
	}

	// Client order id claims are local unless raft replication is on
	var claims idempotency.Registry = idempotency.NewSQLRegistry(st)
	var node *raft.Node
	if cfg.RaftEnabled {
		raftCfg, err := raft.LoadConfig(cfg.DataDir)
		if err != nil {
			logger.Fatal("failed to load raft config", zap.Error(err))
		}
		node, err = raft.Start(ctx, raftCfg, logger)
		if err != nil {
			logger.Fatal("failed to start raft node", zap.Error(err))
		}
		waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := node.WaitForLeader(waitCtx); err != nil {
			logger.Warn("no raft leader yet, claims fail until one is elected", zap.Error(err))
		}
		waitCancel()
		claims = idempotency.NewRaftRegistry(node)
		healthChecker.AddCheck("raft", func(context.Context) error {
			if node.Leader() == "" {
				return raft.ErrNotLeader
			}
			return nil
		})
	}

	var sink msg.Sink = msg.NopSink{}
	var producer *msg.Producer
	if msgCfg.Enabled() {
		producer, err = msg.NewProducer(msgCfg, logger)
		if err != nil {
			logger.Fatal("failed to create kafka producer", zap.Error(err))
		}
		defer producer.Close()
		sink = producer
		healthChecker.AddCheck("kafka", producer.Ping)
	} else {
		logger.Warn("KAFKA_BROKERS not set, outbox events will be dropped")
	}

	users := userdata.NewHub(logger, cfg.SubscriberBuffer, cfg.RecentTrades)
	market := marketdata.NewHub(registry, logger, cfg.SubscriberBuffer, cfg.RecentTrades)
	svc := trading.NewService(registry, st, claims, users, logger, tradingOpts...)
	if err := svc.Seed(ctx); err != nil {
		logger.Fatal("failed to seed user data", zap.Error(err))
	}

	publisher := idempotency.NewPublisher(st, sink, logger)

	chaosCfg := chaos.LoadConfig()
	var serverOpts []grpc.ServerOption
	if chaosCfg.Enabled {
		c := chaos.New(chaosCfg, logger)
		serverOpts = append(serverOpts,
			grpc.ChainUnaryInterceptor(c.UnaryServerInterceptor()),
			grpc.ChainStreamInterceptor(c.StreamServerInterceptor()),
		)
		logger.Warn("chaos enabled",
			zap.String("profile", chaosCfg.Profile),
			zap.String("target_method", chaosCfg.TargetMethod),
			zap.Int("drop_pct", chaosCfg.DropPct),
		)
	}

	grpcServer := rpc.NewServer(rpc.Services{MarketData: market, UserData: users, Trading: svc}, logger, serverOpts...)
	healthChecker.RegisterGRPC(grpcServer, rpc.ServiceNames()...)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	errCh := make(chan error, 4+len(runners))
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	httpServer := httpapi.NewServer(market, users, healthChecker, cfg.Origins(), logger)
	go func() {
		if err := httpServer.Start(cfg.HTTPAddr()); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	for name, r := range runners {
		go func(name string, r runner) {
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("exchange %s: %w", name, err)
			}
		}(name, r)
	}
	go svc.Reconcile(ctx)
	go func() {
		if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("outbox publisher: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("component failed", zap.Error(err))
	}

	logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down HTTP server", zap.Error(err))
	}

	// Streams end on their own once the hubs close
	market.Close()
	users.Close()
	grpcServer.GracefulStop()
	cancel()

	if node != nil {
		if err := node.Shutdown(); err != nil {
			logger.Error("error shutting down raft", zap.Error(err))
		}
	}

	logger.Info("gateway stopped")
}

// buildExchanges instantiates every configured exchange adapter and the
// per-exchange order pacing
func buildExchanges(cfgs []config.ExchangeConfig, msgCfg msg.Config, logger *zap.Logger) (*exchange.Registry, map[string]runner, []trading.Option, error) {
	var (
		adapters []exchange.Exchange
		runners  = make(map[string]runner)
		opts     []trading.Option
	)

	for _, ec := range cfgs {
		switch ec.Driver {
		case config.DriverPaper:
			ex, err := paper.New(ec, logger)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("exchange %s: %w", ec.Name, err)
			}
			adapters = append(adapters, ex)
			runners[ec.Name] = ex
			opts = append(opts, trading.WithRateLimit(ec.Name, ec.RateLimit, ec.RateBurst))
		case config.DriverKafka:
			if !msgCfg.Enabled() {
				return nil, nil, nil, fmt.Errorf("exchange %s: kafka driver requires KAFKA_BROKERS", ec.Name)
			}
			ex, err := kafkafeed.New(ec, logger)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("exchange %s: %w", ec.Name, err)
			}
			adapters = append(adapters, ex)
			runners[ec.Name] = kafkaRunner{ex: ex, cfg: msgCfg}
		default:
			return nil, nil, nil, fmt.Errorf("exchange %s: unknown driver %q", ec.Name, ec.Driver)
		}
		logger.Info("exchange configured",
			zap.String("exchange", ec.Name),
			zap.String("driver", ec.Driver),
			zap.Strings("symbols", ec.Symbols),
		)
	}

	registry, err := exchange.NewRegistry(adapters...)
	if err != nil {
		return nil, nil, nil, err
	}
	return registry, runners, opts, nil
}

type kafkaRunner struct {
	ex  *kafkafeed.Exchange
	cfg msg.Config
}

func (k kafkaRunner) Run(ctx context.Context) error {
	return k.ex.Run(ctx, k.cfg)
}
