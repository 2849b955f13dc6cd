package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentmine-network/agentmine-indexer/internal/api"
	"github.com/agentmine-network/agentmine-indexer/internal/calldata"
	"github.com/agentmine-network/agentmine-indexer/internal/config"
	"github.com/agentmine-network/agentmine-indexer/internal/publisher"
	"github.com/agentmine-network/agentmine-indexer/internal/reconciler"
	"github.com/agentmine-network/agentmine-indexer/internal/worker"
	"github.com/agentmine-network/agentmine-indexer/pkg/chain"
	"github.com/agentmine-network/agentmine-indexer/pkg/db/postgres"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Setup logging
	setupLogging(cfg.LogLevel)
	zapLogger, err := zap.NewProduction()
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	slog.Info("starting agentmine-indexer",
		"chain_id", cfg.ChainID,
		"endpoints", len(cfg.RPCURLs),
		"http_addr", cfg.HTTPAddr,
	)

	// Connect to PostgreSQL and ensure the mirror schema
	store, err := postgres.NewStore(ctx, zapLogger, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to open mirror store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to parse redis url", "err", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Connect to the chain
	for _, a := range []string{cfg.MiningContract, cfg.StakingContract, cfg.TokenContract, cfg.OracleAddress} {
		if !common.IsHexAddress(a) {
			slog.Error("malformed contract address in config", "address", a)
			os.Exit(1)
		}
	}
	chainClient, err := chain.Dial(ctx, chain.Opts{
		Endpoints: cfg.RPCURLs,
		Mining:    common.HexToAddress(cfg.MiningContract),
		Staking:   common.HexToAddress(cfg.StakingContract),
		Token:     common.HexToAddress(cfg.TokenContract),
		ChainID:   cfg.ChainID,
		RPS:       cfg.RPCRPS,
		Burst:     cfg.RPCBurst,
	})
	if err != nil {
		slog.Error("failed to dial chain", "err", err)
		os.Exit(1)
	}
	defer chainClient.Close()

	// Create the reconciliation engine
	engine := reconciler.New(chainClient, store, reconciler.Config{
		OracleWallet:    common.HexToAddress(cfg.OracleAddress),
		ScanWindow:      cfg.ScanWindow,
		ScanOverlap:     cfg.ScanOverlap,
		StaleStakeTTL:   cfg.StaleStakeTTL,
		StaleStakeBatch: cfg.StaleStakeBat,
	})

	// Create the calldata service
	svc := calldata.New(chainClient, calldata.Config{
		RoundLookback:  cfg.RoundLookback,
		RevealLookback: cfg.RevealLookback,
	}, nil)

	// Create worker
	wrk, err := worker.New(worker.Config{
		RedisClient:   redisClient,
		Engine:        engine,
		Topic:         cfg.SyncTopic,
		ConsumerGroup: cfg.ConsumerGroup,
	})
	if err != nil {
		slog.Error("failed to create worker", "err", err)
		os.Exit(1)
	}
	defer wrk.Close()

	// Create API server
	server, err := api.NewServer(store, engine, svc, zapLogger, cfg.HTTPAddr, cfg.SyncSecret)
	if err != nil {
		slog.Error("failed to create api server", "err", err)
		os.Exit(1)
	}

	// Run all components
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting worker")
		return wrk.Run(ctx)
	})

	g.Go(func() error {
		return server.Run(ctx)
	})

	// Optional in-process tick publisher; most deployments trigger via
	// POST /api/sync or an external scheduler instead.
	if cfg.SyncInterval > 0 {
		pub, err := publisher.New(redisClient, cfg.SyncTopic)
		if err != nil {
			slog.Error("failed to create publisher", "err", err)
			os.Exit(1)
		}
		defer pub.Close()

		g.Go(func() error {
			slog.Info("starting interval tick publisher", "interval", cfg.SyncInterval)
			return pub.RunInterval(ctx, cfg.SyncInterval)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("indexer error", "err", err)
		os.Exit(1)
	}

	slog.Info("shutdown complete")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
