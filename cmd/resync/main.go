package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/agentmine-network/agentmine-indexer/internal/config"
	"github.com/agentmine-network/agentmine-indexer/internal/reconciler"
	"github.com/agentmine-network/agentmine-indexer/pkg/chain"
	"github.com/agentmine-network/agentmine-indexer/pkg/db/postgres"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

func main() {
	// Parse flags
	fromBlock := flag.Uint64("from", 0, "Start block of the event re-scan")
	toBlock := flag.Uint64("to", 0, "End block of the event re-scan (default: current head)")
	rounds := flag.String("rounds", "", "Comma-separated round ids or a-b ranges to force-refresh")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	roundIDs, err := parseRounds(*rounds)
	if err != nil {
		slog.Error("bad -rounds value", "err", err)
		os.Exit(1)
	}
	if *fromBlock == 0 && len(roundIDs) == 0 {
		slog.Error("nothing to do: pass -from/-to for an event re-scan or -rounds for a round refresh")
		os.Exit(1)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	store, err := postgres.NewStore(ctx, zapLogger, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to open mirror store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

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

	engine := reconciler.New(chainClient, store, reconciler.Config{
		OracleWallet: common.HexToAddress(cfg.OracleAddress),
	})

	exitCode := 0

	if *fromBlock > 0 {
		to := *toBlock
		if to == 0 {
			if to, err = chainClient.BlockNumber(ctx); err != nil {
				slog.Error("failed to read chain head", "err", err)
				os.Exit(1)
			}
		}
		if to < *fromBlock {
			slog.Error("empty block range", "from", *fromBlock, "to", to)
			os.Exit(1)
		}

		sum, err := engine.ScanRange(ctx, *fromBlock, to)
		if err != nil {
			slog.Error("event re-scan failed", "err", err)
			os.Exit(1)
		}

		fmt.Printf("Event re-scan [%d, %d]:\n", *fromBlock, to)
		fmt.Printf("  Commits Inserted: %d\n", sum.CommitsInserted)
		fmt.Printf("  Commits Skipped:  %d\n", sum.CommitsSkipped)
		fmt.Printf("  Stakes Refreshed: %d\n", sum.StakesRefreshed)
		fmt.Printf("  Errors:           %d\n", sum.Errors)
		fmt.Printf("  Duration:         %dms\n\n", sum.DurationMs)
		if sum.Errors > 0 {
			exitCode = 1
		}
	}

	if len(roundIDs) > 0 {
		sum, err := engine.SyncRounds(ctx, roundIDs)
		if err != nil {
			slog.Error("round refresh failed", "err", err)
			os.Exit(1)
		}

		fmt.Printf("Round refresh (%d rounds):\n", len(roundIDs))
		fmt.Printf("  Rounds Refreshed: %d\n", sum.RoundsRefreshed)
		fmt.Printf("  Errors:           %d\n", sum.Errors)
		fmt.Printf("  Duration:         %dms\n", sum.DurationMs)
		if sum.Errors > 0 {
			exitCode = 1
		}
	}

	os.Exit(exitCode)
}

// parseRounds expands "3,7,10-12" into [3 7 10 11 12].
func parseRounds(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}

	var ids []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			a, err := strconv.ParseUint(lo, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("range start %q: %w", lo, err)
			}
			b, err := strconv.ParseUint(hi, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("range end %q: %w", hi, err)
			}
			if b < a {
				return nil, fmt.Errorf("range %q is backwards", part)
			}
			for id := a; id <= b; id++ {
				ids = append(ids, id)
			}
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("round id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
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
