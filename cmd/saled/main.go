package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tokensale/cmd/internal/secret"
	"tokensale/config"
	"tokensale/core"
	"tokensale/core/clock"
	"tokensale/core/events"
	"tokensale/core/types"
	"tokensale/crypto"
	"tokensale/native/sale"
	"tokensale/native/token"
	"tokensale/observability"
	"tokensale/observability/logging"
	telemetry "tokensale/observability/otel"
	"tokensale/rpc"
	"tokensale/rpc/middleware"
	"tokensale/services/finalizer"
	"tokensale/services/journal"
	"tokensale/storage"
)

const ownerPassEnv = "SALE_OWNER_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "saled: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := cfg.Telemetry.Environment
	if env == "" {
		env = strings.TrimSpace(os.Getenv("SALE_ENV"))
	}
	logger := logging.Setup("saled", env, logging.FileOptions{Path: cfg.Telemetry.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "saled",
		Environment: env,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.OTLPHeaders),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	pass, err := secret.NewSource(ownerPassEnv, "owner keystore passphrase", true).Get()
	if err != nil {
		return err
	}
	ownerKey, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, pass)
	if err != nil {
		return fmt.Errorf("load owner key: %w", err)
	}
	owner := ownerKey.PubKey().Address().Array()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.Open(cfg.StorageEngine, cfg.StoragePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var (
		sinks   []events.Emitter
		history []*types.Event
	)
	if path := strings.TrimSpace(cfg.JournalPath); path != "" {
		trail, err := journal.Open(path, logger)
		if err != nil {
			return err
		}
		defer trail.Close()
		if err := trail.Verify(); err != nil {
			return fmt.Errorf("verify journal %s: %w", path, err)
		}
		if history, err = trail.History(); err != nil {
			return fmt.Errorf("replay journal %s: %w", path, err)
		}
		sinks = append(sinks, trail)
	}

	node, err := buildNode(cfg, db, owner, logger, history, sinks...)
	if err != nil {
		return err
	}

	if path := strings.TrimSpace(cfg.Sale.WhitelistFile); path != "" {
		entries, err := config.LoadWhitelist(path)
		if err != nil {
			return fmt.Errorf("load whitelist: %w", err)
		}
		seedWhitelist(node, owner, entries, logger)
	}

	if cfg.Finalizer.Enabled {
		job := finalizer.New(node, owner, logger)
		if err := job.Register(cfg.Finalizer.Schedule); err != nil {
			return err
		}
		job.Start()
		defer job.Stop()
	}

	server, err := rpc.NewServer(node, rpc.ServerConfig{
		JWTSecret: os.Getenv(cfg.RPC.JWTSecretEnv),
		JWTIssuer: cfg.RPC.JWTIssuer,
		RateLimit: middleware.RateLimit{
			RatePerSecond: cfg.RPC.RateLimitPerSecond,
			Burst:         cfg.RPC.RateLimitBurst,
		},
		MaxRequestBodyBytes: cfg.RPC.MaxRequestBodyBytes,
		ReadHeaderTimeout:   time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
		WriteTimeout:        time.Duration(cfg.RPC.WriteTimeout) * time.Second,
		IdleTimeout:         time.Duration(cfg.RPC.IdleTimeout) * time.Second,
		LogRequests:         true,
	}, logger)
	if err != nil {
		return err
	}
	if os.Getenv(cfg.RPC.JWTSecretEnv) == "" {
		logger.Warn("RPC JWT secret not set; state-changing methods are disabled", slog.String("env", cfg.RPC.JWTSecretEnv))
	}

	status, err := node.Status()
	if err != nil {
		return err
	}
	logger.Info("sale node ready",
		slog.String("controller", crypto.FormatAddress(node.Self())),
		slog.String("owner", crypto.FormatAddress(owner)),
		slog.String("phase", status.Phase.String()),
		slog.Uint64("height", status.Now.Height))

	if err := server.Start(ctx, cfg.RPC.Address); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("saled stopped")
	return nil
}

// buildNode wires the sale controller for owner. The controller address is the
// first address derived from the owner so it stays stable across restarts.
// history seeds the node's event log; events also reach the metrics sink and
// any extra emitters.
func buildNode(cfg *config.Config, db storage.Database, owner [20]byte, logger *slog.Logger, history []*types.Event, extra ...events.Emitter) (*core.Node, error) {
	params, err := cfg.SaleParams()
	if err != nil {
		return nil, err
	}
	wallet, err := cfg.Sale.WalletAddress()
	if err != nil {
		return nil, fmt.Errorf("sale wallet: %w", err)
	}
	genesis := time.Unix(cfg.Chain.GenesisTime, 0)
	if cfg.Chain.GenesisTime == 0 {
		genesis = time.Now()
	}
	blockClock := clock.NewBlockClock(genesis, time.Duration(cfg.Chain.BlockIntervalSeconds)*time.Second)

	node, err := core.NewNode(core.Options{
		DB: db,
		Token: token.Metadata{
			Symbol:   cfg.Token.Symbol,
			Name:     cfg.Token.Name,
			Decimals: cfg.Token.Decimals,
		},
		Sale: sale.Config{
			Self:   crypto.DeriveAddress(owner, 0),
			Owner:  owner,
			Wallet: wallet,
			Params: params,
		},
		Clock:    blockClock,
		Emitters: append([]events.Emitter{observability.Sale()}, extra...),
		History:  history,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	return node, nil
}

// seedWhitelist registers the configured buyers. Entries persisted by an
// earlier run are no-ops; entries that can no longer be applied (a new
// preferential rate after the window opened) are logged and skipped.
func seedWhitelist(node *core.Node, owner [20]byte, entries []config.WhitelistEntry, logger *slog.Logger) int {
	applied := 0
	for _, entry := range entries {
		addr := crypto.FormatAddress(entry.Address)
		if err := node.AddToWhitelist(owner, entry.Address); err != nil {
			logger.Warn("whitelist seed skipped", slog.String("address", addr), slog.Any("error", err))
			continue
		}
		if entry.Rate != nil {
			err := node.SetBuyerRate(owner, entry.Address, entry.Rate)
			switch {
			case errors.Is(err, sale.ErrRateAlreadySet):
				logger.Debug("preferential rate already persisted", slog.String("address", addr))
			case err != nil:
				logger.Warn("preferential rate seed skipped", slog.String("address", addr), slog.Any("error", err))
			}
		}
		applied++
	}
	logger.Info("whitelist seeded", slog.Int("entries", applied))
	return applied
}
