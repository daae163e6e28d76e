package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthvault/config"
	"synthvault/native/synth"
	"synthvault/observability/logging"
	"synthvault/oracle"
	"synthvault/rpc"
	"synthvault/storage"
	"synthvault/token"
)

// moduleAddress is the identity the engine custodies collateral and pending
// debt-token balances under.
var moduleAddress = common.HexToAddress("0x73796e74687661756c742d6d6f64756c652d3031")

func main() {
	configPath := flag.String("config", "synthvault.toml", "path to the TOML configuration file")
	env := flag.String("env", "", "deployment environment label attached to log lines")
	flag.Parse()

	logger := logging.Setup("synthvaultd", *env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load configuration", "error", err)
		os.Exit(1)
	}

	var db storage.Database
	if cfg.Storage.Path != "" {
		db, err = storage.NewLevelDB(cfg.Storage.Path)
		if err != nil {
			logger.Error("open database", "path", cfg.Storage.Path, "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no storage path configured, state will not survive restarts")
		db = storage.NewMemDB()
	}
	defer db.Close()

	tokens := make([]common.Address, 0, len(cfg.Assets))
	feeds := make([]common.Address, 0, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		tokens = append(tokens, asset.TokenAddress())
		feeds = append(feeds, asset.FeedAddress())
	}
	registry, err := synth.NewRegistry(tokens, feeds)
	if err != nil {
		logger.Error("build asset registry", "error", err)
		os.Exit(1)
	}

	feed := oracle.NewStaticFeed(8)
	for _, asset := range cfg.Assets {
		feed.Register(asset.FeedAddress(), asset.Decimals)
		seed, err := asset.ParsedPriceSeed()
		if err != nil {
			logger.Error("parse price seed", "asset", asset.Symbol, "error", err)
			os.Exit(1)
		}
		if seed != nil {
			if err := feed.SetPrice(asset.FeedAddress(), seed); err != nil {
				logger.Error("seed price", "asset", asset.Symbol, "error", err)
				os.Exit(1)
			}
		}
	}

	engine := synth.NewEngine(moduleAddress, registry, synth.RiskParameters{
		LiquidationThresholdBps: cfg.Engine.LiquidationThresholdBps,
		LiquidationBonusBps:     cfg.Engine.LiquidationBonusBps,
	})
	engine.SetState(synth.NewPositionStore(db))
	engine.SetOracle(feed)
	engine.SetAuditTrail(synth.NewAuditTrail(db))
	engine.SetDebtToken(token.NewLedger(db, "susd", moduleAddress))
	for _, asset := range cfg.Assets {
		engine.SetCollateralToken(asset.TokenAddress(), token.NewLedger(db, asset.Symbol, moduleAddress))
	}

	server := rpc.NewServer(engine, feed, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Listen, "assets", registry.Len())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
