package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"github.com/uhyunpark/leskodex/params"
	"github.com/uhyunpark/leskodex/pkg/api"
	"github.com/uhyunpark/leskodex/pkg/app/dex"
	"github.com/uhyunpark/leskodex/pkg/crypto"
	"github.com/uhyunpark/leskodex/pkg/events"
	"github.com/uhyunpark/leskodex/pkg/p2p"
	"github.com/uhyunpark/leskodex/pkg/storage"
	"github.com/uhyunpark/leskodex/pkg/util"
)

func main() {
	envFile := flag.String("env", "", "path to .env file (default: ./.env)")
	flag.Parse()

	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("logger_initialized", zap.String("log_file", cfg.Node.LogFile))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Transaction log ----
	var store storage.Store
	if cfg.Node.InMemory {
		store = storage.NewMemStore()
		logger.Warn("tx_log_in_memory")
	} else {
		dir := filepath.Join(cfg.Node.DataDir, "txlog")
		ps, err := storage.NewPebbleStore(dir)
		if err != nil {
			logger.Fatal("tx_log_open_failed", zap.String("dir", dir), zap.Error(err))
		}
		store = ps
	}
	defer store.Close()

	// ---- Event fan-out ----
	bus := events.NewBus(logger.Named("events"), 1024)

	if len(cfg.Kafka.Brokers) > 0 {
		ks := events.NewKafkaSink(events.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		defer ks.Close()
		bus.Add(ks)
		logger.Info("kafka_sink_enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.P2P.Enabled {
		relay, err := p2p.NewRelay(ctx, p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Bootstrap:  cfg.P2P.Bootstrap,
			Logger:     logger.Named("p2p").Sugar(),
		})
		if err != nil {
			logger.Fatal("libp2p_init_failed", zap.Error(err))
		}
		defer relay.Close()
		relay.OnEvent(func(from peer.ID, ev events.Event) {
			logger.Debug("peer_event", zap.Stringer("peer", from), zap.String("kind", ev.Kind), zap.Uint64("seq", ev.Seq))
		})
		bus.Add(relay)
	}

	// ---- App ----
	appCfg, err := cfg.App()
	if err != nil {
		logger.Fatal("config_invalid", zap.Error(err))
	}
	app, err := dex.New(appCfg, store, logger.Named("dex"), dex.WithPublisher(bus))
	if err != nil {
		logger.Fatal("app_init_failed", zap.Error(err))
	}
	info := app.Info()
	logger.Info("node_starting",
		zap.Stringer("exchange", info.Exchange),
		zap.Stringer("token", info.Token.Address),
		zap.Stringer("fee_account", info.FeeAccount),
		zap.Uint64("fee_percent", info.FeePercent),
		zap.Uint64("chain_id", info.ChainID),
		zap.Uint64("seq", app.State().Seq),
	)

	// ---- Transaction Feeder (optional) ----
	// Enable with: TXGEN_ENABLED=true
	if cfg.TxGen.Enabled {
		funder, err := crypto.FromPrivateKeyHex(cfg.TxGen.FunderKey)
		if err != nil {
			logger.Fatal("txgen_funder_key_invalid", zap.Error(err))
		}
		feeder, err := dex.NewFeeder(app, dex.FeederConfig{
			Interval:    cfg.TxGen.Interval,
			BatchSize:   cfg.TxGen.BatchSize,
			NumAccounts: cfg.TxGen.Accounts,
			Funder:      funder,
		}, logger.Named("txgen"))
		if err != nil {
			logger.Fatal("txgen_init_failed", zap.Error(err))
		}
		go func() {
			if err := feeder.Run(ctx); err != nil {
				logger.Error("txgen_stopped", zap.Error(err))
			}
		}()
		logger.Info("txgen_enabled", zap.Int("accounts", cfg.TxGen.Accounts), zap.Duration("interval", cfg.TxGen.Interval))
	}

	// ---- API Server ----
	apiServer := api.NewServer(app, api.Config{
		Addr:           cfg.Node.APIAddr,
		AllowedOrigins: cfg.Node.CORSOrigins,
	}, logger.Named("api"))
	bus.Add(apiServer.Hub())

	go bus.Run(ctx)

	logger.Info("api_server_starting", zap.String("addr", cfg.Node.APIAddr))
	if err := apiServer.Start(ctx); err != nil {
		logger.Error("api_server_failed", zap.Error(err))
		return
	}
	logger.Info("node_stopped")
}
