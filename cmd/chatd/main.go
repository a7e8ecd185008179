package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitchat/go-core/internal/config"
	"bitchat/go-core/internal/contacts"
	"bitchat/go-core/internal/giftwrap"
	"bitchat/go-core/internal/identity"
	"bitchat/go-core/internal/messaging"
	"bitchat/go-core/internal/metrics"
	"bitchat/go-core/internal/platform/privacylog"
	"bitchat/go-core/internal/relay"
	"bitchat/go-core/internal/reliability"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	dataDir := flag.String("data-dir", "", "override for local data directory")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()
	if *showVersion {
		fmt.Printf("chatd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(privacylog.WrapHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	))

	if err := run(ctx, logger, *configPath, *dataDir, *metricsAddr); err != nil &&
		!errors.Is(err, context.Canceled) {
		logger.Error("chatd failed", "err", err)
		os.Exit(1)
	}
	logger.Info("chatd stopped")
}

func run(ctx context.Context, logger *slog.Logger, configPath, dataDir, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	seed, created, err := loadOrCreateSeed(filepath.Join(cfg.DataDir, "mnemonic"))
	if err != nil {
		return err
	}
	ids, err := identity.NewManager(seed)
	if err != nil {
		return err
	}
	if created {
		logger.Info("new identity created", "npub", ids.Stable().Npub)
	}

	seen, err := reliability.OpenSeenStore(filepath.Join(cfg.DataDir, "seen.jsonl"))
	if err != nil {
		return err
	}
	defer seen.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, logger)
	}

	router, err := messaging.NewRouter(messaging.Deps{
		Identities:        ids,
		Wrap:              giftwrap.New(),
		Dedup:             reliability.NewDedupCache(cfg.DedupCapacity),
		Seen:              seen,
		Transport:         relay.NewLoopback(),
		Contacts:          contacts.NewBook(),
		Metrics:           metrics.New(reg),
		Logger:            logger,
		AckInterval:       cfg.AckInterval.Std(),
		InboundQueueDepth: cfg.InboundQueueDepth,
		SubscribeLimit:    cfg.SubscribeLimit,
	})
	if err != nil {
		return err
	}

	go func() {
		for d := range router.Deliveries() {
			logger.Info("delivery", "kind", int(d.Kind), "message_id", d.MessageID,
				"pubkey", d.SenderPubKey, "geohash", d.Geohash)
		}
	}()

	logger.Info("chatd starting", "npub", ids.Stable().Npub)
	return router.Run(ctx)
}

// loadOrCreateSeed reads the backup mnemonic from disk or creates a
// fresh one on first use. The mnemonic alone re-derives every
// identity, stable and geohash-scoped.
func loadOrCreateSeed(path string) (seed []byte, created bool, err error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		seed, err := identity.SeedFromMnemonic(strings.TrimSpace(string(raw)))
		return seed, false, err
	}
	if !os.IsNotExist(err) {
		return nil, false, err
	}
	mnemonic, seed, err := identity.NewMasterSeed()
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(path, []byte(mnemonic+"\n"), 0o600); err != nil {
		return nil, false, err
	}
	return seed, true, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "err", err)
	}
}
