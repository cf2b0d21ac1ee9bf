// Package main is the entry point for the Solana wallet-signal DaaS: it wires the
// RPC Client Fabric, Profit Estimator, Alert Engine, Scheduler, Signal API Service,
// and the reliability sidecar around the single sqlite state file, then runs until
// an interrupt signal arrives.
package main

import (
	"context"
	"encoding/csv"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aristath/solana-signal-daas/internal/alertengine"
	"github.com/aristath/solana-signal-daas/internal/apiauth"
	"github.com/aristath/solana-signal-daas/internal/billing"
	"github.com/aristath/solana-signal-daas/internal/clients/solanarpc"
	"github.com/aristath/solana-signal-daas/internal/config"
	"github.com/aristath/solana-signal-daas/internal/copytrader"
	"github.com/aristath/solana-signal-daas/internal/database"
	"github.com/aristath/solana-signal-daas/internal/domain"
	"github.com/aristath/solana-signal-daas/internal/live"
	"github.com/aristath/solana-signal-daas/internal/metrics"
	"github.com/aristath/solana-signal-daas/internal/pricecache"
	"github.com/aristath/solana-signal-daas/internal/profit"
	"github.com/aristath/solana-signal-daas/internal/ratelimiter"
	"github.com/aristath/solana-signal-daas/internal/reliability"
	"github.com/aristath/solana-signal-daas/internal/scheduler"
	"github.com/aristath/solana-signal-daas/internal/server"
	"github.com/aristath/solana-signal-daas/internal/statestore"
	"github.com/aristath/solana-signal-daas/internal/watchlist"
	"github.com/aristath/solana-signal-daas/internal/webhook"
	"github.com/aristath/solana-signal-daas/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "info", Pretty: true}).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)
	log.Info().Msg("starting signal service")

	db, err := database.New(database.Config{Path: cfg.StateDBPath(), Profile: database.ProfileStandard, Name: "state"})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate state database")
	}

	store := statestore.New(db.Conn(), time.Duration(cfg.Alerting.StateTTLSeconds)*time.Second, cfg.Alerting.MaxSeenSignatures, log)
	if err := store.Load(); err != nil {
		log.Error().Err(err).Msg("failed to load persisted state, starting empty")
	}

	wl := watchlist.New(cfg.Alerting.WatchlistMaxSize, time.Duration(cfg.Alerting.WatchlistTTLSec)*time.Second)
	if seedPath := os.Getenv("WATCHLIST_SEED_FILE"); seedPath != "" {
		seed, err := loadWatchlistSeed(seedPath)
		if err != nil {
			log.Error().Err(err).Str("path", seedPath).Msg("failed to load watchlist seed file")
		} else {
			wl.Seed(seed)
			log.Info().Int("count", len(seed)).Msg("watchlist seeded")
		}
	}

	rpcClient := solanarpc.New(solanarpc.Config{
		Endpoints:              cfg.RPC.Endpoints,
		TimeoutSec:             cfg.RPC.TimeoutSec,
		MaxRetries:             cfg.RPC.MaxRetries,
		CircuitBreakerFailures: cfg.RPC.CircuitBreakerFailures,
		CircuitBreakerPauseSec: cfg.RPC.CircuitBreakerPauseSec,
		JitterBase:             cfg.RPC.JitterBase,
		JitterMax:              cfg.RPC.JitterMax,
		Mode:                   solanarpc.Mode(cfg.RPC.Mode),
		FixturesDir:            cfg.RPC.FixturesDir,
	}, log)

	priceCache := pricecache.New(db.Conn())
	priceSources := []pricecache.PriceSource{pricecache.NewJupiterSource(log)}
	if cfg.Pricing.BirdeyeAPIKey != "" {
		priceSources = append(priceSources, pricecache.NewBirdeyeSource(cfg.Pricing.BirdeyeAPIKey, cfg.Pricing.FiatSolApproxUSD, log))
	}
	estimator := profit.New(rpcClient, priceCache, priceSources, cfg.Metrics.BalanceTolerancePct, log)

	alerts := alertengine.NewAlertRing(1000)
	blocked := alertengine.NewBlockedRing(1000)

	reg := metrics.New()

	engine := alertengine.New(rpcClient, estimator, store, wl, alerts, blocked, alertengine.Config{
		ProfitThreshold: cfg.Alerting.ProfitThreshold,
		GainFilter:      cfg.Alerting.GainFilter,
		WinRateFilter:   cfg.Alerting.WinRateFilter,
		Cooldown:        time.Duration(cfg.Alerting.CooldownSec) * time.Second,
		NewWalletGain:   cfg.Alerting.NewWalletGain,
		NewWalletMinTrx: cfg.Alerting.NewWalletMinTrx,
		AlertBatchSize:  cfg.Alerting.AlertBatchSize,
		TxLookback:      cfg.Loop.TxLookback,
		DryRun:          cfg.Alerting.DryRun,
	}, log)
	engine.SetMetrics(reg)
	wl.SetMetrics(reg)

	sender := webhook.New(webhook.Config{
		URL:                  cfg.Webhook.URL,
		IncludePaywallPrompt: cfg.Alerting.IncludePaywallHint,
		DryRun:               cfg.Alerting.DryRun,
	}, log)
	// Every accepted alert fans out to the configured webhook target (spec §2 data
	// flow, §4.9); SendAlert itself is a no-op when no URL is configured or dry-run
	// is set.
	engine.AddObserver(sender)

	var liveHub *live.Hub
	if cfg.LiveStreamEnabled {
		liveHub = live.NewHub(log)
		engine.AddObserver(liveHub)
		log.Info().Msg("live stream observer registered")
	}
	if cfg.CopyTraderEnabled {
		engine.AddObserver(copytrader.NewLoggingObserver(log))
		log.Info().Msg("copytrader observer registered")
	}

	sched := scheduler.New(engine, wl, store, alerts, blocked, sender, scheduler.Config{
		TxRefresh:            time.Duration(cfg.Loop.TxRefreshSeconds) * time.Second,
		ReportRefresh:        time.Duration(cfg.Loop.ReportRefreshSeconds) * time.Second,
		HeartbeatInterval:    cfg.HeartbeatInterval(),
		MaxConcurrency:       cfg.Loop.MaxConcurrency,
		SnapshotEveryNCycles: cfg.Loop.SnapshotEveryNCycles,
		DataDir:              cfg.DataDir,
		DryRun:               cfg.Alerting.DryRun,
		RPCEndpointCount:     len(cfg.RPC.Endpoints),
	}, log)

	auth := apiauth.New(db.Conn())
	limiter := ratelimiter.New(db.Conn(), ratelimiter.Limits{
		Free: cfg.API.RateLimitFree, Pro: cfg.API.RateLimitPro, Elite: cfg.API.RateLimitElite,
	})
	billingSvc := billing.New(auth, db.Conn())

	var liveHandler *live.Handler
	if liveHub != nil {
		liveHandler = live.NewHandler(liveHub, true, log)
	}

	srv := server.New(server.Config{
		Host:                cfg.API.Host,
		Port:                cfg.API.Port,
		DevMode:             os.Getenv("DEV_MODE") == "true",
		DryRun:              cfg.Alerting.DryRun,
		DaasMode:            cfg.DaasMode,
		IncludePaywallHint:  cfg.Alerting.IncludePaywallHint,
		FakeCheckoutEnabled: cfg.Billing.FakeCheckoutEnabled,
		HealthStaleSeconds:  cfg.HealthStaleSeconds,
	}, auth, limiter, billingSvc, alerts, wl, sched, liveHandler, log)

	health := reliability.NewHealthService(db, cfg.StateDBPath(), log)
	backup := reliability.NewBackupService(db, cfg.DataDir+"/backups", log)
	var r2Backup *reliability.R2BackupService
	if cfg.SnapshotBackup.Enabled {
		r2Client, err := reliability.NewR2Client(context.Background(), reliability.R2Config{
			Bucket:   cfg.SnapshotBackup.Bucket,
			Endpoint: cfg.SnapshotBackup.Endpoint,
			Region:   cfg.SnapshotBackup.Region,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to build r2 client, off-site backup disabled")
		} else {
			r2Backup = reliability.NewR2BackupService(r2Client, backup, cfg.DataDir, log)
		}
	}
	maintenance := reliability.NewMaintenanceService(health, backup, r2Backup, cfg.SnapshotBackup.RetentionDays, cfg.DataDir, log)

	maintCron := cron.New()
	if _, err := maintCron.AddFunc("0 3 * * *", func() {
		if err := maintenance.RunDaily(context.Background()); err != nil {
			log.Error().Err(err).Msg("daily maintenance failed")
		}
	}); err != nil {
		log.Error().Err(err).Msg("failed to register daily maintenance cron job")
	}
	if _, err := maintCron.AddFunc("0 4 * * 0", func() {
		if err := maintenance.RunWeekly(context.Background()); err != nil {
			log.Error().Err(err).Msg("weekly maintenance failed")
		}
	}); err != nil {
		log.Error().Err(err).Msg("failed to register weekly maintenance cron job")
	}
	maintCron.Start()

	sched.StartCron()

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("signal api server failed")
		}
	}()

	sender.SendSystemNotification(context.Background(), "started", "signal service online", map[string]string{
		"dry_run":   strconv.FormatBool(cfg.Alerting.DryRun),
		"daas_mode": strconv.FormatBool(cfg.DaasMode),
	})

	log.Info().Int("port", cfg.API.Port).Msg("signal service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	<-maintCron.Stop().Done()
	sched.StopCron()

	if err := store.Save(); err != nil {
		log.Error().Err(err).Msg("failed to snapshot state on shutdown")
	}

	sender.SendSystemNotification(context.Background(), "stopped", "signal service shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("stopped")
}

// loadWatchlistSeed reads a CSV of address,net_total,win_rate,total_transactions,dex,
// duration_hours rows. The seed file's format and construction are explicitly out of
// scope; this reader is a minimal convenience for local/dev bring-up.
func loadWatchlistSeed(path string) ([]domain.Wallet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var wallets []domain.Wallet
	for i, row := range rows {
		if i == 0 || len(row) < 6 {
			continue
		}
		netTotal, _ := strconv.ParseFloat(row[1], 64)
		winRate, _ := strconv.ParseFloat(row[2], 64)
		totalTx, _ := strconv.Atoi(row[3])
		duration, _ := strconv.ParseFloat(row[5], 64)
		wallets = append(wallets, domain.Wallet{
			Address:           row[0],
			NetTotal:          netTotal,
			WinRate:           winRate,
			TotalTransactions: totalTx,
			DexLabel:          row[4],
			DurationHours:     duration,
		})
	}
	return wallets, nil
}
