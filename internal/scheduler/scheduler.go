// Package scheduler drives the main cadence: one scan/GC pass per TX_REFRESH,
// periodic dashboard/report refresh, periodic heartbeat, and snapshotting the
// state store every N cycles and on shutdown (spec §4.10).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/solana-signal-daas/internal/alertengine"
	"github.com/aristath/solana-signal-daas/internal/domain"
	"github.com/aristath/solana-signal-daas/internal/statestore"
	"github.com/aristath/solana-signal-daas/internal/watchlist"
	"github.com/aristath/solana-signal-daas/internal/webhook"
)

// Engine is the subset of the Alert Engine the scheduler drives per wallet.
type Engine interface {
	Scan(ctx context.Context, wallet domain.Wallet, tier domain.Tier) error
}

// Config holds the cadence knobs (spec §4.10, §6).
type Config struct {
	TxRefresh            time.Duration
	ReportRefresh        time.Duration
	HeartbeatInterval    time.Duration
	MaxConcurrency       int
	SnapshotEveryNCycles int
	DataDir              string
	DryRun               bool
	RPCEndpointCount     int
}

// stats accumulates cycle-level counters surfaced in the JSON report.
type stats struct {
	startTime       time.Time
	totalScans      int64
	successfulScans int64
	failedScans     int64
}

// Scheduler drives the scan/report/snapshot/heartbeat cadence (spec §4.10).
type Scheduler struct {
	engine    Engine
	watchlist *watchlist.Watchlist
	store     *statestore.Store
	alerts    *alertengine.AlertRing
	blocked   *alertengine.BlockedRing
	sender    *webhook.Sender
	cfg       Config
	stats     *stats
	cron      *cron.Cron
	log       zerolog.Logger

	lastLoopTS atomic.Int64
	cycleCount int
}

// New builds a Scheduler. ReportRefresh is floored to 600s per spec §4.10.
func New(engine Engine, wl *watchlist.Watchlist, store *statestore.Store, alerts *alertengine.AlertRing, blocked *alertengine.BlockedRing, sender *webhook.Sender, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.ReportRefresh < 600*time.Second {
		cfg.ReportRefresh = 600 * time.Second
	}
	return &Scheduler{
		engine: engine, watchlist: wl, store: store, alerts: alerts, blocked: blocked,
		sender: sender, cfg: cfg, stats: &stats{startTime: time.Now()},
		cron: cron.New(), log: log.With().Str("component", "scheduler").Logger(),
	}
}

// StartCron registers the report and heartbeat cadences and starts the cron
// runner. Call once, before Run.
func (s *Scheduler) StartCron() {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.ReportRefresh), func() {
		s.refreshReports(time.Now())
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to register report cron job")
	}
	if s.cfg.HeartbeatInterval > 0 {
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.HeartbeatInterval), func() {
			s.sendHeartbeat(context.Background())
		}); err != nil {
			s.log.Error().Err(err).Msg("failed to register heartbeat cron job")
		}
	}
	s.cron.Start()
}

// StopCron stops the cron runner and waits for any in-flight job to finish.
func (s *Scheduler) StopCron() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run blocks, executing one scan/GC cycle per cadence until ctx is cancelled:
// sleep(max(5s, TX_REFRESH − elapsed)) between cycles (spec §4.10).
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		s.runCycle(ctx)
		elapsed := time.Since(start)

		sleepFor := s.cfg.TxRefresh - elapsed
		if sleepFor < 5*time.Second {
			sleepFor = 5 * time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	now := time.Now()
	s.lastLoopTS.Store(now.Unix())
	s.store.GC(now)

	s.fanOutScans(ctx)

	s.cycleCount++
	if s.cfg.SnapshotEveryNCycles > 0 && s.cycleCount%s.cfg.SnapshotEveryNCycles == 0 {
		if err := s.store.Save(); err != nil {
			s.log.Error().Err(err).Msg("state snapshot failed")
		}
	}
}

// fanOutScans runs one scan per watched wallet, bounded by MaxConcurrency, with
// per-task panic isolation: a single failing wallet never aborts the cycle
// (spec §4.10, §5's gather-with-exceptions).
func (s *Scheduler) fanOutScans(ctx context.Context) {
	wallets := s.watchlist.Snapshot()
	sem := make(chan struct{}, maxConcurrency(s.cfg.MaxConcurrency))
	var wg sync.WaitGroup

	for _, wallet := range wallets {
		wallet := wallet
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					atomic.AddInt64(&s.stats.failedScans, 1)
					s.log.Error().Interface("panic", r).Str("wallet", wallet.Address).Msg("scan task panicked")
				}
			}()

			atomic.AddInt64(&s.stats.totalScans, 1)
			if err := s.engine.Scan(ctx, wallet, domain.TierFree); err != nil {
				atomic.AddInt64(&s.stats.failedScans, 1)
				s.log.Error().Err(err).Str("wallet", wallet.Address).Msg("scan wallet exception")
				return
			}
			atomic.AddInt64(&s.stats.successfulScans, 1)
		}()
	}
	wg.Wait()
}

func maxConcurrency(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func (s *Scheduler) refreshReports(now time.Time) {
	wallets := s.watchlist.Snapshot()
	alerts := s.alerts.Recent(1000)

	if err := writeDashboardCSV(s.cfg.DataDir, wallets, alerts); err != nil {
		s.log.Error().Err(err).Msg("dashboard csv refresh failed")
	}
	if err := writeMarkdownReport(s.cfg.DataDir, wallets, alerts, s.blocked.Recent(100)); err != nil {
		s.log.Error().Err(err).Msg("markdown report refresh failed")
	}
	if err := writeJSONReport(s.cfg.DataDir, s.buildDetailedReport(now, wallets, alerts)); err != nil {
		s.log.Error().Err(err).Msg("json report refresh failed")
	}
}

func (s *Scheduler) buildDetailedReport(now time.Time, wallets []domain.Wallet, alerts []domain.Alert) detailedReport {
	total := atomic.LoadInt64(&s.stats.totalScans)
	successful := atomic.LoadInt64(&s.stats.successfulScans)
	failed := atomic.LoadInt64(&s.stats.failedScans)

	successRate := 0.0
	if total > 0 {
		successRate = float64(successful) / float64(total) * 100
	}

	walletStats := make([]map[string]interface{}, 0, len(wallets))
	for _, w := range wallets {
		walletStats = append(walletStats, map[string]interface{}{
			"wallet":         w.Address,
			"net_total":      w.NetTotal,
			"win_rate":       w.WinRate,
			"dex":            w.DexLabel,
			"duration_hours": w.DurationHours,
		})
	}

	recent := alerts
	if len(recent) > 10 {
		recent = recent[:10]
	}

	return detailedReport{
		Timestamp:     now.UTC().Format(time.RFC3339),
		UptimeSeconds: now.Sub(s.stats.startTime).Seconds(),
		Configuration: map[string]interface{}{
			"tx_refresh_seconds":   s.cfg.TxRefresh.Seconds(),
			"max_concurrency":      s.cfg.MaxConcurrency,
			"dry_run":              s.cfg.DryRun,
			"rpc_endpoints_count":  s.cfg.RPCEndpointCount,
			"snapshot_every_cycle": s.cfg.SnapshotEveryNCycles,
		},
		Statistics: map[string]interface{}{
			"total_scans":      total,
			"successful_scans": successful,
			"failed_scans":     failed,
			"success_rate":     successRate,
			"watchlist_size":   s.watchlist.Len(),
			"alerts_generated": len(alerts),
		},
		Wallets:      walletStats,
		RecentAlerts: recent,
	}
}

func (s *Scheduler) sendHeartbeat(ctx context.Context) {
	s.sender.SendSystemNotification(ctx, "heartbeat", "bot active", map[string]string{
		"watchlist_size": fmt.Sprintf("%d", s.watchlist.Len()),
		"total_scans":    fmt.Sprintf("%d", atomic.LoadInt64(&s.stats.totalScans)),
	})
}

// LastLoopTS reports the Unix timestamp of the most recently started cycle, for
// /healthz staleness detection (spec §6).
func (s *Scheduler) LastLoopTS() int64 { return s.lastLoopTS.Load() }
