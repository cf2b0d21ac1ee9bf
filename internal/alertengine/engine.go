// Package alertengine implements the per-wallet scan task: fetch signatures,
// estimate profit, run the filter gauntlet, emit alerts, and auto-promote active
// counterparties onto the watchlist (spec §4.5).
package alertengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/solana-signal-daas/internal/domain"
	"github.com/aristath/solana-signal-daas/internal/metrics"
	"github.com/aristath/solana-signal-daas/internal/statestore"
	"github.com/aristath/solana-signal-daas/internal/watchlist"
)

// RPC is the subset of the RPC Client Fabric the engine needs directly (the Profit
// Estimator owns its own GetTransaction calls).
type RPC interface {
	GetSignaturesForAddress(ctx context.Context, addr string, limit int) ([]domain.Signature, error)
}

// Estimator is the subset of the Profit Estimator the engine needs.
type Estimator interface {
	Estimate(ctx context.Context, wallet string, signatures []domain.Signature, maxTx int) domain.ProfitResult
}

// Config holds the filter-gauntlet thresholds and batching knobs (spec §4.5, §6).
type Config struct {
	ProfitThreshold float64
	GainFilter      float64
	WinRateFilter   float64
	Cooldown        time.Duration
	NewWalletGain   float64
	NewWalletMinTrx int
	AlertBatchSize  int
	TxLookback      int
	DryRun          bool
}

// Observer is notified of every alert the engine accepts, right after it is
// pushed onto the ring. internal/copytrader.Observer and internal/live.Hub
// both satisfy this interface structurally.
type Observer interface {
	OnAlert(alert domain.Alert)
}

// Engine runs the per-wallet scan task.
type Engine struct {
	rpc       RPC
	estimator Estimator
	store     *statestore.Store
	watchlist *watchlist.Watchlist
	alerts    *AlertRing
	blocked   *BlockedRing
	history   *profitHistory
	cfg       Config
	log       zerolog.Logger
	metrics   *metrics.Registry

	obsMu     sync.RWMutex
	observers []Observer
}

// New builds an Engine.
func New(rpc RPC, estimator Estimator, store *statestore.Store, wl *watchlist.Watchlist, alerts *AlertRing, blocked *BlockedRing, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		rpc: rpc, estimator: estimator, store: store, watchlist: wl,
		alerts: alerts, blocked: blocked, history: newProfitHistory(),
		cfg: cfg, log: log.With().Str("component", "alertengine").Logger(),
	}
}

// SetMetrics attaches the shared metrics registry (spec §4.5 step 10: alerts_total,
// last_profit, last_alert_ts, alert_duration). Nil-safe: unit tests that never call
// this simply skip metric updates.
func (e *Engine) SetMetrics(m *metrics.Registry) {
	e.metrics = m
}

// AddObserver registers o to be notified of every alert accepted from this
// point forward. Safe to call concurrently with Scan.
func (e *Engine) AddObserver(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine) notifyObservers(alert domain.Alert) {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, o := range e.observers {
		o.OnAlert(alert)
	}
}

// Scan runs the full per-wallet pipeline for one wallet. A wallet-level RPC failure
// is logged and returns nil — a single failing wallet never aborts the scan cycle
// (spec §4.5 step 3, §4.10 cancellation/timeout).
func (e *Engine) Scan(ctx context.Context, wallet domain.Wallet, tier domain.Tier) error {
	start := time.Now()
	e.watchlist.Touch(wallet.Address)

	sigs, err := e.rpc.GetSignaturesForAddress(ctx, wallet.Address, e.cfg.TxLookback)
	if err != nil {
		e.log.Warn().Err(err).Str("wallet", wallet.Address).Msg("signatures fetch failed")
		return nil
	}
	if len(sigs) == 0 {
		return nil
	}

	increment := e.selectIncrement(wallet.Address, sigs)
	if len(increment) == 0 {
		return nil
	}

	for _, batch := range batchBySlot(increment, e.cfg.AlertBatchSize) {
		e.processBatch(ctx, wallet, tier, batch, start)
	}

	return nil
}

// selectIncrement implements spec §4.5 step 4: if no last-seen signature exists,
// take the first 5; otherwise take the prefix strictly newer than the last-seen.
// The new head is saved as the last-seen regardless of whether any alert emerges.
func (e *Engine) selectIncrement(wallet string, sigs []domain.Signature) []domain.Signature {
	last, ok := e.store.LastSignature(wallet)

	var increment []domain.Signature
	if !ok {
		n := 5
		if n > len(sigs) {
			n = len(sigs)
		}
		increment = append(increment, sigs[:n]...)
	} else {
		for _, s := range sigs {
			if s.Value == last {
				break
			}
			increment = append(increment, s)
		}
	}

	e.store.SetLastSignature(wallet, sigs[0].Value)
	return increment
}

// batchBySlot groups signatures by slot, orders groups by descending slot, and
// splits each group into chunks of size batchSize (spec §4.5 step 5).
func batchBySlot(sigs []domain.Signature, batchSize int) [][]domain.Signature {
	groups := make(map[uint64][]domain.Signature)
	var slots []uint64
	for _, s := range sigs {
		if _, ok := groups[s.Slot]; !ok {
			slots = append(slots, s.Slot)
		}
		groups[s.Slot] = append(groups[s.Slot], s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] > slots[j] })

	if batchSize <= 0 {
		batchSize = len(sigs)
	}

	var batches [][]domain.Signature
	for _, slot := range slots {
		items := groups[slot]
		for i := 0; i < len(items); i += batchSize {
			end := i + batchSize
			if end > len(items) {
				end = len(items)
			}
			batches = append(batches, items[i:end])
		}
	}
	return batches
}

func (e *Engine) processBatch(ctx context.Context, wallet domain.Wallet, tier domain.Tier, batch []domain.Signature, scanStart time.Time) {
	result := e.estimator.Estimate(ctx, wallet.Address, batch, len(batch))
	venue := labelFromPrograms(result.Programs)
	if venue == "Unknown" && wallet.DexLabel != "" {
		venue = wallet.DexLabel
	}

	// 7a. baseline filter.
	if wallet.NetTotal < e.cfg.GainFilter || wallet.WinRate < e.cfg.WinRateFilter {
		e.block(wallet.Address, result.Profit, "baseline_filtered", fmt.Sprintf(
			"net_total=%.4f win_rate=%.2f gain_filter=%.4f win_rate_filter=%.2f",
			wallet.NetTotal, wallet.WinRate, e.cfg.GainFilter, e.cfg.WinRateFilter))
		return
	}

	// 7b. profit filter.
	if result.Profit < e.cfg.ProfitThreshold {
		e.block(wallet.Address, result.Profit, "profit_below_threshold", fmt.Sprintf(
			"profit=%.6f threshold=%.6f", result.Profit, e.cfg.ProfitThreshold))
		return
	}

	// 7c. confidence filter.
	if result.Confidence == domain.ConfidenceLow {
		e.block(wallet.Address, result.Profit, "confidence_too_low", fmt.Sprintf("confidence=%s", result.Confidence))
		return
	}

	// 7d. idempotence.
	if e.anySeen(batch) {
		e.block(wallet.Address, result.Profit, "idempotence", "one or more batch signatures already seen")
		return
	}

	// 7e. cooldown.
	if lastAlert, ok := e.store.LastAlertAt(wallet.Address); ok {
		remaining := e.cfg.Cooldown - time.Since(lastAlert)
		if remaining > 0 {
			e.block(wallet.Address, result.Profit, "cooldown", fmt.Sprintf("remaining=%s", remaining))
			return
		}
	}

	now := time.Now()
	zscore := e.history.Observe(wallet.Address, result.Profit)
	signalType := classifySignal(venue)

	alert := domain.Alert{
		ID:               uuid.NewString(),
		Wallet:           wallet.Address,
		Profit:           result.Profit,
		VenueLabel:       venue,
		SignalType:       signalType,
		ZScore:           zscore,
		Confidence:       result.Confidence,
		SubMetrics:       result.SubMetrics,
		PrimarySignature: batch[0].Value,
		DetectionMS:      time.Since(scanStart).Milliseconds(),
		CreatedAt:        now,
		Tier:             tier,
		DryRun:           e.cfg.DryRun,
		Counterparties:   truncateCounterparties(result.Counterparties, 10),
	}
	e.alerts.Push(alert)
	e.notifyObservers(alert)
	if e.metrics != nil {
		e.metrics.IncCounter("alerts_total", wallet.Address)
		e.metrics.SetGauge("last_profit", wallet.Address, result.Profit)
		e.metrics.SetGauge("last_alert_ts", wallet.Address, float64(now.Unix()))
		e.metrics.ObserveDuration("alert_duration", time.Since(scanStart))
	}

	for _, sig := range batch {
		e.store.MarkSeen(sig.Value)
	}
	e.store.SetLastAlertAt(wallet.Address, now)

	if result.Profit >= e.cfg.NewWalletGain {
		e.autoPromote(ctx, result.Counterparties)
	}
}

func (e *Engine) anySeen(batch []domain.Signature) bool {
	for _, sig := range batch {
		if e.store.HasSeen(sig.Value) {
			return true
		}
	}
	return false
}

func (e *Engine) block(wallet string, profit float64, reason, details string) {
	e.blocked.Push(domain.BlockedAlert{
		Wallet:    wallet,
		Profit:    profit,
		Reason:    reason,
		Details:   details,
		Timestamp: time.Now(),
	})
}

// autoPromote probes each not-yet-watched, syntactically valid counterparty; a
// counterparty with at least NewWalletMinTrx signatures is promoted onto the
// watchlist subject to its LRU cap (spec §4.5 step 11).
func (e *Engine) autoPromote(ctx context.Context, counterparties []string) {
	for _, cp := range counterparties {
		if e.watchlist.Contains(cp) {
			continue
		}
		if !isValidWalletAddress(cp) {
			continue
		}

		probe, err := e.rpc.GetSignaturesForAddress(ctx, cp, e.cfg.NewWalletMinTrx)
		if err != nil {
			continue
		}
		if len(probe) >= e.cfg.NewWalletMinTrx {
			e.watchlist.TryPromote(domain.Wallet{Address: cp})
			e.log.Info().Str("wallet", cp).Msg("auto-promoted active counterparty")
		}
	}
}

func truncateCounterparties(cps []string, limit int) []string {
	if len(cps) <= limit {
		return cps
	}
	return cps[:limit]
}
