// Package webhook fans alerts and system notifications out to a single outbound
// chat-webhook URL, with a per-target circuit breaker, short-window content dedup,
// and its own coarse dedup for system notifications (spec §4.9).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/solana-signal-daas/internal/backoff"
	"github.com/aristath/solana-signal-daas/internal/circuit"
	"github.com/aristath/solana-signal-daas/internal/domain"
)

const (
	circuitFailureThreshold = 1
	circuitPause            = 30 * time.Second
	alertDedupWindow        = 30 * time.Second
	systemDedupWindow       = 5 * time.Second
	alertSendTimeout        = 2 * time.Second
	systemSendTimeout       = 5 * time.Second
	maxRetries              = 1
)

// Sender posts alert and system-notification payloads to a configured URL.
type Sender struct {
	url                  string
	includePaywallPrompt bool
	dryRun               bool
	httpClient           *http.Client
	breakers             *circuit.Registry

	mu          sync.Mutex
	alertDedup  map[string]time.Time
	systemDedup map[string]time.Time

	log zerolog.Logger
}

// Config holds the webhook target and tier-content toggles.
type Config struct {
	URL                  string
	IncludePaywallPrompt bool
	DryRun               bool
}

// New builds a Sender. An empty URL makes every Send a silent no-op (spec §4.9).
func New(cfg Config, log zerolog.Logger) *Sender {
	return &Sender{
		url:                  cfg.URL,
		includePaywallPrompt: cfg.IncludePaywallPrompt,
		dryRun:               cfg.DryRun,
		httpClient:           &http.Client{},
		breakers:             circuit.NewRegistry(circuitFailureThreshold, circuitPause),
		alertDedup:           make(map[string]time.Time),
		systemDedup:          make(map[string]time.Time),
		log:                  log.With().Str("component", "webhook").Logger(),
	}
}

// OnAlert implements alertengine.Observer: every alert the engine accepts is fanned
// out through the same tier-differentiated payload, dedup, and circuit-breaker path
// as a direct SendAlert call (spec §2 data flow, §4.9).
func (s *Sender) OnAlert(alert domain.Alert) {
	s.SendAlert(context.Background(), alert)
}

// SendAlert delivers alert, deduplicated per (wallet, signature, ⌊profit*100⌋) over
// a 30-second window, subject to the per-wallet circuit breaker. Dry-run suppresses
// delivery entirely (spec glossary: "no outbound side effects").
func (s *Sender) SendAlert(ctx context.Context, alert domain.Alert) {
	if s.url == "" {
		return
	}
	if s.dryRun {
		s.log.Debug().Str("wallet", alert.Wallet).Msg("dry run: webhook alert suppressed")
		return
	}

	key := fmt.Sprintf("%s_%s_%d", alert.Wallet, alert.PrimarySignature, int(alert.Profit*100))
	if s.seenRecently(s.alertDedup, key, alertDedupWindow) {
		s.log.Debug().Str("wallet", alert.Wallet).Msg("alert deduplicated")
		return
	}

	breaker := s.breakers.Get(alert.Wallet)
	if !breaker.Allow(time.Now()) {
		s.log.Warn().Str("wallet", alert.Wallet).Msg("webhook circuit breaker active")
		return
	}

	body := alertPayload(alert, s.includePaywallPrompt)
	s.send(ctx, breaker, body, alertSendTimeout)
}

// SendSystemNotification delivers a started/stopped/error notification, deduped
// across a coarse 5-second window so a burst of identical events collapses to one
// send, and always has its own circuit key distinct from per-wallet alert circuits.
func (s *Sender) SendSystemNotification(ctx context.Context, status, message string, details map[string]string) {
	if s.url == "" {
		return
	}
	if s.dryRun {
		s.log.Debug().Str("status", status).Msg("dry run: webhook system notification suppressed")
		return
	}

	bucket := time.Now().Unix() / int64(systemDedupWindow.Seconds())
	key := fmt.Sprintf("system_%s_%d", status, bucket)
	if s.seenRecently(s.systemDedup, key, systemDedupWindow) {
		s.log.Debug().Str("status", status).Msg("system notification deduplicated")
		return
	}

	breaker := s.breakers.Get("system")
	if !breaker.Allow(time.Now()) {
		s.log.Warn().Str("status", status).Msg("webhook circuit breaker active")
		return
	}

	body := systemPayload(status, message, details)
	s.send(ctx, breaker, body, systemSendTimeout)
}

func (s *Sender) seenRecently(cache map[string]time.Time, key string, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := cache[key]; ok && now.Sub(last) < window {
		return true
	}
	cache[key] = now

	cutoff := now.Add(-10 * window)
	for k, v := range cache {
		if v.Before(cutoff) {
			delete(cache, k)
		}
	}
	return false
}

func (s *Sender) send(ctx context.Context, breaker *circuit.Breaker, body payload, timeout time.Duration) {
	if s.dryRun {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		s.log.Warn().Err(err).Msg("webhook payload marshal failed")
		return
	}

	for attempt := 0; attempt < maxRetries+1; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		ok := s.post(reqCtx, raw)
		cancel()
		if ok {
			breaker.RecordSuccess()
			return
		}
		if attempt < maxRetries {
			time.Sleep(backoff.Delay(attempt, 0.5, 1.0, timeout.Seconds()))
		}
	}
	breaker.RecordFailure(time.Now())
}

func (s *Sender) post(ctx context.Context, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.log.Warn().Err(err).Msg("webhook request build failed")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Msg("webhook send failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		return true
	}
	s.log.Warn().Int("status", resp.StatusCode).Msg("webhook http error")
	return false
}
