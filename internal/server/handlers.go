package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/solana-signal-daas/internal/alertengine"
	"github.com/aristath/solana-signal-daas/internal/apiauth"
	"github.com/aristath/solana-signal-daas/internal/billing"
	"github.com/aristath/solana-signal-daas/internal/domain"
	"github.com/aristath/solana-signal-daas/internal/live"
	"github.com/aristath/solana-signal-daas/internal/ratelimiter"
	"github.com/aristath/solana-signal-daas/internal/scheduler"
	"github.com/aristath/solana-signal-daas/internal/watchlist"
)

type ctxKey int

const (
	ctxTier ctxKey = iota
	ctxKeyHash
)

// Handlers holds the dependencies behind every route (spec §4.7, §4.8, §6).
type Handlers struct {
	auth      *apiauth.Auth
	limiter   *ratelimiter.Limiter
	billing   *billing.Service
	alerts    *alertengine.AlertRing
	watchlist *watchlist.Watchlist
	sched     *scheduler.Scheduler
	live      *live.Handler
	cfg       Config
	log       zerolog.Logger
}

// requireAPIKey validates the x-api-key header and enforces the tier's daily
// quota, setting X-RateLimit-Remaining/X-RateLimit-Limit on every admitted or
// rejected response (spec §4.7, §4.8, §6).
func (h *Handlers) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := r.Header.Get("x-api-key")
		if rawKey == "" {
			writeError(w, http.StatusUnauthorized, "missing x-api-key header")
			return
		}

		tier, ok := h.auth.Validate(rawKey)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or inactive api key")
			return
		}

		keyHash := apiauth.HashKey(rawKey)
		allowed, remaining, limit := h.limiter.CheckLimit(keyHash, tier)

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))

		if !allowed {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		ctx := context.WithValue(r.Context(), ctxTier, tier)
		ctx = context.WithValue(ctx, ctxKeyHash, keyHash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func tierFromContext(r *http.Request) domain.Tier {
	if t, ok := r.Context().Value(ctxTier).(domain.Tier); ok {
		return t
	}
	return domain.TierFree
}

// HandleHealthz reports loop liveness plus a gopsutil cpu/mem enrichment (spec
// §6, and SPEC_FULL.md's ambient addition grounded on the teacher's
// getSystemStats).
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	var loopTS int64
	if h.sched != nil {
		loopTS = h.sched.LastLoopTS()
	}

	stale := loopTS > 0 && time.Since(time.Unix(loopTS, 0)) > time.Duration(h.cfg.HealthStaleSeconds)*time.Second

	status := "ok"
	statusCode := http.StatusOK
	if stale {
		status = "stale"
		statusCode = http.StatusInternalServerError
	}

	lastProfit := make(map[string]float64)
	for _, a := range h.alerts.Recent(200) {
		if _, seen := lastProfit[a.Wallet]; !seen {
			lastProfit[a.Wallet] = a.Profit
		}
	}

	watchlistSize := 0
	if h.watchlist != nil {
		watchlistSize = h.watchlist.Len()
	}

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		cpuPercent = []float64{0}
	}
	memPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		memPercent = memStat.UsedPercent
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":         status,
		"loop_ts":        loopTS,
		"watchlist_size": watchlistSize,
		"last_profit":    lastProfit,
		"dry_run":        h.cfg.DryRun,
		"daas_mode":      h.cfg.DaasMode,
		"cpu_percent":    cpuPercent[0],
		"mem_percent":    memPercent,
	})
}

// HandleSignals returns up to 100 recent alerts, tier-shaped (spec §4.8).
func (h *Handlers) HandleSignals(w http.ResponseWriter, r *http.Request) {
	tier := tierFromContext(r)
	recent := h.alerts.Recent(100)

	shaped := make([]map[string]interface{}, 0, len(recent))
	for _, a := range recent {
		winRate := 0.0
		if h.watchlist != nil {
			for _, wt := range h.watchlist.Snapshot() {
				if wt.Address == a.Wallet {
					winRate = wt.WinRate
					break
				}
			}
		}
		shaped = append(shaped, ShapeForTier(a, tier, winRate, h.cfg.IncludePaywallHint))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": shaped,
		"count":   len(shaped),
	})
}

// HandleWalletScore is a deliberate zero-value stub: the true score computation
// is an open question left undefined (spec §9).
func (h *Handlers) HandleWalletScore(w http.ResponseWriter, r *http.Request) {
	tier := tierFromContext(r)
	address := chi.URLParam(r, "address")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet": address,
		"tier":   tier,
		"score": map[string]float64{
			"z_score":   0,
			"win_rate":  0,
			"net_total": 0,
		},
	})
}

// billingWebhookBody is the subset of a Stripe-shaped event this service reads;
// its exact body format is out of scope (spec §1), only the dispatch mechanics
// named in §6 are implemented.
type billingWebhookBody struct {
	Type string `json:"type"`
	Data struct {
		ID       string `json:"id"`
		Customer string `json:"customer"`
		Status   string `json:"status"`
		Items    []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"items"`
		Metadata struct {
			Tier string `json:"tier"`
		} `json:"metadata"`
	} `json:"data"`
}

// HandleBillingWebhook dispatches customer.subscription.{created,updated,deleted}
// events (spec §6).
func (h *Handlers) HandleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	var body billingWebhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook body")
		return
	}

	priceID := ""
	if len(body.Data.Items) > 0 {
		priceID = body.Data.Items[0].Price.ID
	}

	event := billing.SubscriptionEvent{
		ID:           body.Data.ID,
		CustomerID:   body.Data.Customer,
		Status:       body.Data.Status,
		PriceID:      priceID,
		MetadataTier: body.Data.Metadata.Tier,
	}

	if _, err := h.billing.HandleWebhook(body.Type, event); err != nil {
		h.log.Error().Err(err).Str("event_type", body.Type).Msg("billing webhook dispatch failed")
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fakeCheckoutBody is the self-serve signup request body (spec §6).
type fakeCheckoutBody struct {
	Tier  string `json:"tier"`
	Email string `json:"email"`
}

// HandleFakeCheckout issues an API key + subscription directly, bypassing the
// Stripe round-trip, when the feature flag is enabled (spec §6).
func (h *Handlers) HandleFakeCheckout(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.FakeCheckoutEnabled {
		writeError(w, http.StatusForbidden, "fake checkout is disabled")
		return
	}

	var body fakeCheckoutBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed checkout body")
		return
	}
	tier := domain.Tier(body.Tier)
	if tier == "" {
		tier = domain.TierFree
	}

	apiKey, subscriptionID, err := h.billing.FakeCheckout(tier, body.Email)
	if err != nil {
		h.log.Error().Err(err).Msg("fake checkout failed")
		writeError(w, http.StatusInternalServerError, "checkout failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"api_key":         apiKey,
		"subscription_id": subscriptionID,
		"tier":            string(tier),
		"status":          "active",
	})
}

// HandleSignalsStream upgrades to the elite-tier live alert websocket (spec §1,
// SPEC_FULL.md's streaming supplement). Delegates entirely to internal/live
// once the caller's tier is known.
func (h *Handlers) HandleSignalsStream(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		writeError(w, http.StatusServiceUnavailable, "live stream not configured")
		return
	}
	tier := tierFromContext(r)
	h.live.ServeHTTP(w, r, tier)
}
