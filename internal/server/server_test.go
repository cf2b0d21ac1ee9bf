package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/alertengine"
	"github.com/aristath/solana-signal-daas/internal/apiauth"
	"github.com/aristath/solana-signal-daas/internal/billing"
	"github.com/aristath/solana-signal-daas/internal/database"
	"github.com/aristath/solana-signal-daas/internal/domain"
	"github.com/aristath/solana-signal-daas/internal/ratelimiter"
	"github.com/aristath/solana-signal-daas/internal/watchlist"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *apiauth.Auth, *alertengine.AlertRing) {
	t.Helper()
	db, err := database.New(database.Config{Path: "file::memory:?cache=shared", Profile: database.ProfileStandard, Name: "server-test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	auth := apiauth.New(db.Conn())
	limiter := ratelimiter.New(db.Conn(), ratelimiter.Limits{Free: 10, Pro: 1000, Elite: 10000})
	billingSvc := billing.New(auth, db.Conn())
	alerts := alertengine.NewAlertRing(100)
	wl := watchlist.New(50, time.Hour)

	srv := New(cfg, auth, limiter, billingSvc, alerts, wl, nil, nil, zerolog.Nop())
	return srv, auth, alerts
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealthzReturnsOkWithoutScheduler(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{DryRun: true, DaasMode: true, HealthStaleSeconds: 180})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, true, body["dry_run"])
}

func TestSignalsRejectsMissingAPIKey(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignalsRejectsInvalidAPIKey(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil)
	req.Header.Set("x-api-key", "daas_not_a_real_key")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignalsReturnsShapedAlertsForFreeTier(t *testing.T) {
	srv, auth, alerts := newTestServer(t, Config{IncludePaywallHint: true})

	rawKey, _, err := auth.CreateKey(domain.TierFree, nil)
	require.NoError(t, err)

	alerts.Push(domain.Alert{
		Wallet: "wallet1", Profit: 12.5, Confidence: domain.ConfidenceHigh,
		Tier: domain.TierFree, CreatedAt: time.Now(), Counterparties: []string{"cp1"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil)
	req.Header.Set("x-api-key", rawKey)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	require.EqualValues(t, 1, body["count"])

	signals := body["signals"].([]interface{})
	first := signals[0].(map[string]interface{})
	require.Equal(t, "wallet1", first["wallet"])
	require.Contains(t, first, "upgrade_hint")
	require.NotContains(t, first, "counterparties")
}

func TestSignalsEliteTierIncludesCounterparties(t *testing.T) {
	srv, auth, alerts := newTestServer(t, Config{})

	rawKey, _, err := auth.CreateKey(domain.TierElite, nil)
	require.NoError(t, err)

	alerts.Push(domain.Alert{
		Wallet: "wallet2", Profit: 3.0, Tier: domain.TierElite,
		CreatedAt: time.Now(), Counterparties: []string{"cpA", "cpB"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil)
	req.Header.Set("x-api-key", rawKey)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	signals := body["signals"].([]interface{})
	first := signals[0].(map[string]interface{})
	require.Contains(t, first, "counterparties")
	require.Contains(t, first, "win_rate")
}

func TestRateLimitExhaustionReturns429(t *testing.T) {
	srv, auth, _ := newTestServer(t, Config{})

	rawKey, _, err := auth.CreateKey(domain.TierFree, nil)
	require.NoError(t, err)

	var lastCode int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil)
		req.Header.Set("x-api-key", rawKey)
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		lastCode = rec.Code
		if i == 10 {
			require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		}
	}
	require.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestWalletScoreReturnsZeroStub(t *testing.T) {
	srv, auth, _ := newTestServer(t, Config{})

	rawKey, _, err := auth.CreateKey(domain.TierPro, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/abc123/score", nil)
	req.Header.Set("x-api-key", rawKey)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	require.Equal(t, "abc123", body["wallet"])
	score := body["score"].(map[string]interface{})
	require.EqualValues(t, 0, score["z_score"])
}

func TestFakeCheckoutDisabledReturns403(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{FakeCheckoutEnabled: false})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/fake-checkout", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFakeCheckoutEnabledIssuesAPIKey(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{FakeCheckoutEnabled: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/fake-checkout", jsonBody(t, map[string]string{
		"tier": "pro", "email": "buyer@example.com",
	}))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body["api_key"])
	require.Equal(t, "pro", body["tier"])
}

func TestBillingWebhookCreatesActiveKey(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", jsonBody(t, map[string]interface{}{
		"type": "customer.subscription.created",
		"data": map[string]interface{}{
			"id":       "sub_abc",
			"customer": "cus_abc",
			"status":   "active",
			"metadata": map[string]string{"tier": "elite"},
		},
	}))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.Equal(t, "ok", body["status"])
}

func TestSignalsStreamUnconfiguredReturns503(t *testing.T) {
	srv, auth, _ := newTestServer(t, Config{})

	rawKey, _, err := auth.CreateKey(domain.TierElite, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/stream", nil)
	req.Header.Set("x-api-key", rawKey)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}
