package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

func testAlert(wallet string) domain.Alert {
	return domain.Alert{
		ID: "alert-1", Wallet: wallet, Profit: 3.5, VenueLabel: "Jupiter",
		SignalType: "AMM / Aggregator", PrimarySignature: "sig1", Tier: domain.TierFree,
	}
}

func TestSendAlertPostsToConfiguredURL(t *testing.T) {
	var received int32
	var body payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s := New(Config{URL: server.URL}, zerolog.Nop())
	s.SendAlert(context.Background(), testAlert("WalletA"))

	require.Equal(t, int32(1), atomic.LoadInt32(&received))
	require.Equal(t, "WalletRadar", body.Username)
	require.NotEmpty(t, body.Embeds)
}

func TestSendAlertNoOpWhenURLEmpty(t *testing.T) {
	s := New(Config{URL: ""}, zerolog.Nop())
	s.SendAlert(context.Background(), testAlert("WalletA"))
}

func TestSendAlertSuppressedWhenDryRun(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(Config{URL: server.URL, DryRun: true}, zerolog.Nop())
	s.SendAlert(context.Background(), testAlert("WalletA"))

	require.Equal(t, int32(0), atomic.LoadInt32(&received))
}

func TestSendSystemNotificationSuppressedWhenDryRun(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(Config{URL: server.URL, DryRun: true}, zerolog.Nop())
	s.SendSystemNotification(context.Background(), "started", "boot", nil)

	require.Equal(t, int32(0), atomic.LoadInt32(&received))
}

func TestOnAlertSatisfiesObserverAndDelivers(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(Config{URL: server.URL}, zerolog.Nop())
	s.OnAlert(testAlert("WalletA"))

	require.Equal(t, int32(1), atomic.LoadInt32(&received))
}

func TestSendAlertDeduplicatesWithinWindow(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(Config{URL: server.URL}, zerolog.Nop())
	alert := testAlert("WalletA")
	s.SendAlert(context.Background(), alert)
	s.SendAlert(context.Background(), alert)

	require.Equal(t, int32(1), atomic.LoadInt32(&received))
}

func TestSendAlertCircuitOpensAfterFailure(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := New(Config{URL: server.URL}, zerolog.Nop())

	alert1 := testAlert("WalletA")
	alert1.PrimarySignature = "sig1"
	s.SendAlert(context.Background(), alert1)
	callsAfterFirstFailure := atomic.LoadInt32(&received)
	require.Equal(t, int32(2), callsAfterFirstFailure, "one initial attempt plus one retry")

	alert2 := testAlert("WalletA")
	alert2.PrimarySignature = "sig2"
	s.SendAlert(context.Background(), alert2)

	require.Equal(t, callsAfterFirstFailure, atomic.LoadInt32(&received), "circuit breaker should block the second distinct alert")
}

func TestSendSystemNotificationDeduplicatesWithinCoarseWindow(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(Config{URL: server.URL}, zerolog.Nop())
	s.SendSystemNotification(context.Background(), "started", "boot", nil)
	s.SendSystemNotification(context.Background(), "started", "boot", nil)

	require.Equal(t, int32(1), atomic.LoadInt32(&received))
}

func TestAlertPayloadFreeTierOmitsEnrichedFields(t *testing.T) {
	alert := testAlert("WalletA")
	alert.Tier = domain.TierFree
	p := alertPayload(alert, false)

	names := fieldNames(p)
	require.Contains(t, names, "Wallet")
	require.NotContains(t, names, "Z-score")
}

func TestAlertPayloadProTierIncludesConfidenceReasons(t *testing.T) {
	alert := testAlert("WalletA")
	alert.Tier = domain.TierPro
	alert.SubMetrics = domain.SubMetrics{PriceCoverage: 0.8, RouteComplexity: 2, FeeCompleteness: 1, BalanceAlignment: 0.9}
	p := alertPayload(alert, false)

	names := fieldNames(p)
	require.Contains(t, names, "Z-score")
	require.Contains(t, names, "Confidence Reasons")
}

func TestAlertPayloadFreeTierIncludesUpgradeCTAWhenEnabled(t *testing.T) {
	alert := testAlert("WalletA")
	alert.Tier = domain.TierFree
	p := alertPayload(alert, true)

	require.Contains(t, fieldNames(p), "Upgrade")
}

func fieldNames(p payload) []string {
	var names []string
	for _, e := range p.Embeds {
		for _, f := range e.Fields {
			names = append(names, f.Name)
		}
	}
	return names
}

func TestSendAlertRespectsContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(Config{URL: server.URL}, zerolog.Nop())
	start := time.Now()
	s.SendAlert(context.Background(), testAlert("WalletSlow"))
	// Two attempts capped at 2s each plus at most 1.5s backoff stay under 6s;
	// without the per-attempt timeout the two 3s responses alone take 6s.
	require.Less(t, time.Since(start), 6*time.Second)
}
