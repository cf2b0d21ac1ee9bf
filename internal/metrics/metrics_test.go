package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIncCounterAccumulatesPerLabel(t *testing.T) {
	r := New()
	r.IncCounter("alerts_total", "WalletA")
	r.IncCounter("alerts_total", "WalletA")
	r.IncCounter("alerts_total", "WalletB")

	require.Equal(t, float64(2), r.Counter("alerts_total", "WalletA"))
	require.Equal(t, float64(1), r.Counter("alerts_total", "WalletB"))
	require.Equal(t, float64(0), r.Counter("alerts_total", "WalletC"))
}

func TestSetGaugeOverwritesPerLabel(t *testing.T) {
	r := New()
	r.SetGauge("last_profit", "WalletA", 3.5)
	r.SetGauge("last_profit", "WalletA", 9.1)
	r.SetGauge("watchlist_size", "", 42)

	require.Equal(t, 9.1, r.Gauge("last_profit", "WalletA"))
	require.Equal(t, float64(42), r.Gauge("watchlist_size", ""))
}

func TestObserveDurationComputesAverage(t *testing.T) {
	r := New()
	r.ObserveDuration("alert_duration", 100*time.Millisecond)
	r.ObserveDuration("alert_duration", 300*time.Millisecond)

	require.Equal(t, uint64(2), r.SummaryCount("alert_duration"))
	require.Equal(t, 200*time.Millisecond, r.SummaryAverage("alert_duration"))
}

func TestSummaryAverageWithNoObservationsIsZero(t *testing.T) {
	r := New()
	require.Equal(t, time.Duration(0), r.SummaryAverage("nonexistent"))
}
