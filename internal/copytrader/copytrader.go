// Package copytrader provides the pluggable observer hook the Alert Engine calls
// after accepting an alert. No trade execution or paper-trading simulation is
// implemented here — that stays out of scope (spec §1 Non-goal); this package only
// gives such a simulator somewhere to attach.
package copytrader

import (
	"github.com/rs/zerolog"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

// Observer is notified of every alert the engine accepts, after it has already
// been pushed to the in-memory ring.
type Observer interface {
	OnAlert(alert domain.Alert)
}

// LoggingObserver is a no-op Observer that only logs: the default wired in when
// COPY_TRADER_ENABLED carries no real downstream consumer.
type LoggingObserver struct {
	log zerolog.Logger
}

// NewLoggingObserver builds a LoggingObserver.
func NewLoggingObserver(log zerolog.Logger) *LoggingObserver {
	return &LoggingObserver{log: log.With().Str("component", "copytrader").Logger()}
}

// OnAlert logs the accepted alert at debug level and otherwise does nothing.
func (o *LoggingObserver) OnAlert(alert domain.Alert) {
	o.log.Debug().
		Str("wallet", alert.Wallet).
		Float64("profit", alert.Profit).
		Str("signal_type", alert.SignalType).
		Msg("observed accepted alert")
}
