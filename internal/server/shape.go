package server

import "github.com/aristath/solana-signal-daas/internal/domain"

const disclaimer = "Data only, not financial advice"

// ShapeForTier is the single function responsible for varying an alert's
// public payload by tier, so content formatting never branches across call
// sites (spec §9 design note): free gets the bare essentials (plus an optional
// upgrade hint), pro adds win-rate/z-score/confidence/sub-metrics, elite adds
// the full counterparty list on top of pro.
func ShapeForTier(a domain.Alert, tier domain.Tier, walletWinRate float64, includePaywallHint bool) map[string]interface{} {
	payload := map[string]interface{}{
		"wallet":            a.Wallet,
		"profit":            a.Profit,
		"venue":             a.VenueLabel,
		"signal_type":       a.SignalType,
		"primary_signature": a.PrimarySignature,
		"created_at":        a.CreatedAt,
		"tier":              tier,
		"disclaimer":        disclaimer,
	}

	if tier == domain.TierFree {
		if includePaywallHint {
			payload["upgrade_hint"] = "Upgrade to Pro for win-rate, z-score, confidence, and full detail"
		}
		return payload
	}

	payload["win_rate"] = walletWinRate
	payload["z_score"] = a.ZScore
	payload["confidence"] = a.Confidence
	payload["sub_metrics"] = a.SubMetrics

	if tier == domain.TierElite {
		payload["counterparties"] = a.Counterparties
	}

	return payload
}
