package webhook

import (
	"fmt"
	"time"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

// embedField mirrors a Discord embed field object.
type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields"`
	Timestamp   string       `json:"timestamp"`
}

type payload struct {
	Username string  `json:"username"`
	Embeds   []embed `json:"embeds"`
}

const disclaimer = "Data only, not financial advice"

// alertPayload builds the outbound webhook body for an alert, enriched per tier
// (spec §4.8, §4.9): free gets the bare essentials plus an optional upgrade CTA,
// pro and elite get z-score, confidence, latency, and a confidence reasons
// breakdown. The wallet's win rate is not included for any tier.
func alertPayload(alert domain.Alert, includePaywallPrompt bool) payload {
	fields := []embedField{
		{Name: "Wallet", Value: alert.Wallet, Inline: true},
		{Name: "Profit (SOL)", Value: fmt.Sprintf("%.2f", alert.Profit), Inline: true},
		{Name: "Venue", Value: orUnknown(alert.VenueLabel), Inline: true},
		{Name: "Type", Value: alert.SignalType, Inline: true},
	}

	switch alert.Tier {
	case domain.TierPro, domain.TierElite:
		fields = append(fields,
			embedField{Name: "Confidence", Value: string(alert.Confidence), Inline: true},
			embedField{Name: "Z-score", Value: fmt.Sprintf("%+.2f", alert.ZScore), Inline: true},
			embedField{Name: "Latency (ms)", Value: fmt.Sprintf("%d", alert.DetectionMS), Inline: true},
		)
		fields = append(fields, embedField{
			Name: "Confidence Reasons",
			Value: fmt.Sprintf(
				"Price coverage: %.0f%%\nRoute complexity: %.1f\nFee complete: %s\nBalance alignment: %.0f%%",
				alert.SubMetrics.PriceCoverage*100,
				alert.SubMetrics.RouteComplexity,
				yesNo(alert.SubMetrics.FeeCompleteness > 0.9),
				alert.SubMetrics.BalanceAlignment*100,
			),
			Inline: false,
		})
	default:
		if includePaywallPrompt {
			fields = append(fields, embedField{
				Name:   "Upgrade",
				Value:  "Upgrade to Pro for enriched alerts",
				Inline: false,
			})
		}
	}

	fields = append(fields, embedField{Name: "Disclaimer", Value: disclaimer, Inline: false})
	if alert.PrimarySignature != "" {
		fields = append(fields, embedField{
			Name:   "Explorer",
			Value:  fmt.Sprintf("https://solscan.io/tx/%s", alert.PrimarySignature),
			Inline: false,
		})
	}

	title := fmt.Sprintf("Wallet %s +%.2f SOL", truncate(alert.Wallet, 8), alert.Profit)
	return payload{
		Username: "WalletRadar",
		Embeds: []embed{{
			Title:     title,
			Fields:    fields,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
}

// systemPayload builds the outbound body for a system notification (started,
// stopped, error) — spec §4.9, §5 shutdown grace period.
func systemPayload(status, message string, details map[string]string) payload {
	color := 0xFFA500
	switch status {
	case "started":
		color = 0x00FF00
	case "stopped":
		color = 0xFF0000
	}

	fields := []embedField{
		{Name: "Status", Value: status, Inline: true},
		{Name: "Time", Value: time.Now().UTC().Format("2006-01-02 15:04:05 UTC"), Inline: true},
	}
	for k, v := range details {
		fields = append(fields, embedField{Name: k, Value: v, Inline: true})
	}

	return payload{
		Username: "WalletRadar",
		Embeds: []embed{{
			Title:       fmt.Sprintf("Wallet Monitor - %s", status),
			Description: message,
			Color:       color,
			Fields:      fields,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
